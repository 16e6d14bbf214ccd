package app

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/riskibarqy/match-odds-engine/internal/config"
)

// driverDSN turns DB_URL into the data source name for the configured driver.
// SQLite paths get WAL and a busy timeout so the jobs can share one file.
func driverDSN(driver, raw string) string {
	raw = strings.TrimSpace(raw)
	if driver != config.DBDriverSQLite {
		return raw
	}
	raw = strings.TrimPrefix(raw, "sqlite://")
	if strings.Contains(raw, "_pragma=") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func dbNameFromURL(driver, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if driver == config.DBDriverSQLite {
		path := strings.TrimPrefix(trimmed, "sqlite://")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	parsed, err := url.Parse(trimmed)
	if err == nil && parsed != nil && parsed.Scheme != "" {
		name := strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/"))
		if name != "" {
			return name
		}
	}

	for _, token := range strings.Fields(trimmed) {
		if !strings.HasPrefix(token, "dbname=") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(token, "dbname="))
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}

	return ""
}
