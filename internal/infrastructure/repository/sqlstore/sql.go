package sqlstore

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectOf maps a database/sql driver name to the SQL dialect it speaks.
func DialectOf(driverName string) Dialect {
	switch strings.ToLower(strings.TrimSpace(driverName)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return DialectPostgres
	}
}

var positionalParam = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders to ? for SQLite. The query builder numbers
// arguments in textual order, so the rewrite keeps argument positions.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectSQLite {
		return query
	}
	return positionalParam.ReplaceAllString(query, "?")
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	out := v.Float64
	return &out
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	out := v.Bool
	return &out
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	out := v.String
	return &out
}

func outcomeArg(o *match.Outcome) any {
	if o == nil {
		return nil
	}
	return string(*o)
}

func verdictArg(v *match.Verdict) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func stringArg(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolArg(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
