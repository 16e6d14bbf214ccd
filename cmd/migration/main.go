package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/riskibarqy/match-odds-engine/internal/config"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
)

const defaultSQLitePath = "data/matches.db"

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

type command struct {
	usage string
	run   func(m migrator, args []string, logger *logging.Logger) error
}

var commands = map[string]command{
	"up":      {usage: "up", run: runUp},
	"down":    {usage: "down [steps]", run: runDown},
	"version": {usage: "version", run: runVersion},
	"force":   {usage: "force <version>", run: runForce},
	"goto":    {usage: "goto <version>", run: runGoto},
}

func main() {
	logger := logging.NewJSON(logging.LevelInfo).Named("migration")
	defer func() { _ = logger.Sync() }()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(os.Args[1]))]
	if !ok {
		printUsage()
		os.Exit(2)
	}
	_ = godotenv.Load()

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = config.DBDriverPostgres
	}
	if err := migrateWith(driver, cmd, os.Args[2:], logger); err != nil {
		logger.Error("migration failed", "driver", driver, "command", os.Args[1], "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func migrateWith(driver string, cmd command, args []string, logger *logging.Logger) error {
	dbURL, err := migrationDBURL(driver, os.Getenv("DB_URL"))
	if err != nil {
		return err
	}
	dir, err := resolveMigrationsDir(driver)
	if err != nil {
		return err
	}

	source := "file://" + filepath.ToSlash(dir)
	m, err := migrate.New(source, dbURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn("close migrator", "error", err)
		}
	}()

	logger.Info("migration source", "driver", driver, "source", source)
	return cmd.run(m, args, logger)
}

func runUp(m migrator, _ []string, logger *logging.Logger) error {
	if err := ignoreNoChange(m.Up(), logger); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func runDown(m migrator, args []string, logger *logging.Logger) error {
	steps, err := parseSteps(args)
	if err != nil {
		return err
	}
	if err := ignoreNoChange(m.Steps(-steps), logger); err != nil {
		return err
	}
	logger.Info("migrations rolled back", "steps", steps)
	return nil
}

func runVersion(m migrator, _ []string, _ *logging.Logger) error {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("version: none")
		fmt.Println("dirty: false")
		return nil
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	}
	fmt.Printf("version: %d\ndirty: %t\n", version, dirty)
	return nil
}

func runForce(m migrator, args []string, logger *logging.Logger) error {
	version, err := parseVersionArg(args)
	if err != nil {
		return err
	}
	if err := m.Force(int(version)); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	logger.Info("version forced", "version", version)
	return nil
}

func runGoto(m migrator, args []string, logger *logging.Logger) error {
	version, err := parseVersionArg(args)
	if err != nil {
		return err
	}
	if err := ignoreNoChange(m.Migrate(version), logger); err != nil {
		return err
	}
	logger.Info("migrated", "version", version)
	return nil
}

func ignoreNoChange(err error, logger *logging.Logger) error {
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migration changes")
		return nil
	}
	return err
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid down steps %q: %w", args[0], err)
	}
	if steps <= 0 {
		return 0, errors.New("down steps must be > 0")
	}
	return steps, nil
}

// parseVersionArg reads a migration version; the files are numbered 000001 and up.
func parseVersionArg(args []string) (uint, error) {
	if len(args) == 0 {
		return 0, errors.New("a version argument is required")
	}
	value, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	return uint(value), nil
}

// migrationDBURL returns a URL whose scheme selects the migrate database driver.
func migrationDBURL(driver, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch driver {
	case config.DBDriverPostgres:
		if raw == "" {
			return "", errors.New("DB_URL is required")
		}
		return raw, nil
	case config.DBDriverSQLite:
		if raw == "" {
			raw = defaultSQLitePath
		}
		if !strings.HasPrefix(raw, "sqlite://") {
			raw = "sqlite://" + raw
		}
		return raw, nil
	default:
		return "", fmt.Errorf("invalid DB_DRIVER %q: valid values are postgres, sqlite", driver)
	}
}

// resolveMigrationsDir prefers MIGRATIONS_DIR, then the repo and container layouts.
func resolveMigrationsDir(driver string) (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")),
		filepath.Join("db", "migrations", driver),
		filepath.Join("/app/db/migrations", driver),
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs, nil
		}
	}
	return "", fmt.Errorf("migration directory for %s not found (checked MIGRATIONS_DIR, ./db/migrations/%[1]s, /app/db/migrations/%[1]s)", driver)
}

func printUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "usage: %s <command> [args]\ncommands:\n", name)
	for _, key := range []string{"up", "down", "version", "force", "goto"} {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[key].usage)
	}
	fmt.Fprintf(os.Stderr, "example: DB_DRIVER=sqlite DB_URL=%s %s up\n", defaultSQLitePath, name)
}
