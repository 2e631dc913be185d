package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/example/googleauth/internal/config"
	"github.com/example/googleauth/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	logger, err := logging.New(false, "info")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalw("config error", "error", err)
	}

	if cfg.StoreAdapter != config.StorePostgres {
		logger.Fatalw("migrations only apply to PostgreSQL", "adapter", cfg.StoreAdapter)
	}

	dsn, err := cfg.BuildPostgresDSN()
	if err != nil {
		logger.Fatalw("postgres config error", "error", err)
	}

	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	m, db, err := open(migrationsDir, dsn)
	if err != nil {
		logger.Fatalw("migrate init failed", "error", err)
	}
	defer db.Close()

	switch *command {
	case "up":
		if err := run(m, true, *steps); err != nil {
			logger.Fatalw("migration up failed", "error", err)
		}
		logger.Infow("migrations applied")
	case "down":
		if err := run(m, false, *steps); err != nil {
			logger.Fatalw("migration down failed", "error", err)
		}
		logger.Infow("migrations rolled back")
	case "version":
		v, dirty, err := m.Version()
		if err == migrate.ErrNilVersion {
			v, dirty, err = 0, false, nil
		}
		if err != nil {
			logger.Fatalw("failed to get version", "error", err)
		}
		if dirty {
			logger.Errorw("database is in a dirty state", "version", v)
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			logger.Fatalw("version required for force command (use -version flag)")
		}
		if err := m.Force(int(*version)); err != nil {
			logger.Fatalw("force migration failed", "error", err)
		}
		logger.Infow("forced database version", "version", *version)
	default:
		logger.Fatalw("unknown command (supported: up, down, version, force)", "command", *command)
	}
}

func open(migrationsDir, dsn string) (*migrate.Migrate, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, db, nil
}

func run(m *migrate.Migrate, up bool, steps int) error {
	if steps > 0 {
		if !up {
			steps = -steps
		}
		if err := m.Steps(steps); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("applying migrations: %w", err)
		}
		return nil
	}
	if up {
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("applying migrations: %w", err)
		}
		return nil
	}
	if err := m.Down(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}
