package main

import (
	"database/sql"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func newMigrator(migrationsDir, dbURL string) (*migrate.Migrate, *sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, nil, errors.WrapPrefix(err, "opening database connection", 0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, errors.WrapPrefix(err, "database ping failed", 0)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, errors.WrapPrefix(err, "creating migrate driver", 0)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, errors.WrapPrefix(err, "creating migrate instance", 0)
	}
	return m, db, nil
}

// ApplyMigrations brings the users schema up to date against the provided
// Postgres DSN.
func ApplyMigrations(migrationsDir, dbURL string, logger logging.Logger) error {
	m, db, err := newMigrator(migrationsDir, dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return errors.WrapPrefix(err, "checking migration version", 0)
	}

	if dirty {
		return errors.Errorf("database is in a dirty state (version %d), manual intervention required", version)
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Infow("database is up to date", "version", version)
			return nil
		}
		return errors.WrapPrefix(err, "applying migrations", 0)
	}

	newVersion, _, _ := m.Version()
	if newVersion != version {
		logger.Infow("database migrated", "from", version, "to", newVersion)
	}
	return nil
}

// GetMigrationVersion returns the current migration version
func GetMigrationVersion(migrationsDir, dbURL string) (uint, bool, error) {
	m, db, err := newMigrator(migrationsDir, dbURL)
	if err != nil {
		return 0, false, err
	}
	defer db.Close()

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}
