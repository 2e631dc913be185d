package store

import (
	"context"
	"database/sql"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	_ "modernc.org/sqlite"
)

// SQLite stores users in a SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
	opts options
}

func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: open sqlite", 0)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	d.SetMaxOpenConns(1)
	s := &SQLite{db: d, path: path, opts: newOptions(opts)}
	if err := s.Init(context.Background()); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the schema if it doesn't exist.
func (s *SQLite) Init(ctx context.Context) error {
	queries := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, email TEXT NOT NULL, name TEXT NOT NULL DEFAULT '', picture TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.WrapPrefix(err, "store: init sqlite", 0)
		}
	}
	return nil
}

func (s *SQLite) GetOrCreate(ctx context.Context, id identity.Identity) (*identity.User, error) {
	if err := validate(id); err != nil {
		return nil, err
	}
	u := identity.NewUser(id, s.opts.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,email,name,picture,created_at) VALUES(?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Email, u.Name, u.Picture, u.CreatedAt.UnixNano())
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: insert user", 0)
	}
	return s.GetByID(ctx, id.ExternalID)
}

func (s *SQLite) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,email,name,picture,created_at FROM users WHERE id = ?`, userID)
	var u identity.User
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WrapPrefix(err, "store: select user", 0)
	}
	u.CreatedAt = unixNano(created)
	return &u, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLite) Close() error                   { return s.db.Close() }
