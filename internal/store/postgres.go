package store

import (
	"context"
	"database/sql"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	_ "github.com/lib/pq"
)

// Postgres stores users in PostgreSQL. The schema is owned by the migrations
// in ./migrations.
type Postgres struct {
	db   *sql.DB
	opts options
}

func NewPostgres(dsn string, opts ...Option) (*Postgres, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: open postgres", 0)
	}
	p := NewPostgresFromDB(d, opts...)
	if err := p.Ping(context.Background()); err != nil {
		d.Close()
		return nil, errors.WrapPrefix(err, "store: ping postgres", 0)
	}
	return p, nil
}

// NewPostgresFromDB wraps an existing connection pool.
func NewPostgresFromDB(d *sql.DB, opts ...Option) *Postgres {
	return &Postgres{db: d, opts: newOptions(opts)}
}

func (p *Postgres) GetOrCreate(ctx context.Context, id identity.Identity) (*identity.User, error) {
	if err := validate(id); err != nil {
		return nil, err
	}
	u := identity.NewUser(id, p.opts.now())
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users(id,email,name,picture,created_at) VALUES($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Email, u.Name, u.Picture, u.CreatedAt.UTC())
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: insert user", 0)
	}
	return p.GetByID(ctx, id.ExternalID)
}

func (p *Postgres) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id,email,name,picture,created_at FROM users WHERE id = $1`, userID)
	var u identity.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.WrapPrefix(err, "store: select user", 0)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *Postgres) Close() error                   { return p.db.Close() }
