package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func alice() identity.Identity {
	return identity.Identity{
		ExternalID:    "google-sub-1",
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice",
		Picture:       "https://example.com/alice.png",
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	id := alice()
	id.ExternalID = "sub-" + uuid.NewString()

	t.Run("CreatesOnFirstSight", func(t *testing.T) {
		u, err := s.GetOrCreate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id.ExternalID, u.ID)
		assert.Equal(t, id.Email, u.Email)
		assert.Equal(t, id.Name, u.Name)
		assert.Equal(t, id.Picture, u.Picture)
		assert.False(t, u.CreatedAt.IsZero())
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, err := s.GetOrCreate(ctx, id)
		require.NoError(t, err)

		changed := id
		changed.Name = "Alice Renamed"
		changed.Email = "other@example.com"
		second, err := s.GetOrCreate(ctx, changed)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Email, second.Email, "profile is not refreshed on repeat login")
		assert.Equal(t, first.Name, second.Name)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	})

	t.Run("GetByID", func(t *testing.T) {
		u, err := s.GetByID(ctx, id.ExternalID)
		require.NoError(t, err)
		assert.Equal(t, id.ExternalID, u.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := s.GetByID(ctx, "missing-"+uuid.NewString())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	})

	t.Run("EmptyExternalID", func(t *testing.T) {
		_, err := s.GetOrCreate(ctx, identity.Identity{Email: "x@example.com"})
		require.Error(t, err)
		assert.Equal(t, errors.KindInternal, errors.KindOf(err))
	})

	t.Run("ConcurrentFirstLogin", func(t *testing.T) {
		racer := alice()
		racer.ExternalID = "race-" + uuid.NewString()

		const n = 16
		var wg sync.WaitGroup
		ids := make([]string, n)
		created := make([]time.Time, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u, err := s.GetOrCreate(ctx, racer)
				errs[i] = err
				if err == nil {
					ids[i] = u.ID
					created[i] = u.CreatedAt
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, racer.ExternalID, ids[i])
			assert.True(t, created[0].Equal(created[i]), "all callers observe one record")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory(WithClock(fixedClock))
	u, err := m.GetOrCreate(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, u.CreatedAt)

	u.Name = "mutated"
	again, err := m.GetByID(context.Background(), alice().ExternalID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Name)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryConcurrentSingleRecord(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GetOrCreate(context.Background(), alice())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Len())
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	s, err := NewSQLite(path, WithClock(fixedClock))
	require.NoError(t, err)
	_, err = s.GetOrCreate(context.Background(), alice())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	u, err := reopened.GetByID(context.Background(), alice().ExternalID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, u.CreatedAt)
	assert.Equal(t, "alice@example.com", u.Email)
}

var userColumns = []string{"id", "email", "name", "picture", "created_at"}

func TestPostgresGetOrCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := NewPostgresFromDB(db, WithClock(fixedClock))
	defer p.Close()

	id := alice()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(id.ExternalID, id.Email, id.Name, id.Picture, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id,email,name,picture,created_at FROM users WHERE id = \\$1").
		WithArgs(id.ExternalID).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.ExternalID, id.Email, id.Name, id.Picture, fixedNow))

	u, err := p.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id.ExternalID, u.ID)
	assert.Equal(t, fixedNow, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExistingRecordWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := NewPostgresFromDB(db, WithClock(fixedClock))
	defer p.Close()

	earlier := fixedNow.Add(-48 * time.Hour)
	id := alice()
	// Conflict: nothing inserted, the stored row is returned.
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(id.ExternalID).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.ExternalID, "old@example.com", "Old Name", "", earlier))

	u, err := p.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", u.Email)
	assert.Equal(t, earlier, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := NewPostgresFromDB(db)
	defer p.Close()

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err = p.GetByID(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	p := NewPostgresFromDB(db)
	defer p.Close()

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("connection reset by peer"))

	_, err = p.GetOrCreate(context.Background(), alice())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 500, errors.HTTPStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	r, err := NewRedis(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), db)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	exerciseStore(t, r)
}

func TestMongo(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	m, err := NewMongo(context.Background(), uri, "googleauth_test_"+strconv.FormatInt(time.Now().UnixNano(), 36))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.users.Database().Drop(context.Background())
		m.Close()
	})
	exerciseStore(t, m)
}
