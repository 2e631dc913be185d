package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	cfg "github.com/example/googleauth/internal/config"
	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/logging"
	"github.com/example/googleauth/internal/session"
	"github.com/example/googleauth/internal/store"
	"github.com/example/googleauth/internal/token"
	"github.com/example/googleauth/internal/verifier"
	"github.com/gorilla/mux"
)

type App struct {
	Store    store.Store
	Tokens   *token.Service
	Sessions *session.Service
	Logger   logging.Logger

	production  bool
	corsOrigin  string
	rateLimiter *RateLimiter
}

// AppOptions carries the settings the HTTP layer needs from the config.
type AppOptions struct {
	Production         bool
	CORSOrigin         string
	RateLimitPerMinute int
}

func NewApp(v verifier.Verifier, s store.Store, tokens *token.Service, logger logging.Logger, opts AppOptions) *App {
	return &App{
		Store:       s,
		Tokens:      tokens,
		Sessions:    session.New(v, s, tokens),
		Logger:      logger,
		production:  opts.Production,
		corsOrigin:  opts.CORSOrigin,
		rateLimiter: NewRateLimiter(opts.RateLimitPerMinute),
	}
}

// Router builds the full handler chain.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()

	// Health check endpoints
	r.HandleFunc("/health", a.HandleHealth).Methods("GET")
	r.HandleFunc("/ready", a.HandleReady).Methods("GET")

	// The browser client calls /api/auth, direct callers use /auth.
	for _, prefix := range []string{"/auth", "/api/auth"} {
		sub := r.PathPrefix(prefix).Subrouter()
		sub.Use(a.RateLimit)
		sub.HandleFunc("/google", a.HandleGoogleLogin).Methods("POST")
		sub.HandleFunc("/refresh", a.HandleRefresh).Methods("POST")

		protected := sub.NewRoute().Subrouter()
		protected.Use(a.RequireAuth)
		protected.HandleFunc("/me", a.HandleMe).Methods("GET")
		protected.HandleFunc("/logout", a.HandleLogout).Methods("POST")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.writeError(w, req, errors.Kindf(errors.KindNotFound, "no route for %s", req.URL.Path).
			WithPublicMessage("route not found"))
	})

	var h http.Handler = r
	h = a.CORS(h)
	h = a.Recover(h)
	h = a.Logging(h)
	h = SecurityHeaders(h)
	return gziphandler.GzipHandler(h)
}

func newVerifier(ctx context.Context, c *cfg.Config) (verifier.Verifier, error) {
	if c.GoogleVerifier == cfg.VerifierOIDC {
		return verifier.NewOIDC(ctx, verifier.GoogleIssuer, c.GoogleClientID)
	}
	return verifier.NewGoogle(c.GoogleClientID)
}

func openStore(ctx context.Context, c *cfg.Config, logger logging.Logger) (store.Store, error) {
	switch c.StoreAdapter {
	case cfg.StoreSQLite:
		if dir := filepath.Dir(c.SQLiteFile); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.WrapPrefix(err, "create sqlite directory", 0)
			}
		}
		return store.NewSQLite(c.SQLiteFile)
	case cfg.StorePostgres:
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, err
		}
		logger.Infow("applying database migrations", "dir", c.MigrationsDir)
		if err := ApplyMigrations(c.MigrationsDir, dsn, logger); err != nil {
			return nil, err
		}
		return store.NewPostgres(dsn)
	case cfg.StoreRedis:
		return store.NewRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
	case cfg.StoreMongo:
		return store.NewMongo(ctx, c.MongoURI, c.MongoDatabase)
	case cfg.StoreMemory:
		logger.Warnw("using in-memory store, users are lost on restart")
		return store.NewMemory(), nil
	}
	return nil, errors.Errorf("unsupported STORE_ADAPTER: %s", c.StoreAdapter)
}

func main() {
	c, err := cfg.New()
	if err != nil {
		logger, _ := logging.New(false, "info")
		logger.Fatalw("config error", "error", err)
	}

	logger, err := logging.New(c.Production(), c.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	st, err := openStore(startCtx, c, logger)
	if err != nil {
		logger.Fatalw("store init failed", "adapter", c.StoreAdapter, "error", err)
	}
	logger.Infow("identity store ready", "adapter", c.StoreAdapter)

	v, err := newVerifier(startCtx, c)
	if err != nil {
		logger.Fatalw("verifier init failed", "verifier", c.GoogleVerifier, "error", err)
	}

	tokens, err := token.New(c.AccessSecret, c.RefreshSecret,
		token.WithTTL(c.AccessTTL.Duration(), c.RefreshTTL.Duration()),
		token.WithIssuer(c.Issuer))
	if err != nil {
		logger.Fatalw("token service init failed", "error", err)
	}

	app := NewApp(v, st, tokens, logger, AppOptions{
		Production:         c.Production(),
		CORSOrigin:         c.CORSOrigin,
		RateLimitPerMinute: c.RateLimitPerMinute,
	})

	srv := &http.Server{
		Handler:      app.Router(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("starting server", "port", c.Port, "env", c.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("shutdown failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Errorw("store close failed", "error", err)
	}
	logger.Infow("server exited properly")
}
