package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"glamour/internal/adapters/api"
	emailPkg "glamour/internal/adapters/email"
	web "glamour/internal/adapters/http"
	"glamour/internal/adapters/http/middleware"
	"glamour/internal/adapters/http/perf"
	"glamour/internal/adapters/storage"
	sessionStore "glamour/internal/adapters/storage/session"
	"glamour/internal/application/stores"
	"glamour/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// purgeInterval is how often expired client snapshots are removed from SQLite.
const purgeInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	keys, err := config.DeriveKeys(cfg.Secret)
	if err != nil {
		log.Fatalf("derive keys: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := perf.NewCollector(perf.DefaultRingSize)

	persist, closer, err := openSessionStore(ctx, cfg, collector)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer closer.Close()

	client := api.NewClient(cfg.APIBaseURL,
		api.WithCollector(collector),
		api.WithMetrics(api.NewMetrics(prometheus.DefaultRegisterer)),
	)
	registry := stores.NewRegistry(stores.RegistryConfig{
		API:            client,
		Persist:        persist,
		IdleTTL:        cfg.SessionTTL,
		ResendCooldown: cfg.ResendCooldown,
	})
	go registry.RunSweeper(ctx, time.Minute)

	// Configure email sender
	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.EmailFrom)
		log.Println("Email sender configured (Resend)")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			log.Println("WARNING: GLAMOUR_RESEND_KEY is not set, contact enquiries are NOT delivered in production")
		} else {
			log.Println("Email sender configured (noop, set GLAMOUR_RESEND_KEY for real delivery)")
		}
	}

	handler, err := web.NewMux(ctx, web.Deps{
		Registry:       registry,
		Cookies:        middleware.NewClientCookies(keys.CookieHash, keys.CookieEnc, cfg.IsProduction(), cfg.SessionTTL),
		Collector:      collector,
		Contact:        emailPkg.ContactMailer{Sender: sender, From: cfg.EmailFrom, Inbox: cfg.ContactInbox},
		CSRFKey:        keys.CSRF,
		Secure:         cfg.IsProduction(),
		TrustedOrigins: cfg.TrustedOrigins,
		RateLimit:      cfg.RateLimit,
		SlowRequest:    cfg.SlowRequest,
	})
	if err != nil {
		log.Fatalf("build handler: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Glamour %s starting on %s (env=%s, api=%s, sessions=%s)",
		version, cfg.Addr, cfg.Env, cfg.APIBaseURL, cfg.SessionBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSessionStore builds the configured snapshot backend. The returned closer
// releases its connection.
func openSessionStore(ctx context.Context, cfg *config.Config, collector *perf.Collector) (sessionStore.Store, io.Closer, error) {
	switch cfg.SessionBackend {
	case config.BackendMemory:
		log.Println("Client sessions kept in memory (lost on restart)")
		return sessionStore.NewMemoryStore(), nopCloser{}, nil

	case config.BackendRedis:
		rdb := sessionStore.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Snapshots are best effort; the server still runs without them.
			log.Printf("WARNING: redis at %s unreachable: %v", cfg.RedisAddr, err)
		}
		return sessionStore.NewRedisStore(rdb, cfg.SessionTTL), rdb, nil
	}

	// WAL mode, busy timeout and foreign keys for the embedded database.
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := storage.MigrateDB(db, cfg.DBPath); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Printf("Session database ready (schema=%d)", storage.LatestSchemaVersion())

	store := sessionStore.NewSQLiteStore(storage.NewTimedDB(db, collector, cfg.SlowQuery), cfg.SessionTTL)
	go purgeExpired(ctx, store)
	return store, db, nil
}

func purgeExpired(ctx context.Context, store *sessionStore.SQLiteStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Printf("purge sessions: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Purged %d expired client sessions", n)
			}
		}
	}
}
