package browser_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	_ "modernc.org/sqlite"

	"glamour/internal/adapters/api"
	"glamour/internal/adapters/email"
	web "glamour/internal/adapters/http"
	"glamour/internal/adapters/http/middleware"
	"glamour/internal/adapters/http/perf"
	"glamour/internal/adapters/storage"
	sessionStore "glamour/internal/adapters/storage/session"
	"glamour/internal/application/stores"
)

// testApp holds the running site, its stub venue API and the Playwright handles.
type testApp struct {
	BaseURL string
	API     *http.ServeMux
	Mail    *email.NoopSender
	Server  *http.Server
	PW      *playwright.Playwright
	Browser playwright.Browser
}

// newTestApp starts the site against a stub API with a temp SQLite session store.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	apiMux := http.NewServeMux()
	stubAPI(apiMux)
	apiSrv := httptest.NewServer(apiMux)
	t.Cleanup(apiSrv.Close)

	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	collector := perf.NewCollector(1000)
	registry := stores.NewRegistry(stores.RegistryConfig{
		API:     api.NewClient(apiSrv.URL, api.WithCollector(collector)),
		Persist: sessionStore.NewSQLiteStore(storage.NewTimedDB(db, collector, storage.DefaultSlowQuery), time.Hour),
	})

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	mail := email.NewNoopSender()
	ctx, cancel := context.WithCancel(context.Background())
	handler, err := web.NewMux(ctx, web.Deps{
		Registry:       registry,
		Cookies:        middleware.NewClientCookies(make([]byte, 64), make([]byte, 32), false, time.Hour),
		Collector:      collector,
		Contact:        email.ContactMailer{Sender: mail, From: "site@glamour.test", Inbox: "venue@glamour.test"},
		Metrics:        http.NotFoundHandler(),
		CSRFKey:        make([]byte, 32),
		TrustedOrigins: []string{fmt.Sprintf("127.0.0.1:%d", port), fmt.Sprintf("localhost:%d", port)},
		RateLimit:      100,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		cancel()
		db.Close()
	})

	return &testApp{BaseURL: baseURL, API: apiMux, Mail: mail, Server: srv, PW: pw, Browser: browser}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// stubAPI answers the venue API calls the pages make. The only account is
// admin@glamour.test / secret1.
func stubAPI(mux *http.ServeMux) {
	admin := map[string]any{"_id": "admin-1", "name": "Grace Admin", "email": "admin@glamour.test", "role": "admin", "isVerified": true}
	event := func(id, title string, when time.Time) map[string]any {
		return map[string]any{"_id": id, "title": title, "description": "Live **music** all night",
			"date": when.Format(time.RFC3339), "location": "Main hall", "category": "Concert"}
	}
	upcoming := event("e-up", "Summer Gala", time.Now().Add(72*time.Hour))
	past := event("e-past", "Spring Jazz", time.Now().Add(-72*time.Hour))

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&in)
		if in.Email != "admin@glamour.test" || in.Password != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": admin, "accessToken": "tok-admin"})
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": admin})
	})
	mux.HandleFunc("GET /events/upcoming", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{upcoming}})
	})
	mux.HandleFunc("GET /events/past", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{past}})
	})
	mux.HandleFunc("GET /events/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "e-up" {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": upcoming})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": past})
	})
	mux.HandleFunc("GET /events/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{
			map[string]any{"_id": "r1", "ratings": map[string]any{"overall": 5}, "comments": "Wonderful evening",
				"isAnonymous": true, "anonymousName": "A guest", "isPublic": true},
		}, "pagination": map[string]any{"page": 1, "limit": 10, "total": 1, "totalPages": 1}})
	})
}

// newPage creates a new browser page (tab).
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// signIn fills the sign-in form as the stub admin and waits for the home page.
func (a *testApp) signIn(t *testing.T, page playwright.Page) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/signin"); err != nil {
		t.Fatalf("failed to navigate to sign in: %v", err)
	}
	if err := page.Locator("input[name=email]").Fill("admin@glamour.test"); err != nil {
		t.Fatalf("failed to fill email: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill("secret1"); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("main button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to click sign in: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("sign in did not redirect home: %v", err)
	}
}
