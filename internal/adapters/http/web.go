package web

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glamour/internal/adapters/email"
	"glamour/internal/adapters/http/middleware"
	"glamour/internal/adapters/http/perf"
	"glamour/internal/application/stores"
)

// DefaultRateLimit is the per-IP requests-per-second allowance.
const DefaultRateLimit = 10

// Deps holds everything the web layer needs. Nothing is global.
type Deps struct {
	Registry       *stores.Registry
	Cookies        *middleware.ClientCookies
	Collector      *perf.Collector
	Contact        email.ContactMailer
	Metrics        http.Handler // defaults to promhttp.Handler()
	CSRFKey        []byte
	Secure         bool
	TrustedOrigins []string
	RateLimit      int
	SlowRequest    time.Duration
}

// Server renders the Glamour Events pages.
type Server struct {
	deps  Deps
	pages *renderer
	now   func() time.Time
}

// NewServer parses the embedded templates.
func NewServer(d Deps) (*Server, error) {
	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	if d.RateLimit <= 0 {
		d.RateLimit = DefaultRateLimit
	}
	return &Server{deps: d, pages: pages, now: time.Now}, nil
}

// Routes registers every page. Guards run per request inside each route.
func (s *Server) Routes() *http.ServeMux {
	verified := middleware.RequireVerified
	admin := middleware.RequireAdmin
	h := func(f http.HandlerFunc) http.Handler { return f }

	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.deps.Metrics)

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /contact", s.handleContact)

	mux.HandleFunc("GET /signup", s.handleSignUpPage)
	mux.HandleFunc("POST /signup", s.handleSignUp)
	mux.HandleFunc("GET /signin", s.handleSignInPage)
	mux.HandleFunc("POST /signin", s.handleSignIn)
	mux.HandleFunc("POST /signout", s.handleSignOut)
	mux.HandleFunc("GET /verify-email", s.handleVerifyPage)
	mux.HandleFunc("POST /verify-email", s.handleVerify)
	mux.HandleFunc("POST /verify-email/resend", s.handleResend)

	mux.Handle("GET /profile", verified(h(s.handleProfilePage)))
	mux.Handle("POST /profile", verified(h(s.handleProfileUpdate)))

	mux.Handle("GET /create-event", verified(h(s.handleCreateEventPage)))
	mux.Handle("POST /create-event", verified(h(s.handleCreateEvent)))
	mux.HandleFunc("GET /events/{id}", s.handleEventDetail)
	mux.HandleFunc("GET /events/{id}/stats", s.handleEventStats)
	mux.Handle("POST /events/{id}/delete", admin(h(s.handleEventDelete)))

	mux.Handle("GET /events/{id}/review", verified(h(s.handleReviewPage)))
	mux.Handle("POST /events/{id}/review", verified(h(s.handleReviewCreate)))
	mux.Handle("GET /reviews/{id}/edit", verified(h(s.handleReviewEditPage)))
	mux.Handle("POST /reviews/{id}/edit", verified(h(s.handleReviewUpdate)))
	mux.Handle("POST /reviews/{id}/delete", verified(h(s.handleReviewDelete)))
	mux.Handle("POST /reviews/{id}/reply", admin(h(s.handleReviewReply)))

	mux.Handle("GET /admin/dashboard", admin(h(s.handleAdminDashboard)))

	// Unknown paths, and known paths with the wrong method, go home.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	return mux
}

// Handler returns the routes wrapped in the middleware stack. The rate
// limiter's sweeper stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	limiter := middleware.NewRateLimiter(ctx, s.deps.RateLimit, time.Second)

	// Timing -> RateLimit -> SecurityHeaders -> CSRF -> Client -> mux
	return middleware.Chain(s.Routes(),
		middleware.Client(s.deps.Cookies, s.deps.Registry),
		middleware.CSRF(s.deps.CSRFKey, middleware.CSRFOptions{
			Secure:         s.deps.Secure,
			TrustedOrigins: s.deps.TrustedOrigins,
		}),
		middleware.SecurityHeaders,
		middleware.RateLimit(limiter),
		middleware.Timing(s.deps.Collector, s.deps.SlowRequest),
	)
}

// NewMux wires the HTTP handlers for the app.
func NewMux(ctx context.Context, d Deps) (http.Handler, error) {
	s, err := NewServer(d)
	if err != nil {
		return nil, err
	}
	return s.Handler(ctx), nil
}

func bundleOf(r *http.Request) (*stores.Bundle, bool) {
	return middleware.BundleFromContext(r.Context())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
