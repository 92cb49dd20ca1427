package middleware

import (
	"net/http"

	"glamour/internal/application/guards"
	domain "glamour/internal/domain/session"
)

func sessionOf(r *http.Request) domain.Session {
	if b, ok := BundleFromContext(r.Context()); ok {
		return b.Auth.Session()
	}
	return domain.Empty()
}

func apply(w http.ResponseWriter, r *http.Request, d guards.Decision, next http.Handler) {
	if !d.Allow {
		http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		return
	}
	next.ServeHTTP(w, r)
}

// RequireVerified lets through verified, signed-in users only. The decision is
// taken from the current session on every request.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apply(w, r, guards.Protected(sessionOf(r), r.URL.RequestURI()), next)
	})
}

// RequireAdmin lets through signed-in admins only.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apply(w, r, guards.Admin(sessionOf(r)), next)
	})
}
