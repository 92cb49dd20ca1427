package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"glamour/internal/application/stores"
)

// ClientCookieName holds the signed, encrypted client ID.
const ClientCookieName = "glamour_client"

type contextKey string

const bundleContextKey contextKey = "bundle"

// ClientCookies encodes and decodes the client-ID cookie.
type ClientCookies struct {
	codec  *securecookie.SecureCookie
	secure bool
	maxAge time.Duration
}

// NewClientCookies creates the cookie codec.
// PRE: hashKey is 64 bytes, encKey is 32 bytes
func NewClientCookies(hashKey, encKey []byte, secure bool, maxAge time.Duration) *ClientCookies {
	codec := securecookie.New(hashKey, encKey)
	codec.MaxAge(int(maxAge.Seconds()))
	return &ClientCookies{codec: codec, secure: secure, maxAge: maxAge}
}

// Read returns the client ID carried by r, if the cookie is present and authentic.
func (c *ClientCookies) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(ClientCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var id string
	if err := c.codec.Decode(ClientCookieName, cookie.Value, &id); err != nil {
		slog.Debug("client_cookie_rejected", "error", err)
		return "", false
	}
	return id, id != ""
}

// Write sets the cookie for id, refreshing its expiry.
func (c *ClientCookies) Write(w http.ResponseWriter, id string) error {
	value, err := c.codec.Encode(ClientCookieName, id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Bundles hands out the per-client store bundle.
type Bundles interface {
	Get(ctx context.Context, clientID string) *stores.Bundle
}

// Client attaches the caller's store bundle to the request context, issuing
// a new client ID when the cookie is missing or forged.
// Static assets, health checks and scrapes never get a bundle.
func Client(cookies *ClientCookies, bundles Bundles) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipClient(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := cookies.Read(r)
			if !ok {
				id = uuid.NewString()
			}
			if err := cookies.Write(w, id); err != nil {
				slog.Error("client_cookie_failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			b := bundles.Get(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ContextWithBundle(r.Context(), b)))
		})
	}
}

func skipClient(path string) bool {
	return strings.HasPrefix(path, "/static/") || path == "/healthz" || path == "/metrics"
}

// BundleFromContext returns the bundle attached by Client.
func BundleFromContext(ctx context.Context) (*stores.Bundle, bool) {
	b, ok := ctx.Value(bundleContextKey).(*stores.Bundle)
	return b, ok && b != nil
}

// ContextWithBundle returns a context carrying b.
// Used by Client and by handler tests.
func ContextWithBundle(ctx context.Context, b *stores.Bundle) context.Context {
	return context.WithValue(ctx, bundleContextKey, b)
}
