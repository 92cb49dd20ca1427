// Package config reads server settings from the environment (and a .env file
// when present) and derives the cookie and CSRF keys from one secret.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// Session backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// DefaultAPIBaseURL is the production venue API.
const DefaultAPIBaseURL = "https://glamour-events-sever.onrender.com/api"

// Config holds all runtime settings.
type Config struct {
	Addr           string
	Env            string
	APIBaseURL     string
	Secret         []byte
	SessionBackend string
	DBPath         string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration
	ResendCooldown time.Duration
	RateLimit      int
	TrustedOrigins []string
	ResendKey      string
	EmailFrom      string
	ContactInbox   string
	SlowRequest    time.Duration
	SlowQuery      time.Duration
}

// IsProduction reports whether GLAMOUR_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment.
// POST: returns an error for malformed values or a missing production secret
func Load() (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	c := &Config{
		Addr:           getEnv("GLAMOUR_ADDR", ":8080"),
		Env:            getEnv("GLAMOUR_ENV", "development"),
		APIBaseURL:     strings.TrimRight(getEnv("GLAMOUR_API_BASE_URL", DefaultAPIBaseURL), "/"),
		SessionBackend: getEnv("GLAMOUR_SESSION_BACKEND", BackendSQLite),
		DBPath:         getEnv("GLAMOUR_DB_PATH", "glamour.db"),
		RedisAddr:      getEnv("GLAMOUR_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("GLAMOUR_REDIS_PASSWORD"),
		ResendKey:      os.Getenv("GLAMOUR_RESEND_KEY"),
		EmailFrom:      getEnv("GLAMOUR_EMAIL_FROM", "Glamour Events <noreply@glamourevents.example>"),
		ContactInbox:   os.Getenv("GLAMOUR_CONTACT_INBOX"),
	}

	var err error
	if c.RedisDB, err = getInt("GLAMOUR_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.RateLimit, err = getInt("GLAMOUR_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if c.SessionTTL, err = getDuration("GLAMOUR_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.ResendCooldown, err = getDuration("GLAMOUR_RESEND_COOLDOWN", 60*time.Second); err != nil {
		return nil, err
	}
	slowReq, err := getInt("GLAMOUR_SLOW_REQUEST_MS", 200)
	if err != nil {
		return nil, err
	}
	c.SlowRequest = time.Duration(slowReq) * time.Millisecond
	slowQuery, err := getInt("GLAMOUR_SLOW_QUERY_MS", 50)
	if err != nil {
		return nil, err
	}
	c.SlowQuery = time.Duration(slowQuery) * time.Millisecond

	switch c.SessionBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("GLAMOUR_SESSION_BACKEND must be sqlite, redis or memory, got %q", c.SessionBackend)
	}

	c.TrustedOrigins = splitList(getEnv("GLAMOUR_TRUSTED_ORIGINS", "localhost:8080,127.0.0.1:8080"))

	if c.Secret, err = loadSecret(c.IsProduction()); err != nil {
		return nil, err
	}
	return c, nil
}

// loadSecret decodes GLAMOUR_SECRET, or generates a random one outside production.
func loadSecret(production bool) ([]byte, error) {
	if keyHex := os.Getenv("GLAMOUR_SECRET"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) < 32 {
			return nil, errors.New("GLAMOUR_SECRET must be at least 64 hex characters (32 bytes)")
		}
		return key, nil
	}
	if production {
		return nil, errors.New("GLAMOUR_SECRET is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	log.Println("WARNING: using random GLAMOUR_SECRET (client cookies won't survive restart). Set GLAMOUR_SECRET for production.")
	return key, nil
}

// Keys are the purpose-specific keys derived from the secret.
type Keys struct {
	CSRF       []byte // 32 bytes, gorilla/csrf auth key
	CookieHash []byte // 64 bytes, securecookie HMAC key
	CookieEnc  []byte // 32 bytes, securecookie AES-256 key
}

// DeriveKeys expands the secret into independent keys with HKDF-SHA256.
// PRE: secret is non-empty
// POST: the same secret always yields the same keys
func DeriveKeys(secret []byte) (Keys, error) {
	derive := func(info string, n int) ([]byte, error) {
		out := make([]byte, n)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
			return nil, fmt.Errorf("derive %s key: %w", info, err)
		}
		return out, nil
	}
	var k Keys
	var err error
	if k.CSRF, err = derive("glamour-csrf", 32); err != nil {
		return Keys{}, err
	}
	if k.CookieHash, err = derive("glamour-cookie-hash", 64); err != nil {
		return Keys{}, err
	}
	if k.CookieEnc, err = derive("glamour-cookie-enc", 32); err != nil {
		return Keys{}, err
	}
	return k, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 60s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
