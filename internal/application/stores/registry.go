package stores

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sessionStore "glamour/internal/adapters/storage/session"
)

// DefaultResendCooldown is the wait between verification-code resends.
const DefaultResendCooldown = 60 * time.Second

const restoreTimeout = 5 * time.Second

// Cooldown gates a repeatable action to once per period.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	next   time.Time
	now    func() time.Time
}

// NewCooldown creates an open cooldown.
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period, now: time.Now}
}

// Remaining returns how long until the action may run again; 0 means now.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.next.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}

// Start begins a new cooldown period.
func (c *Cooldown) Start() {
	c.mu.Lock()
	c.next = c.now().Add(c.period)
	c.mu.Unlock()
}

// Bundle is the set of stores owned by one browser client.
type Bundle struct {
	ClientID string
	Auth     *AuthStore
	Events   *EventStore
	Feedback *FeedbackStore
	Resend   *Cooldown

	mu       sync.Mutex
	lastSeen time.Time
	restore  sync.Once
}

// SignOut resets the session and discards every store's in-flight responses.
// POST: Auth.Session() equals the empty session; event and review caches are empty
func (b *Bundle) SignOut(ctx context.Context) {
	b.Auth.SignOut(ctx)
	b.Events.Invalidate()
	b.Feedback.Invalidate()
}

func (b *Bundle) touch(now time.Time) {
	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()
}

func (b *Bundle) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	API            API
	Persist        sessionStore.Store // may be nil
	IdleTTL        time.Duration
	ResendCooldown time.Duration
}

// Registry hands out one Bundle per client ID and evicts idle bundles.
// Evicted clients are rebuilt from the persisted snapshot on their next request.
type Registry struct {
	mu      sync.Mutex
	bundles map[string]*Bundle
	cfg     RegistryConfig
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = sessionStore.DefaultTTL
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = DefaultResendCooldown
	}
	return &Registry{bundles: make(map[string]*Bundle), cfg: cfg, now: time.Now}
}

// Get returns the bundle for clientID, creating and restoring it on first use.
// PRE: clientID is non-empty
// POST: the returned bundle is registered and marked as seen now
func (r *Registry) Get(ctx context.Context, clientID string) *Bundle {
	r.mu.Lock()
	b, ok := r.bundles[clientID]
	if !ok {
		b = r.newBundle(clientID)
		r.bundles[clientID] = b
	}
	r.mu.Unlock()

	b.touch(r.now())
	// Concurrent first requests wait here until the snapshot is loaded. The
	// restore runs once per bundle, so it outlives a disconnecting first request.
	b.restore.Do(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		if err := b.Auth.Restore(rctx); err != nil {
			slog.Warn("session_restore_failed", "client_id", clientID, "error", err)
		}
	})
	return b
}

func (r *Registry) newBundle(clientID string) *Bundle {
	auth := NewAuthStore(clientID, r.cfg.API, r.cfg.Persist)
	return &Bundle{
		ClientID: clientID,
		Auth:     auth,
		Events:   NewEventStore(r.cfg.API, auth),
		Feedback: NewFeedbackStore(r.cfg.API, auth),
		Resend:   NewCooldown(r.cfg.ResendCooldown),
	}
}

// Len returns the number of live bundles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}

// Sweep evicts bundles idle for longer than the TTL.
// POST: returns the number evicted
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, b := range r.bundles {
		if b.idleSince().Before(cutoff) {
			delete(r.bundles, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Info("client_bundles_evicted", "count", n, "live", r.Len())
			}
		}
	}
}
