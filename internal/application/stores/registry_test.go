package stores

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	sessionStore "glamour/internal/adapters/storage/session"
	domain "glamour/internal/domain/session"
)

func TestRegistry_SameClientSameBundle(t *testing.T) {
	r := NewRegistry(RegistryConfig{API: newFakeAPI()})
	ctx := context.Background()
	a := r.Get(ctx, "c1")
	if r.Get(ctx, "c1") != a {
		t.Error("same client should get the same bundle")
	}
	if r.Get(ctx, "c2") == a {
		t.Error("different clients must not share a bundle")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRegistry_RestoresFromPersist(t *testing.T) {
	ctx := context.Background()
	mem := sessionStore.NewMemoryStore()
	_ = mem.Save(ctx, "c1", domain.Snapshot{
		User:            &domain.UserProfile{Email: "a@x.com", IsVerified: true},
		Token:           "opaque",
		IsAuthenticated: true,
	})
	r := NewRegistry(RegistryConfig{API: newFakeAPI(), Persist: mem})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok := r.Get(ctx, "c1").Auth.Token(); tok != "opaque" {
				t.Errorf("Token = %q, want restored token", tok)
			}
		}()
	}
	wg.Wait()
}

func TestRegistry_SweepEvictsIdle(t *testing.T) {
	r := NewRegistry(RegistryConfig{API: newFakeAPI(), IdleTTL: time.Minute})
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	ctx := context.Background()
	r.Get(ctx, "old")

	r.now = func() time.Time { return base.Add(50 * time.Second) }
	r.Get(ctx, "fresh")

	r.now = func() time.Time { return base.Add(90 * time.Second) }
	if n := r.Sweep(); n != 1 {
		t.Errorf("Sweep evicted %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestBundle_SignOutClearsEverything(t *testing.T) {
	fa := newFakeAPI()
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "t"})
	fa.on(http.MethodGet, "/events/e1/feedback", http.StatusOK, map[string]any{"data": []any{reviewJSON("r1", 5, "a")}})
	r := NewRegistry(RegistryConfig{API: fa})
	ctx := context.Background()
	b := r.Get(ctx, "c1")

	_ = b.Auth.SignIn(ctx, domain.Credentials{Email: "a@x.com", Password: "p"})
	_, _ = b.Feedback.ListForEvent(ctx, "e1", 1, 10)
	b.SignOut(ctx)

	if !reflect.DeepEqual(b.Auth.Session(), domain.Empty()) {
		t.Errorf("session = %+v", b.Auth.Session())
	}
	if len(b.Feedback.Reviews()) != 0 {
		t.Error("reviews should be cleared on sign-out")
	}
}

func TestBundle_StoresShareToken(t *testing.T) {
	fa := newFakeAPI()
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "shared"})
	fa.on(http.MethodGet, "/admin/data", http.StatusOK, map[string]any{"data": map[string]any{}})
	b := NewRegistry(RegistryConfig{API: fa}).Get(context.Background(), "c1")
	ctx := context.Background()

	_ = b.Auth.SignIn(ctx, domain.Credentials{Email: "a@x.com", Password: "p"})
	if _, err := b.Events.AdminData(ctx); err != nil {
		t.Fatalf("AdminData: %v", err)
	}
	if fa.lastCall().Token != "shared" {
		t.Errorf("token = %q", fa.lastCall().Token)
	}
}

func TestCooldown(t *testing.T) {
	c := NewCooldown(time.Minute)
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if c.Remaining() != 0 {
		t.Error("new cooldown should be open")
	}
	c.Start()
	c.now = func() time.Time { return base.Add(20 * time.Second) }
	if got := c.Remaining(); got != 40*time.Second {
		t.Errorf("Remaining = %v, want 40s", got)
	}
	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if c.Remaining() != 0 {
		t.Error("cooldown should have expired")
	}
}

// ctxStore fails loads whose context is already done, like the SQL and Redis stores.
type ctxStore struct {
	sessionStore.Store
}

func (s ctxStore) Load(ctx context.Context, clientID string) (domain.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, false, err
	}
	return s.Store.Load(ctx, clientID)
}

func TestRegistry_RestoreSurvivesCancelledFirstRequest(t *testing.T) {
	mem := sessionStore.NewMemoryStore()
	_ = mem.Save(context.Background(), "c1", domain.Snapshot{
		User:            &domain.UserProfile{Email: "a@x.com", IsVerified: true},
		Token:           "opaque",
		IsAuthenticated: true,
	})
	r := NewRegistry(RegistryConfig{API: newFakeAPI(), Persist: ctxStore{mem}})

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	if tok := r.Get(gone, "c1").Auth.Token(); tok != "opaque" {
		t.Errorf("token after disconnected first request = %q", tok)
	}
	if tok := r.Get(context.Background(), "c1").Auth.Token(); tok != "opaque" {
		t.Errorf("token on next request = %q", tok)
	}
}
