package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"glamour/internal/adapters/api"
	sessionStore "glamour/internal/adapters/storage/session"
	domain "glamour/internal/domain/session"
)

// Action names, used for duplicate detection and logging.
const (
	actSignUp        = "signup"
	actSignIn        = "signin"
	actVerify        = "verify_email"
	actResend        = "resend_verification"
	actGetProfile    = "get_profile"
	actUpdateProfile = "update_profile"
)

// AuthStore is one client's authentication state machine.
// INVARIANT: session.Validate() == nil at all times
type AuthStore struct {
	actions

	clientID    string
	api         API
	persist     sessionStore.Store
	now         func() time.Time
	session     domain.Session
	registering bool

	// persistMu orders snapshot writes so the last one always reflects the latest state.
	persistMu sync.Mutex
}

// NewAuthStore creates an anonymous AuthStore. persist may be nil.
func NewAuthStore(clientID string, client API, persist sessionStore.Store) *AuthStore {
	return &AuthStore{
		clientID: clientID,
		api:      client,
		persist:  persist,
		now:      time.Now,
		session:  domain.Empty(),
	}
}

// Restore loads the persisted snapshot for this client, if any. A JWT whose
// exp has passed is discarded along with the snapshot.
// POST: session is the restored snapshot or Empty
func (s *AuthStore) Restore(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	snap, ok, err := s.persist.Load(ctx, s.clientID)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return nil
	}
	if domain.TokenExpired(snap.Token, s.now()) {
		slog.Info("auth_event", "event", "session_expired", "client_id", s.clientID)
		return s.persist.Delete(ctx, s.clientID)
	}
	restored := snap.Restore()
	s.mu.Lock()
	s.session = restored
	s.mu.Unlock()
	return nil
}

// Session returns a copy of the current session.
func (s *AuthStore) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.session
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out
}

// Token returns the current bearer token, or "".
func (s *AuthStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Token
}

// State reports the lifecycle state, including Registering while a sign-up is in flight.
func (s *AuthStore) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registering {
		return domain.StateRegistering
	}
	return s.session.State()
}

type authEnvelope struct {
	User        *domain.UserProfile `json:"user"`
	NewUser     *domain.UserProfile `json:"newUser"`
	AccessToken string              `json:"accessToken"`
}

// SignUp registers a new account.
// PRE: none; a missing field fails locally without a network call
// POST: on success IsAuthenticated and NeedsVerification are true and the snapshot is persisted
func (s *AuthStore) SignUp(ctx context.Context, in domain.SignUpInput) error {
	if err := in.Validate(); err != nil {
		return s.reject(err)
	}
	t, err := s.begin(actSignUp)
	if err != nil {
		return err
	}
	defer s.end(t)

	s.mu.Lock()
	s.registering = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.registering = false
		s.mu.Unlock()
	}()

	res := s.api.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/register", Body: in})
	if !res.Success {
		slog.Info("auth_event", "event", "signup_failed", "email", in.Email, "status", res.Status)
		return s.fail(t, actionError(actSignUp, res))
	}
	var env authEnvelope
	if err := res.Decode(&env); err != nil || env.AccessToken == "" {
		return s.fail(t, &ActionError{Action: actSignUp, Message: api.FallbackError, Status: res.Status})
	}

	err = s.commit(t, func() {
		s.session = domain.Session{
			User:              env.NewUser,
			Token:             env.AccessToken,
			IsAuthenticated:   true,
			NeedsVerification: true,
		}
	})
	if err != nil {
		return err
	}
	slog.Info("auth_event", "event", "signup_success", "email", in.Email)
	s.save(ctx)
	return nil
}

// SignIn authenticates with email and password.
// POST: on success the session holds the user and token with NeedsVerification false;
// on failure NeedsVerification reflects whether the API reported an unverified email
func (s *AuthStore) SignIn(ctx context.Context, c domain.Credentials) error {
	if err := c.Validate(); err != nil {
		return s.reject(err)
	}
	t, err := s.begin(actSignIn)
	if err != nil {
		return err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/login", Body: c})
	if !res.Success {
		unverified := domain.IsUnverifiedSignal(res.Code, res.Error)
		aerr := actionError(actSignIn, res)
		if cerr := s.commit(t, func() {
			s.lastErr = aerr.Message
			s.session.NeedsVerification = unverified
		}); cerr != nil {
			return cerr
		}
		slog.Info("auth_event", "event", "signin_failed", "email", c.Email, "unverified", unverified)
		return aerr
	}
	var env authEnvelope
	if err := res.Decode(&env); err != nil || env.AccessToken == "" {
		return s.fail(t, &ActionError{Action: actSignIn, Message: api.FallbackError, Status: res.Status})
	}

	if err := s.commit(t, func() {
		s.session = domain.Session{
			User:            env.User,
			Token:           env.AccessToken,
			IsAuthenticated: true,
		}
	}); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "signin_success", "email", c.Email)
	s.save(ctx)
	return nil
}

// VerifyEmail submits the emailed code.
// POST: on success the user is replaced and NeedsVerification is false
func (s *AuthStore) VerifyEmail(ctx context.Context, in domain.VerifyInput) error {
	if err := in.Validate(); err != nil {
		return s.reject(err)
	}
	t, err := s.begin(actVerify)
	if err != nil {
		return err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/verify-email", Body: in})
	if !res.Success {
		slog.Info("auth_event", "event", "verify_failed", "email", in.Email, "status", res.Status)
		return s.fail(t, actionError(actVerify, res))
	}
	var env authEnvelope
	if err := res.Decode(&env); err != nil || env.User == nil {
		return s.fail(t, &ActionError{Action: actVerify, Message: api.FallbackError, Status: res.Status})
	}

	if err := s.commit(t, func() {
		s.session.User = env.User
		s.session.NeedsVerification = false
	}); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "email_verified", "email", in.Email)
	s.save(ctx)
	return nil
}

// ResendVerificationCode asks the API to email a new code. The caller enforces the cooldown.
func (s *AuthStore) ResendVerificationCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return s.reject(domain.ErrEmailRequired)
	}
	t, err := s.begin(actResend)
	if err != nil {
		return err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/auth/resend-verification",
		Body:   map[string]string{"email": email},
	})
	if !res.Success {
		return s.fail(t, actionError(actResend, res))
	}
	slog.Info("auth_event", "event", "verification_resent", "email", email)
	return nil
}

// SignOut resets the session to its initial state, forgets the persisted
// snapshot and discards the responses of any in-flight request.
// POST: Session() equals domain.Empty()
func (s *AuthStore) SignOut(ctx context.Context) {
	s.mu.Lock()
	email := s.session.Email()
	s.session = domain.Empty()
	s.registering = false
	s.invalidateLocked()
	s.mu.Unlock()

	if s.persist != nil {
		s.persistMu.Lock()
		if err := s.persist.Delete(context.WithoutCancel(ctx), s.clientID); err != nil {
			slog.Warn("session_persist_failed", "op", "delete", "client_id", s.clientID, "error", err)
		}
		s.persistMu.Unlock()
	}
	slog.Info("auth_event", "event", "signout", "email", email)
}

// GetProfile refreshes the user record from the API.
// PRE: a token is held
func (s *AuthStore) GetProfile(ctx context.Context) (*domain.UserProfile, error) {
	token := s.Token()
	if token == "" {
		return nil, s.reject(ErrNoToken)
	}
	t := s.beginRead(actGetProfile)
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodGet, Path: "/auth/profile", Token: token})
	return s.applyProfile(ctx, t, actGetProfile, res)
}

// UpdateProfile sends the edited fields; the response replaces the whole user.
// PRE: a token is held
func (s *AuthStore) UpdateProfile(ctx context.Context, u domain.ProfileUpdate) (*domain.UserProfile, error) {
	token := s.Token()
	if token == "" {
		return nil, s.reject(ErrNoToken)
	}
	if err := u.Validate(); err != nil {
		return nil, s.reject(err)
	}
	t, err := s.begin(actUpdateProfile)
	if err != nil {
		return nil, err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodPut, Path: "/auth/profile", Token: token, Body: u})
	user, err := s.applyProfile(ctx, t, actUpdateProfile, res)
	if err == nil {
		slog.Info("auth_event", "event", "profile_updated", "email", user.Email)
	}
	return user, err
}

func (s *AuthStore) applyProfile(ctx context.Context, t ticket, action string, res api.Result) (*domain.UserProfile, error) {
	if !res.Success {
		return nil, s.fail(t, actionError(action, res))
	}
	var env authEnvelope
	if err := res.Decode(&env); err != nil || env.User == nil {
		return nil, s.fail(t, &ActionError{Action: action, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() { s.session.User = env.User }); err != nil {
		return nil, err
	}
	s.save(ctx)
	u := *env.User
	return &u, nil
}

// save writes the current snapshot. Failures are logged, never surfaced:
// the in-memory session stays authoritative for this process.
func (s *AuthStore) save(ctx context.Context) {
	if s.persist == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	snap := s.session.Snapshot()
	s.mu.Unlock()

	if err := s.persist.Save(context.WithoutCancel(ctx), s.clientID, snap); err != nil {
		slog.Warn("session_persist_failed", "op", "save", "client_id", s.clientID, "error", err)
	}
}

// IsValidation reports whether err came from a local input check.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
