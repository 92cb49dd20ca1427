package stores

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sessionStore "glamour/internal/adapters/storage/session"
	domain "glamour/internal/domain/session"
)

func adaSignUp() domain.SignUpInput {
	return domain.SignUpInput{
		Name:        "Ada",
		Email:       "a@x.com",
		Password:    "secret1",
		PhoneNumber: "+1555",
		Age:         30,
		Gender:      "female",
	}
}

func adaUser(verified bool) map[string]any {
	return map[string]any{"_id": "u1", "name": "Ada", "email": "a@x.com", "role": "user", "isVerified": verified}
}

func newAuth(t *testing.T) (*AuthStore, *fakeAPI, *sessionStore.MemoryStore) {
	t.Helper()
	fa := newFakeAPI()
	mem := sessionStore.NewMemoryStore()
	return NewAuthStore("client-1", fa, mem), fa, mem
}

func TestSignUp_MissingFieldMakesNoRequest(t *testing.T) {
	s, fa, _ := newAuth(t)
	in := adaSignUp()
	in.Gender = ""

	err := s.SignUp(context.Background(), in)
	if !IsValidation(err) || !errors.Is(err, domain.ErrAllFieldsRequired) {
		t.Fatalf("err = %v, want validation ErrAllFieldsRequired", err)
	}
	if fa.callCount() != 0 {
		t.Errorf("made %d API calls, want 0", fa.callCount())
	}
	if s.LastError() != "All fields are required" {
		t.Errorf("LastError = %q", s.LastError())
	}
}

func TestSignUp_Success(t *testing.T) {
	s, fa, mem := newAuth(t)
	fa.on(http.MethodPost, "/auth/register", http.StatusCreated, map[string]any{
		"newUser":     adaUser(false),
		"accessToken": "t1",
	})

	if err := s.SignUp(context.Background(), adaSignUp()); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	got := s.Session()
	if !got.IsAuthenticated || !got.NeedsVerification || got.User == nil || got.User.IsVerified {
		t.Errorf("session = %+v", got)
	}
	if got.Token != "t1" {
		t.Errorf("Token = %q", got.Token)
	}
	if s.State() != domain.StatePendingVerification {
		t.Errorf("State = %q", s.State())
	}

	snap, ok, _ := mem.Load(context.Background(), "client-1")
	if !ok || snap.Token != "t1" || !snap.IsAuthenticated {
		t.Errorf("persisted snapshot = %+v, ok %v", snap, ok)
	}
}

func TestSignUp_APIErrorKeepsState(t *testing.T) {
	s, fa, mem := newAuth(t)
	fa.on(http.MethodPost, "/auth/register", http.StatusConflict, map[string]any{"message": "User already exists"})

	err := s.SignUp(context.Background(), adaSignUp())
	var aerr *ActionError
	if !errors.As(err, &aerr) || aerr.Message != "User already exists" || aerr.Status != http.StatusConflict {
		t.Fatalf("err = %#v", err)
	}
	if !reflect.DeepEqual(s.Session(), domain.Empty()) {
		t.Errorf("session changed on failure: %+v", s.Session())
	}
	if s.LastError() != "User already exists" {
		t.Errorf("LastError = %q", s.LastError())
	}
	if mem.Len() != 0 {
		t.Error("failed sign-up should not persist")
	}
}

func TestVerifyEmail_AfterSignUp(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/register", http.StatusCreated, map[string]any{"newUser": adaUser(false), "accessToken": "t1"})
	fa.on(http.MethodPost, "/auth/verify-email", http.StatusOK, map[string]any{"user": adaUser(true)})
	ctx := context.Background()

	if err := s.SignUp(ctx, adaSignUp()); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := s.VerifyEmail(ctx, domain.VerifyInput{Email: "a@x.com", Code: "123456"}); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	got := s.Session()
	if got.NeedsVerification || !got.User.IsVerified {
		t.Errorf("session = %+v", got)
	}
	if s.State() != domain.StateAuthenticated {
		t.Errorf("State = %q", s.State())
	}
	if got.Token != "t1" {
		t.Error("verification must keep the token")
	}
}

func TestSignIn_UnverifiedSetsFlag(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusForbidden, map[string]any{"message": "Please verify your email before logging in"})

	err := s.SignIn(context.Background(), domain.Credentials{Email: "a@x.com", Password: "p"})
	var aerr *ActionError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want ActionError", err)
	}
	got := s.Session()
	if !got.NeedsVerification || got.IsAuthenticated {
		t.Errorf("session = %+v", got)
	}
	if s.State() != domain.StatePendingVerification {
		t.Errorf("State = %q", s.State())
	}
}

func TestSignIn_StructuredCodeSetsFlag(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusForbidden, map[string]any{"message": "Account pending", "code": domain.CodeEmailUnverified})

	_ = s.SignIn(context.Background(), domain.Credentials{Email: "a@x.com", Password: "p"})
	if !s.Session().NeedsVerification {
		t.Error("EMAIL_UNVERIFIED code should set NeedsVerification")
	}
}

func TestSignIn_WrongPasswordDoesNotSetFlag(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})

	_ = s.SignIn(context.Background(), domain.Credentials{Email: "a@x.com", Password: "bad"})
	if s.Session().NeedsVerification {
		t.Error("invalid credentials should not set NeedsVerification")
	}
}

func TestSignIn_Success(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "t2"})

	if err := s.SignIn(context.Background(), domain.Credentials{Email: "a@x.com", Password: "p"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if s.State() != domain.StateAuthenticated || s.Token() != "t2" {
		t.Errorf("state %q token %q", s.State(), s.Token())
	}
}

func TestSignOut_ResetsToEmpty(t *testing.T) {
	s, fa, mem := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "t2"})
	ctx := context.Background()
	if err := s.SignIn(ctx, domain.Credentials{Email: "a@x.com", Password: "p"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	s.SignOut(ctx)

	if !reflect.DeepEqual(s.Session(), domain.Empty()) {
		t.Errorf("session = %+v, want empty", s.Session())
	}
	if _, ok, _ := mem.Load(ctx, "client-1"); ok {
		t.Error("persisted snapshot should be deleted")
	}
	if s.State() != domain.StateAnonymous {
		t.Errorf("State = %q", s.State())
	}
}

func TestSignIn_DuplicateSubmission(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "t2"})
	fa.gate = make(chan struct{})
	fa.started = make(chan struct{}, 1)
	ctx := context.Background()
	creds := domain.Credentials{Email: "a@x.com", Password: "p"}

	done := make(chan error, 1)
	go func() { done <- s.SignIn(ctx, creds) }()
	<-fa.started

	if !s.Loading() {
		t.Error("store should be loading while sign-in is in flight")
	}
	if err := s.SignIn(ctx, creds); !errors.Is(err, ErrDuplicateSubmission) {
		t.Errorf("second SignIn err = %v, want ErrDuplicateSubmission", err)
	}

	close(fa.gate)
	if err := <-done; err != nil {
		t.Fatalf("first SignIn: %v", err)
	}
	if fa.callCount() != 1 {
		t.Errorf("API calls = %d, want 1", fa.callCount())
	}
	if s.Loading() {
		t.Error("store still loading after completion")
	}
}

func TestSignOut_DiscardsLateResponse(t *testing.T) {
	s, fa, mem := newAuth(t)
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "late"})
	fa.gate = make(chan struct{})
	fa.started = make(chan struct{}, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.SignIn(ctx, domain.Credentials{Email: "a@x.com", Password: "p"}) }()
	<-fa.started

	s.SignOut(ctx)
	close(fa.gate)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if !reflect.DeepEqual(s.Session(), domain.Empty()) {
		t.Errorf("late response leaked into session: %+v", s.Session())
	}
	if mem.Len() != 0 {
		t.Error("late response should not be persisted")
	}
}

func TestSignUp_ReportsRegistering(t *testing.T) {
	s, fa, _ := newAuth(t)
	fa.on(http.MethodPost, "/auth/register", http.StatusCreated, map[string]any{"newUser": adaUser(false), "accessToken": "t1"})
	fa.gate = make(chan struct{})
	fa.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- s.SignUp(context.Background(), adaSignUp()) }()
	<-fa.started
	if s.State() != domain.StateRegistering {
		t.Errorf("State = %q, want registering", s.State())
	}
	close(fa.gate)
	<-done
	if s.State() != domain.StatePendingVerification {
		t.Errorf("State = %q, want pending verification", s.State())
	}
}

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	mem := sessionStore.NewMemoryStore()
	user := &domain.UserProfile{ID: "u1", Email: "a@x.com", IsVerified: true}
	valid := signToken(t, time.Now().Add(time.Hour))
	_ = mem.Save(ctx, "c1", domain.Snapshot{User: user, Token: valid, IsAuthenticated: true})

	s := NewAuthStore("c1", newFakeAPI(), mem)
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if s.Token() != valid || s.State() != domain.StateAuthenticated {
		t.Errorf("restored state %q token %q", s.State(), s.Token())
	}
}

func TestRestore_ExpiredTokenDiscarded(t *testing.T) {
	ctx := context.Background()
	mem := sessionStore.NewMemoryStore()
	expired := signToken(t, time.Now().Add(-time.Hour))
	_ = mem.Save(ctx, "c1", domain.Snapshot{User: &domain.UserProfile{Email: "a@x.com"}, Token: expired, IsAuthenticated: true})

	s := NewAuthStore("c1", newFakeAPI(), mem)
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(s.Session(), domain.Empty()) {
		t.Errorf("session = %+v, want empty", s.Session())
	}
	if mem.Len() != 0 {
		t.Error("expired snapshot should be deleted")
	}
}

func TestUpdateProfile_RequiresToken(t *testing.T) {
	s, fa, _ := newAuth(t)
	_, err := s.UpdateProfile(context.Background(), domain.ProfileUpdate{Name: "Ada"})
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if fa.callCount() != 0 {
		t.Error("no request expected without a token")
	}
	if s.LastError() != "No access token available" {
		t.Errorf("LastError = %q", s.LastError())
	}
}

func TestUpdateProfile_ReplacesUser(t *testing.T) {
	s, fa, mem := newAuth(t)
	ctx := context.Background()
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(true), "accessToken": "t2"})
	updated := adaUser(true)
	updated["name"] = "Ada Lovelace"
	updated["age"] = 36
	fa.on(http.MethodPut, "/auth/profile", http.StatusOK, map[string]any{"user": updated})

	if err := s.SignIn(ctx, domain.Credentials{Email: "a@x.com", Password: "p"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	u, err := s.UpdateProfile(ctx, domain.ProfileUpdate{Name: "Ada Lovelace", Age: 36})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Name != "Ada Lovelace" || s.Session().User.Age != 36 {
		t.Errorf("user = %+v", s.Session().User)
	}
	if call := fa.lastCall(); call.Token != "t2" || call.Method != http.MethodPut {
		t.Errorf("last call = %+v", call)
	}
	snap, _, _ := mem.Load(ctx, "client-1")
	if snap.User == nil || snap.User.Name != "Ada Lovelace" {
		t.Errorf("persisted user = %+v", snap.User)
	}
}

func TestGetProfile(t *testing.T) {
	s, fa, _ := newAuth(t)
	ctx := context.Background()
	fa.on(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{"user": adaUser(false), "accessToken": "t2"})
	fa.on(http.MethodGet, "/auth/profile", http.StatusOK, map[string]any{"user": adaUser(true)})

	_ = s.SignIn(ctx, domain.Credentials{Email: "a@x.com", Password: "p"})
	u, err := s.GetProfile(ctx)
	if err != nil || !u.IsVerified {
		t.Fatalf("GetProfile = %+v, %v", u, err)
	}
}

func TestResendVerificationCode(t *testing.T) {
	s, fa, _ := newAuth(t)
	if err := s.ResendVerificationCode(context.Background(), " "); !errors.Is(err, domain.ErrEmailRequired) {
		t.Errorf("blank email: err = %v", err)
	}
	fa.on(http.MethodPost, "/auth/resend-verification", http.StatusOK, map[string]any{"message": "sent"})
	if err := s.ResendVerificationCode(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	body, _ := fa.lastCall().Body.(map[string]string)
	if body["email"] != "a@x.com" {
		t.Errorf("body = %v", fa.lastCall().Body)
	}
}
