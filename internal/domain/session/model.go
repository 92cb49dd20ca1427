package session

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"glamour/internal/domain/validation"
)

// Role constants
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// CodeEmailUnverified is the structured error code the API may send for an unverified login.
const CodeEmailUnverified = "EMAIL_UNVERIFIED"

// unverifiedPhrase is the fallback signal in the API's login error text.
const unverifiedPhrase = "verify your email"

// Age bounds accepted by the sign-up and profile forms.
const (
	MinAge = 13
	MaxAge = 120
)

// Domain errors
var (
	ErrAllFieldsRequired   = errors.New("All fields are required")
	ErrCredentialsRequired = errors.New("Email and password are required")
	ErrVerifyRequired      = errors.New("Email and verification code are required")
	ErrEmailRequired       = errors.New("Email is required")
	ErrNameRequired        = errors.New("Name is required")
	ErrInvalidEmail        = errors.New("Please enter a valid email address")
	ErrAgeOutOfRange       = errors.New("Please enter a valid age between 13 and 120")
	ErrPasswordMismatch    = errors.New("Passwords do not match")
	ErrInvalidCode         = errors.New("Verification code must be exactly 6 digits")
	ErrTokenMissing        = errors.New("authenticated session has no token")
)

// State is a position in the authentication lifecycle.
type State string

const (
	StateAnonymous           State = "anonymous"
	StateRegistering         State = "registering"
	StatePendingVerification State = "pending_verification"
	StateAuthenticated       State = "authenticated"
)

// UserProfile is the user record as returned by the API. It is replaced
// wholesale on every auth or profile response.
type UserProfile struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Age         int       `json:"age"`
	Gender      string    `json:"gender"`
	Role        string    `json:"role"`
	IsVerified  bool      `json:"isVerified"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsAdmin returns true if the profile has the admin role.
func (u *UserProfile) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session is the client's view of the current user and bearer token.
// INVARIANT: IsAuthenticated implies Token != ""
type Session struct {
	User              *UserProfile
	Token             string
	IsAuthenticated   bool
	NeedsVerification bool
}

// Empty returns the initial anonymous session.
func Empty() Session {
	return Session{}
}

// Validate checks the session invariant.
func (s Session) Validate() error {
	if s.IsAuthenticated && s.Token == "" {
		return ErrTokenMissing
	}
	return nil
}

// State derives the lifecycle state. Registering is only known to the
// store (a sign-up in flight) and is never derived here.
func (s Session) State() State {
	if !s.IsAuthenticated {
		if s.NeedsVerification {
			return StatePendingVerification
		}
		return StateAnonymous
	}
	if s.NeedsVerification || s.User == nil || !s.User.IsVerified {
		return StatePendingVerification
	}
	return StateAuthenticated
}

// Email returns the signed-in user's email, or "".
func (s Session) Email() string {
	if s.User == nil {
		return ""
	}
	return s.User.Email
}

// Snapshot is the persisted subset of a Session. NeedsVerification is
// transient and deliberately absent.
type Snapshot struct {
	User            *UserProfile `json:"user"`
	Token           string       `json:"token"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

// Snapshot returns the persisted subset of s.
func (s Session) Snapshot() Snapshot {
	return Snapshot{User: s.User, Token: s.Token, IsAuthenticated: s.IsAuthenticated}
}

// Restore rebuilds a session from a snapshot. A snapshot that violates the
// token invariant restores as anonymous.
func (p Snapshot) Restore() Session {
	s := Session{User: p.User, Token: p.Token, IsAuthenticated: p.IsAuthenticated}
	if s.Validate() != nil {
		return Empty()
	}
	return s
}

// IsUnverifiedSignal reports whether a failed login means "email not verified".
// A structured code wins; the message match covers APIs that only send text.
func IsUnverifiedSignal(code, message string) bool {
	if code == CodeEmailUnverified {
		return true
	}
	return strings.Contains(strings.ToLower(message), unverifiedPhrase)
}

// SignUpInput carries the registration form.
type SignUpInput struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Age         int    `json:"age" validate:"required"`
	Gender      string `json:"gender" validate:"required"`
}

// Validate checks field presence and email format.
// POST: returns ErrAllFieldsRequired if any field is missing
func (in SignUpInput) Validate() error {
	p, err := validation.Check(in)
	if err != nil {
		return err
	}
	if len(p.Missing) > 0 {
		return ErrAllFieldsRequired
	}
	if !validation.IsEmail(in.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Credentials carries the sign-in form.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	p, err := validation.Check(c)
	if err != nil {
		return err
	}
	if !p.OK() {
		return ErrCredentialsRequired
	}
	return nil
}

// VerifyInput carries an email verification attempt.
type VerifyInput struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// Validate checks that both fields are present.
func (v VerifyInput) Validate() error {
	p, err := validation.Check(v)
	if err != nil {
		return err
	}
	if !p.OK() {
		return ErrVerifyRequired
	}
	return nil
}

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// IsVerificationCode reports whether code is exactly six digits.
func IsVerificationCode(code string) bool {
	return codePattern.MatchString(code)
}

// NormalizeCode keeps digits only and truncates to six, like the input mask.
func NormalizeCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 6 {
				break
			}
		}
	}
	return b.String()
}

// ProfileUpdate carries the editable profile fields. The server's response
// replaces the whole user record.
type ProfileUpdate struct {
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Age         int    `json:"age,omitempty" validate:"omitempty,gte=13,lte=120"`
	Gender      string `json:"gender,omitempty"`
}

// Validate checks the name is present and the age, if given, is in range.
func (u ProfileUpdate) Validate() error {
	p, err := validation.Check(u)
	if err != nil {
		return err
	}
	if len(p.Missing) > 0 {
		return ErrNameRequired
	}
	if len(p.Invalid) > 0 {
		return ErrAgeOutOfRange
	}
	return nil
}

// CheckAge enforces the form's age bounds.
func CheckAge(age int) error {
	if age < MinAge || age > MaxAge {
		return ErrAgeOutOfRange
	}
	return nil
}
