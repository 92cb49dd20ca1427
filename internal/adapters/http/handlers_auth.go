package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"glamour/internal/application/guards"
	"glamour/internal/application/stores"
	domain "glamour/internal/domain/session"
)

var errNoBundle = errors.New("request reached a page handler without a client bundle")

// bundle returns the caller's stores or answers 500.
func (s *Server) bundle(w http.ResponseWriter, r *http.Request) (*stores.Bundle, bool) {
	b, ok := bundleOf(r)
	if !ok {
		internalError(w, errNoBundle)
	}
	return b, ok
}

// formError renders a form again with the submitted values and the error.
func (s *Server) formError(w http.ResponseWriter, r *http.Request, tpl, title string, err error, data any) {
	status := http.StatusUnprocessableEntity
	if errors.Is(err, stores.ErrDuplicateSubmission) {
		status = http.StatusConflict
	}
	s.pages.render(w, r, status, tpl, page{
		Title: title,
		Error: stores.UserMessage(err),
		Form:  r.PostForm,
		Data:  data,
	})
}

func verifyPath(email, notice string) string {
	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}
	if notice != "" {
		q.Set("notice", notice)
	}
	if len(q) == 0 {
		return guards.VerifyPath
	}
	return guards.VerifyPath + "?" + q.Encode()
}

// --- Sign up ---

func (s *Server) handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, http.StatusOK, "signup.html", page{Title: "Create account"})
}

// handleSignUp registers the account and sends the visitor to verification.
// PRE: form fields name, email, password, confirmPassword, phoneNumber, age, gender
// POST: on success redirects to /verify-email?email=<email>
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	age, _ := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("age")))
	in := domain.SignUpInput{
		Name:        strings.TrimSpace(r.PostForm.Get("name")),
		Email:       strings.TrimSpace(r.PostForm.Get("email")),
		Password:    r.PostForm.Get("password"),
		PhoneNumber: strings.TrimSpace(r.PostForm.Get("phoneNumber")),
		Age:         age,
		Gender:      r.PostForm.Get("gender"),
	}
	if err := in.Validate(); err != nil {
		s.formError(w, r, "signup.html", "Create account", err, nil)
		return
	}
	if in.Password != r.PostForm.Get("confirmPassword") {
		s.formError(w, r, "signup.html", "Create account", domain.ErrPasswordMismatch, nil)
		return
	}
	if err := domain.CheckAge(in.Age); err != nil {
		s.formError(w, r, "signup.html", "Create account", err, nil)
		return
	}

	if err := b.Auth.SignUp(r.Context(), in); err != nil {
		s.formError(w, r, "signup.html", "Create account", err, nil)
		return
	}
	http.Redirect(w, r, verifyPath(in.Email, "Account created. Check your email for a verification code."), http.StatusSeeOther)
}

// --- Sign in ---

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, http.StatusOK, "signin.html", page{
		Title: "Sign in",
		Form:  url.Values{"from": {r.URL.Query().Get("from")}},
	})
}

// handleSignIn authenticates and returns the visitor to where they were headed.
// POST: success → SafeReturnPath(from); unverified → /verify-email?email=
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	creds := domain.Credentials{
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
	}
	err := b.Auth.SignIn(r.Context(), creds)
	if err != nil {
		// A stale flag from sign-up must not hide a local validation message.
		if !stores.IsValidation(err) && b.Auth.Session().NeedsVerification {
			http.Redirect(w, r, verifyPath(creds.Email, guards.NoticeVerify), http.StatusSeeOther)
			return
		}
		s.formError(w, r, "signin.html", "Sign in", err, nil)
		return
	}
	http.Redirect(w, r, guards.SafeReturnPath(r.PostForm.Get("from")), http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	b.SignOut(r.Context())
	redirectWithNotice(w, r, guards.HomePath, "You have been signed out")
}

// --- Email verification ---

type verifyView struct {
	Email       string
	WaitSeconds int
}

func (s *Server) verifyView(b *stores.Bundle, email string) verifyView {
	if email == "" {
		email = b.Auth.Session().Email()
	}
	wait := b.Resend.Remaining()
	secs := int(wait.Seconds())
	if wait > 0 && secs == 0 {
		secs = 1
	}
	return verifyView{Email: email, WaitSeconds: secs}
}

func (s *Server) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	s.pages.render(w, r, http.StatusOK, "verify.html", page{
		Title: "Verify your email",
		Data:  s.verifyView(b, r.URL.Query().Get("email")),
	})
}

// handleVerify submits the six-digit code.
// POST: success → / with a notice; the session is verified
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	in := domain.VerifyInput{
		Email: strings.TrimSpace(r.PostForm.Get("email")),
		Code:  domain.NormalizeCode(r.PostForm.Get("code")),
	}
	view := s.verifyView(b, in.Email)
	if err := in.Validate(); err != nil {
		s.formError(w, r, "verify.html", "Verify your email", err, view)
		return
	}
	if !domain.IsVerificationCode(in.Code) {
		s.formError(w, r, "verify.html", "Verify your email", domain.ErrInvalidCode, view)
		return
	}
	if err := b.Auth.VerifyEmail(r.Context(), in); err != nil {
		s.formError(w, r, "verify.html", "Verify your email", err, view)
		return
	}
	redirectWithNotice(w, r, guards.HomePath, "Email verified successfully")
}

// handleResend asks the API for a fresh code, at most once per cooldown.
func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	if email == "" {
		email = b.Auth.Session().Email()
	}
	if wait := s.verifyView(b, email).WaitSeconds; wait > 0 {
		http.Redirect(w, r, verifyPath(email, fmt.Sprintf("Please wait %d seconds before requesting another code", wait)), http.StatusSeeOther)
		return
	}
	if err := b.Auth.ResendVerificationCode(r.Context(), email); err != nil {
		s.formError(w, r, "verify.html", "Verify your email", err, s.verifyView(b, email))
		return
	}
	b.Resend.Start()
	http.Redirect(w, r, verifyPath(email, "A new verification code has been sent"), http.StatusSeeOther)
}

// --- Profile ---

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	p := page{Title: "Your profile"}
	user, err := b.Auth.GetProfile(r.Context())
	if err != nil {
		// The cached user from sign-in is still shown.
		p.Error = stores.UserMessage(err)
		user = b.Auth.Session().User
	}
	p.Data = user
	s.pages.render(w, r, http.StatusOK, "profile.html", p)
}

// handleProfileUpdate saves the edited fields; the response replaces the user.
func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	u := domain.ProfileUpdate{
		Name:        strings.TrimSpace(r.PostForm.Get("name")),
		PhoneNumber: strings.TrimSpace(r.PostForm.Get("phoneNumber")),
		Gender:      r.PostForm.Get("gender"),
	}
	if raw := strings.TrimSpace(r.PostForm.Get("age")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			s.formError(w, r, "profile.html", "Your profile", domain.ErrAgeOutOfRange, b.Auth.Session().User)
			return
		}
		u.Age = age
	}
	if _, err := b.Auth.UpdateProfile(r.Context(), u); err != nil {
		s.formError(w, r, "profile.html", "Your profile", err, b.Auth.Session().User)
		return
	}
	redirectWithNotice(w, r, "/profile", "Profile updated")
}
