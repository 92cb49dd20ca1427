// Package guards decides, from the session alone, whether a page may render
// or where the visitor should be sent instead. Decisions are recomputed on
// every request; nothing is cached.
package guards

import (
	"net/url"

	domain "glamour/internal/domain/session"
)

// Paths the guards redirect to.
const (
	SignInPath = "/signin"
	VerifyPath = "/verify-email"
	HomePath   = "/"
)

// NoticeVerify is shown on the verification page when a guard sends a visitor there.
const NoticeVerify = "Please verify your email to continue"

// Decision is the outcome of a guard.
// INVARIANT: Allow == (Redirect == "")
type Decision struct {
	Allow    bool
	Redirect string // path with query, e.g. "/signin?from=%2Fprofile"
}

func allow() Decision { return Decision{Allow: true} }

func redirect(path string, q url.Values) Decision {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return Decision{Redirect: path}
}

// Protected guards pages that need a verified account.
// POST: unauthenticated → /signin?from=<attemptedPath>;
// authenticated but unverified → /verify-email?email=<email>&notice=...; else allow
func Protected(s domain.Session, attemptedPath string) Decision {
	if !s.IsAuthenticated || s.User == nil {
		q := url.Values{}
		if attemptedPath != "" {
			q.Set("from", attemptedPath)
		}
		return redirect(SignInPath, q)
	}
	if !s.User.IsVerified {
		q := url.Values{}
		q.Set("email", s.User.Email)
		q.Set("notice", NoticeVerify)
		return redirect(VerifyPath, q)
	}
	return allow()
}

// Admin guards pages reserved for the admin role.
// POST: unauthenticated → /signin; non-admin → /; else allow
func Admin(s domain.Session) Decision {
	if !s.IsAuthenticated || s.User == nil {
		return redirect(SignInPath, nil)
	}
	if !s.User.IsAdmin() {
		return redirect(HomePath, nil)
	}
	return allow()
}

// SafeReturnPath returns from if it is a local absolute path, otherwise "/".
// It keeps sign-in from bouncing visitors to another host.
func SafeReturnPath(from string) string {
	if from == "" || from[0] != '/' || (len(from) > 1 && (from[1] == '/' || from[1] == '\\')) {
		return HomePath
	}
	u, err := url.Parse(from)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return HomePath
	}
	return from
}
