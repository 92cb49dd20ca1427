// Package stores holds the per-client state containers that wrap the venue
// API: authentication, events and feedback. Each action follows the same
// shape: mark the store busy, call the API once, replace state on success,
// keep prior state and record the message on failure.
package stores

import (
	"context"
	"sync"

	"glamour/internal/adapters/api"
)

// API is the gateway the stores call. *api.Client implements it.
type API interface {
	Do(ctx context.Context, req api.Request) api.Result
}

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() string
}

// ticket identifies one in-flight action.
type ticket struct {
	action string
	id     uint64
	gen    uint64
	read   bool
}

// actions tracks in-flight requests and the last error for one store.
// INVARIANT: at most one mutation ticket per action name is running
type actions struct {
	mu      sync.Mutex
	gen     uint64
	seq     uint64
	running map[string]uint64
	reading int
	lastErr string
}

// begin starts an action, clearing the previous error.
// POST: returns ErrDuplicateSubmission if the action is already running
func (a *actions) begin(action string) (ticket, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running == nil {
		a.running = make(map[string]uint64)
	}
	if _, busy := a.running[action]; busy {
		return ticket{}, ErrDuplicateSubmission
	}
	a.seq++
	a.running[action] = a.seq
	a.lastErr = ""
	return ticket{action: action, id: a.seq, gen: a.gen}, nil
}

// beginRead starts a fetch. Fetches never collide: two tabs sharing a client
// may load different events at once, and the last commit wins.
func (a *actions) beginRead(action string) ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.reading++
	a.lastErr = ""
	return ticket{action: action, id: a.seq, gen: a.gen, read: true}
}

// end releases the ticket. A mutation ticket invalidated in between is a no-op.
func (a *actions) end(t ticket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.read {
		a.reading--
		return
	}
	if a.running[t.action] == t.id {
		delete(a.running, t.action)
	}
}

// commit applies a state change if the ticket is still current.
// POST: returns ErrStale and leaves state untouched if invalidate ran since begin
func (a *actions) commit(t ticket, apply func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.gen != a.gen {
		return ErrStale
	}
	apply()
	return nil
}

// fail records err as the store's error if the ticket is still current.
func (a *actions) fail(t ticket, err error) error {
	if cerr := a.commit(t, func() { a.lastErr = err.Error() }); cerr != nil {
		return cerr
	}
	return err
}

// reject records a local validation failure without starting an action.
func (a *actions) reject(err error) error {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
	return &ValidationError{Err: err}
}

// invalidateLocked makes every outstanding ticket stale and frees all actions.
// PRE: caller holds a.mu
func (a *actions) invalidateLocked() {
	a.gen++
	a.running = make(map[string]uint64)
	a.lastErr = ""
}

// Loading reports whether any action is in flight.
func (a *actions) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.running) > 0 || a.reading > 0
}

// LastError returns the message of the last failed action, or "".
func (a *actions) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// ClearError forgets the last error.
func (a *actions) ClearError() {
	a.mu.Lock()
	a.lastErr = ""
	a.mu.Unlock()
}

// actionError converts a failed result into an *ActionError.
func actionError(action string, res api.Result) *ActionError {
	msg := res.Error
	if msg == "" {
		msg = api.FallbackError
	}
	return &ActionError{Action: action, Message: msg, Code: res.Code, Status: res.Status}
}
