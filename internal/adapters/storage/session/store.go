// Package session persists the per-client session snapshot
// {user, token, isAuthenticated} between requests and restarts.
package session

import (
	"context"
	"time"

	domain "glamour/internal/domain/session"
)

// DefaultTTL is how long an untouched snapshot survives.
const DefaultTTL = 24 * time.Hour

// Store persists session snapshots keyed by client ID.
type Store interface {
	// Load returns the snapshot and true, or false when none is stored.
	Load(ctx context.Context, clientID string) (domain.Snapshot, bool, error)
	Save(ctx context.Context, clientID string, snap domain.Snapshot) error
	Delete(ctx context.Context, clientID string) error
}
