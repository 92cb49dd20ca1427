package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glamour/internal/adapters/storage"
	domain "glamour/internal/domain/session"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// SQLiteStore implements Store using the client_session table.
type SQLiteStore struct {
	db  storage.SQLDB
	ttl time.Duration
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore.
// PRE: db has been migrated (storage.MigrateDB)
func NewSQLiteStore(db storage.SQLDB, ttl time.Duration) *SQLiteStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}
}

// Load retrieves a snapshot by client ID. Expired rows count as missing.
// PRE: clientID is non-empty
// POST: Returns (snap, true, nil) if found and live; (zero, false, nil) otherwise
func (s *SQLiteStore) Load(ctx context.Context, clientID string) (domain.Snapshot, bool, error) {
	var userJSON, token, expiresAt string
	var isAuth int
	err := s.db.QueryRowContext(ctx,
		`SELECT user_json, token, is_authenticated, expires_at FROM client_session WHERE client_id = ?`,
		clientID).Scan(&userJSON, &token, &isAuth, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("load session: %w", err)
	}

	exp, err := time.Parse(timeLayout, expiresAt)
	if err != nil || !s.now().Before(exp) {
		return domain.Snapshot{}, false, nil
	}

	snap := domain.Snapshot{Token: token, IsAuthenticated: isAuth == 1}
	if userJSON != "" {
		var u domain.UserProfile
		if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("decode session user: %w", err)
		}
		snap.User = &u
	}
	return snap, true, nil
}

// Save inserts or replaces the snapshot and slides its expiry.
// POST: row for clientID holds snap, expiring ttl from now
func (s *SQLiteStore) Save(ctx context.Context, clientID string, snap domain.Snapshot) error {
	userJSON := ""
	if snap.User != nil {
		b, err := json.Marshal(snap.User)
		if err != nil {
			return fmt.Errorf("encode session user: %w", err)
		}
		userJSON = string(b)
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_session (client_id, user_json, token, is_authenticated, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
		   user_json=excluded.user_json, token=excluded.token, is_authenticated=excluded.is_authenticated,
		   updated_at=excluded.updated_at, expires_at=excluded.expires_at`,
		clientID, userJSON, snap.Token, boolToInt(snap.IsAuthenticated),
		now.Format(timeLayout), now.Add(s.ttl).Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the snapshot for clientID.
// POST: no row for clientID remains
func (s *SQLiteStore) Delete(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_session WHERE client_id = ?`, clientID)
	return err
}

// PurgeExpired deletes every snapshot whose expiry has passed.
// POST: returns the number of rows removed
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM client_session WHERE expires_at <= ?`, s.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
