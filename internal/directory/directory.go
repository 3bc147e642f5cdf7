// Package directory synchronizes the local session list with the
// backend's session CRUD surface. The canonical in-memory list lives in
// the facade's conversation state; this package owns the REST traffic,
// coalesces duplicate listing requests and keeps an optional cold-start
// cache warm.
package directory

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/receiptly/receiptly-go/chat"
)

// API is the session CRUD collaborator (implemented by pkg/api.Client).
type API interface {
	ListSessions(ctx context.Context) ([]chat.Session, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
}

// Cache is an optional volatile projection of the last listing, used to
// warm the UI before the first round-trip. The backend remains the
// source of record.
type Cache interface {
	Load(ctx context.Context, userID string) ([]chat.Session, error)
	Store(ctx context.Context, userID string, sessions []chat.Session) error
	Close() error
}

// Directory coordinates listing and deletion for one identity.
type Directory struct {
	api    API
	cache  Cache // may be nil
	userID string
	group  singleflight.Group
}

// New creates a directory for the given identity. cache may be nil.
func New(api API, cache Cache, userID string) *Directory {
	return &Directory{api: api, cache: cache, userID: userID}
}

// Refresh fetches the session listing. Concurrent calls are coalesced:
// a listing already in flight short-circuits a duplicate request and
// both callers receive the same result. On success the cold-start
// cache is updated best-effort; on failure nothing is touched.
func (d *Directory) Refresh(ctx context.Context) ([]chat.Session, error) {
	v, err, _ := d.group.Do("list", func() (any, error) {
		sessions, err := d.api.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		if d.cache != nil {
			// Cache failures never fail the listing.
			_ = d.cache.Store(ctx, d.userID, sessions)
		}
		return sessions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return v.([]chat.Session), nil
}

// WarmStart returns the cached listing from the last successful
// refresh, or nil when no cache is configured or it is empty.
func (d *Directory) WarmStart(ctx context.Context) []chat.Session {
	if d.cache == nil {
		return nil
	}
	sessions, err := d.cache.Load(ctx, d.userID)
	if err != nil {
		return nil
	}
	return sessions
}

// Delete removes a session server-side. The caller prunes local state
// only after success, so a failed delete leaves the cache unmodified.
func (d *Directory) Delete(ctx context.Context, sessionID string) error {
	ok, err := d.api.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if !ok {
		return fmt.Errorf("delete session %s: backend refused", sessionID)
	}
	return nil
}

// Close releases the cache, if any.
func (d *Directory) Close() error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Close()
}
