// Package store keeps short-lived per-session conversation state and the
// state-average cache behind TTL-aware interfaces.
package store

import (
	"context"
	"fmt"

	"suburbiq/internal/model"
)

// ContextStore holds one UserContext per session
type ContextStore interface {
	// Get returns the session context; unknown or expired sessions read as empty
	Get(ctx context.Context, sessionID string) (model.UserContext, error)
	// Update overlays the non-nil patch fields and returns the merged context
	Update(ctx context.Context, sessionID string, patch model.ContextPatch) (model.UserContext, error)
	// Reset drops all state for the session
	Reset(ctx context.Context, sessionID string) error
}

// AverageCache stores state-wide average yields keyed by AverageKey.
// A miss is (zero, false, nil).
type AverageCache interface {
	Get(ctx context.Context, key string) (model.StateAverage, bool, error)
	Set(ctx context.Context, key string, avg model.StateAverage) error
}

// AverageKey builds the cache key for a state and year
func AverageKey(state string, year int) string {
	return fmt.Sprintf("%s-%d", state, year)
}
