package tourist

import (
	"context"

	"github.com/google/uuid"
	"github.com/tsafe/backend/internal/domain/shared"
)

// Summary holds dashboard-wide counts.
type Summary struct {
	Total      int64 `json:"total"`
	Active     int64 `json:"active"`
	WithPanics int64 `json:"with_panics"`
	Unresolved int64 `json:"unresolved"`
}

// Repository is the work item store. WorkItems are embedded in the Tourist
// document and are always written together with it.
type Repository interface {
	// Create persists a new tourist.
	Create(ctx context.Context, t *Tourist) error

	// Save writes the whole document. It fails with shared.ErrConcurrencyConflict
	// when the stored version differs from t.Version, and bumps t.Version on success.
	Save(ctx context.Context, t *Tourist) error

	// FindByID loads a tourist or returns shared.ErrNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Tourist, error)

	// FindByUserID loads the profile owned by a user or returns shared.ErrNotFound.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Tourist, error)

	// FindByChainID loads a tourist by its on-chain identity handle.
	FindByChainID(ctx context.Context, chainID string) (*Tourist, error)

	// FindWithUnresolvedWork returns up to limit tourists holding at least one
	// pending or submitted WorkItem, least recently updated first.
	FindWithUnresolvedWork(ctx context.Context, limit int) ([]*Tourist, error)

	// List returns a page of tourists, newest first.
	List(ctx context.Context, filter shared.Filter) ([]*Tourist, int64, error)

	// Summary returns dashboard counts.
	Summary(ctx context.Context) (Summary, error)

	// CountByCodePrefix counts issued tourist codes sharing a prefix such as
	// "TID-IND-2026-".
	CountByCodePrefix(ctx context.Context, prefix string) (int64, error)
}
