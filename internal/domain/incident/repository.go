package incident

import (
	"context"

	"github.com/google/uuid"

	"github.com/tsafe/backend/internal/domain/shared"
)

// Repository stores incidents.
type Repository interface {
	Create(ctx context.Context, i *Incident) error
	// Save fails with shared.ErrConcurrencyConflict on a stale version.
	Save(ctx context.Context, i *Incident) error
	FindByCode(ctx context.Context, code string) (*Incident, error)
	ListByTourist(ctx context.Context, touristID uuid.UUID, filter shared.Filter) ([]*Incident, int64, error)
	// CountInYear returns how many incidents were opened in the given year.
	CountInYear(ctx context.Context, year int) (int64, error)
}
