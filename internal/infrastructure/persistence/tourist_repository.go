package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/persistence/models"
)

// GormTouristRepository implements tourist.Repository using GORM.
// The whole aggregate, work items included, is one row.
type GormTouristRepository struct {
	db *gorm.DB
}

// NewGormTouristRepository creates a new GormTouristRepository
func NewGormTouristRepository(db *gorm.DB) *GormTouristRepository {
	return &GormTouristRepository{db: db}
}

// Create inserts a new tourist
func (r *GormTouristRepository) Create(ctx context.Context, t *tourist.Tourist) error {
	model := models.TouristModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: tourist profile", shared.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// Save writes the whole document with optimistic locking
func (r *GormTouristRepository) Save(ctx context.Context, t *tourist.Tourist) error {
	currentVersion := t.Version
	model := models.TouristModelFromDomain(t)
	model.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.TouristModel{}).
		Where("id = ? AND version = ?", t.ID, currentVersion).
		Updates(map[string]any{
			"full_name":       model.FullName,
			"phone_number":    model.PhoneNumber,
			"date_of_birth":   model.DateOfBirth,
			"nationality":     model.Nationality,
			"tourist_code":    model.TouristCode,
			"owner_wallet":    model.OwnerWallet,
			"kyc_method":      model.KYCMethod,
			"kyc_status":      model.KYCStatus,
			"kyc_verified_at": model.KYCVerifiedAt,
			"kyc_ref":         model.KYCRef,
			"emergency_ref":   model.EmergencyRef,
			"valid_until":     model.ValidUntil,
			"tracking_opt_in": model.TrackingOptIn,
			"is_active":       model.IsActive,
			"panics":          model.Panics,
			"panic_count":     model.PanicCount,
			"work_items":      model.WorkItems,
			"unresolved_work": model.UnresolvedWork,
			"version":         model.Version,
			"updated_at":      model.UpdatedAt,
		})

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: tourist code %s", shared.ErrAlreadyExists, t.TouristCode)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		r.db.WithContext(ctx).Model(&models.TouristModel{}).Where("id = ?", t.ID).Count(&count)
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	t.Version = model.Version
	return nil
}

// FindByID loads a tourist by ID
func (r *GormTouristRepository) FindByID(ctx context.Context, id uuid.UUID) (*tourist.Tourist, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByUserID loads the profile owned by a user
func (r *GormTouristRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*tourist.Tourist, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

// FindByChainID loads a tourist by its ledger identity handle
func (r *GormTouristRepository) FindByChainID(ctx context.Context, chainID string) (*tourist.Tourist, error) {
	return r.findOne(ctx, "chain_id = ?", strings.ToLower(chainID))
}

func (r *GormTouristRepository) findOne(ctx context.Context, query string, arg any) (*tourist.Tourist, error) {
	var model models.TouristModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindWithUnresolvedWork returns the oldest-updated tourists that still hold
// pending or submitted work items.
func (r *GormTouristRepository) FindWithUnresolvedWork(ctx context.Context, limit int) ([]*tourist.Tourist, error) {
	if limit <= 0 {
		return []*tourist.Tourist{}, nil
	}

	var touristModels []models.TouristModel
	err := r.db.WithContext(ctx).
		Where("unresolved_work > 0").
		Order("updated_at ASC").
		Limit(limit).
		Find(&touristModels).Error
	if err != nil {
		return nil, err
	}
	return toTourists(touristModels), nil
}

// List returns a page of tourists matching the filter
func (r *GormTouristRepository) List(ctx context.Context, filter shared.Filter) ([]*tourist.Tourist, int64, error) {
	filter = filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.TouristModel{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(full_name) LIKE ? OR LOWER(tourist_code) LIKE ? OR LOWER(owner_wallet) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var touristModels []models.TouristModel
	err := query.
		Order(orderBy(filter.OrderBy, filter.OrderDir, touristSortColumns)).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&touristModels).Error
	if err != nil {
		return nil, 0, err
	}
	return toTourists(touristModels), total, nil
}

// Summary returns dashboard counts
func (r *GormTouristRepository) Summary(ctx context.Context) (tourist.Summary, error) {
	var s tourist.Summary
	counts := []struct {
		dst  *int64
		cond []any
	}{
		{&s.Total, nil},
		{&s.Active, []any{"is_active = ?", true}},
		{&s.WithPanics, []any{"panic_count > 0"}},
		{&s.Unresolved, []any{"unresolved_work > 0"}},
	}

	for _, c := range counts {
		query := r.db.WithContext(ctx).Model(&models.TouristModel{})
		if len(c.cond) > 0 {
			query = query.Where(c.cond[0], c.cond[1:]...)
		}
		if err := query.Count(c.dst).Error; err != nil {
			return tourist.Summary{}, err
		}
	}
	return s, nil
}

// CountByCodePrefix counts tourists whose human-readable code starts with prefix
func (r *GormTouristRepository) CountByCodePrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TouristModel{}).
		Where("tourist_code LIKE ?", prefix+"%").
		Count(&count).Error
	return count, err
}

func toTourists(touristModels []models.TouristModel) []*tourist.Tourist {
	out := make([]*tourist.Tourist, len(touristModels))
	for i := range touristModels {
		out[i] = touristModels[i].ToDomain()
	}
	return out
}

// Ensure GormTouristRepository implements tourist.Repository
var _ tourist.Repository = (*GormTouristRepository)(nil)
