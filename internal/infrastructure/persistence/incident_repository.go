package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tsafe/backend/internal/domain/incident"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/infrastructure/persistence/models"
)

// GormIncidentRepository implements incident.Repository using GORM
type GormIncidentRepository struct {
	db *gorm.DB
}

// NewGormIncidentRepository creates a new GormIncidentRepository
func NewGormIncidentRepository(db *gorm.DB) *GormIncidentRepository {
	return &GormIncidentRepository{db: db}
}

// Create inserts a new incident. A duplicate ticket code maps to shared.ErrAlreadyExists.
func (r *GormIncidentRepository) Create(ctx context.Context, i *incident.Incident) error {
	model := models.IncidentModelFromDomain(i)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: incident %s", shared.ErrAlreadyExists, i.Code)
		}
		return err
	}
	return nil
}

// Save updates an incident with optimistic locking
func (r *GormIncidentRepository) Save(ctx context.Context, i *incident.Incident) error {
	currentVersion := i.Version
	model := models.IncidentModelFromDomain(i)
	model.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.IncidentModel{}).
		Where("id = ? AND version = ?", i.ID, currentVersion).
		Updates(map[string]any{
			"severity":     model.Severity,
			"status":       model.Status,
			"fir_status":   model.FIRStatus,
			"fir_number":   model.FIRNumber,
			"officer":      model.Officer,
			"actions":      model.Actions,
			"evidence_ref": model.EvidenceRef,
			"version":      model.Version,
			"updated_at":   model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		r.db.WithContext(ctx).Model(&models.IncidentModel{}).Where("id = ?", i.ID).Count(&count)
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	i.Version = model.Version
	return nil
}

// FindByCode loads an incident by its ticket code
func (r *GormIncidentRepository) FindByCode(ctx context.Context, code string) (*incident.Incident, error) {
	var model models.IncidentModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByTourist returns a page of the tourist's incidents
func (r *GormIncidentRepository) ListByTourist(ctx context.Context, touristID uuid.UUID, filter shared.Filter) ([]*incident.Incident, int64, error) {
	filter = filter.Normalize()

	query := r.db.WithContext(ctx).
		Model(&models.IncidentModel{}).
		Where("tourist_id = ?", touristID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var incidentModels []models.IncidentModel
	err := query.
		Order(orderBy(filter.OrderBy, filter.OrderDir, incidentSortColumns)).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&incidentModels).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*incident.Incident, len(incidentModels))
	for idx := range incidentModels {
		out[idx] = incidentModels[idx].ToDomain()
	}
	return out, total, nil
}

// CountInYear counts incidents created within the calendar year (UTC)
func (r *GormIncidentRepository) CountInYear(ctx context.Context, year int) (int64, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.IncidentModel{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormIncidentRepository implements incident.Repository
var _ incident.Repository = (*GormIncidentRepository)(nil)
