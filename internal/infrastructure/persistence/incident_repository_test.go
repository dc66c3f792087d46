package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsafe/backend/internal/domain/incident"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
)

func newRepoTestIncident(t *testing.T, code string, touristID uuid.UUID, now time.Time) *incident.Incident {
	t.Helper()
	inc, err := incident.NewIncident(code, incident.NewIncidentParams{
		TouristID:   touristID,
		Type:        incident.TypeTheft,
		Place:       incident.Place{Location: tourist.Location{Lat: 15.5, Lng: 73.8}, City: "Panaji"},
		OccurredAt:  now.Add(-time.Hour),
		Description: "Bag snatched near the market",
		Witnesses:   []string{"shopkeeper"},
		ReportedBy:  incident.Reporter{Name: "Asha", PhoneNumber: "9876543210"},
	}, now)
	require.NoError(t, err)
	return inc
}

func TestGormIncidentRepository_CreateAndFind(t *testing.T) {
	db := setupTouristTestDB(t)
	repo := NewGormIncidentRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	inc := newRepoTestIncident(t, "FIR-2026-000001", uuid.New(), now)
	require.NoError(t, repo.Create(ctx, inc))

	t.Run("finds by code with embedded documents", func(t *testing.T) {
		found, err := repo.FindByCode(ctx, "FIR-2026-000001")
		require.NoError(t, err)
		assert.Equal(t, inc.ID, found.ID)
		assert.Equal(t, "Panaji", found.Place.City)
		assert.InDelta(t, 15.5, found.Place.Lat, 0.0001)
		assert.Equal(t, []string{"shopkeeper"}, found.Witnesses)
		assert.Nil(t, found.Officer)
		require.Len(t, found.Actions, 1)
		assert.Equal(t, incident.ActionPoliceAssigned, found.Actions[0].Type)
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "FIR-2026-999999")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate code is rejected", func(t *testing.T) {
		dup := newRepoTestIncident(t, "FIR-2026-000001", uuid.New(), now)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestGormIncidentRepository_Save(t *testing.T) {
	db := setupTouristTestDB(t)
	repo := NewGormIncidentRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	inc := newRepoTestIncident(t, "FIR-2026-000001", uuid.New(), now)
	require.NoError(t, repo.Create(ctx, inc))

	loaded, err := repo.FindByCode(ctx, inc.Code)
	require.NoError(t, err)
	require.NoError(t, loaded.ApplyUpdate(incident.StatusUpdate{
		Status:     incident.StatusInvestigating,
		Officer:    &incident.Officer{Name: "SI Kumar", BadgeNumber: "GOA-17"},
		ActionNote: "Statement taken",
		TakenBy:    "SI Kumar",
	}, now.Add(time.Hour)))
	require.NoError(t, repo.Save(ctx, loaded))
	assert.Equal(t, 2, loaded.Version)

	reloaded, err := repo.FindByCode(ctx, inc.Code)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusInvestigating, reloaded.Status)
	require.NotNil(t, reloaded.Officer)
	assert.Equal(t, "GOA-17", reloaded.Officer.BadgeNumber)
	assert.Len(t, reloaded.Actions, 2)

	// The copy loaded before the update is now stale.
	inc.Status = incident.StatusResolved
	err = repo.Save(ctx, inc)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestGormIncidentRepository_ListAndCount(t *testing.T) {
	db := setupTouristTestDB(t)
	repo := NewGormIncidentRepository(db)
	ctx := context.Background()

	touristID := uuid.New()
	inThisYear := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC),
	}
	for i, at := range inThisYear {
		require.NoError(t, repo.Create(ctx, newRepoTestIncident(t, incident.FormatCode(2026, i+1), touristID, at)))
	}
	require.NoError(t, repo.Create(ctx, newRepoTestIncident(t, incident.FormatCode(2025, 1), uuid.New(), time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC))))

	t.Run("counts incidents in a calendar year", func(t *testing.T) {
		count, err := repo.CountInYear(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		count, err = repo.CountInYear(ctx, 2025)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("lists only the tourist's incidents newest first", func(t *testing.T) {
		found, total, err := repo.ListByTourist(ctx, touristID, shared.Filter{PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, found, 2)
		assert.Equal(t, "FIR-2026-000003", found[0].Code)
		assert.Equal(t, "FIR-2026-000002", found[1].Code)
	})

	t.Run("unknown tourist has no incidents", func(t *testing.T) {
		found, total, err := repo.ListByTourist(ctx, uuid.New(), shared.DefaultFilter())
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, found)
	})
}
