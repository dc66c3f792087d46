package incident

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/incident"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/crypto"
	"github.com/tsafe/backend/internal/infrastructure/storage"
)

// MockIncidentRepository is a mock implementation of incident.Repository
type MockIncidentRepository struct {
	mock.Mock
}

func (m *MockIncidentRepository) Create(ctx context.Context, i *incident.Incident) error {
	return m.Called(ctx, i).Error(0)
}

func (m *MockIncidentRepository) Save(ctx context.Context, i *incident.Incident) error {
	return m.Called(ctx, i).Error(0)
}

func (m *MockIncidentRepository) FindByCode(ctx context.Context, code string) (*incident.Incident, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incident.Incident), args.Error(1)
}

func (m *MockIncidentRepository) ListByTourist(ctx context.Context, touristID uuid.UUID, filter shared.Filter) ([]*incident.Incident, int64, error) {
	args := m.Called(ctx, touristID, filter)
	return args.Get(0).([]*incident.Incident), args.Get(1).(int64), args.Error(2)
}

func (m *MockIncidentRepository) CountInYear(ctx context.Context, year int) (int64, error) {
	args := m.Called(ctx, year)
	return args.Get(0).(int64), args.Error(1)
}

// MockTouristRepository is a mock implementation of tourist.Repository
type MockTouristRepository struct {
	mock.Mock
}

func (m *MockTouristRepository) Create(ctx context.Context, t *tourist.Tourist) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTouristRepository) Save(ctx context.Context, t *tourist.Tourist) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTouristRepository) FindByID(ctx context.Context, id uuid.UUID) (*tourist.Tourist, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tourist.Tourist), args.Error(1)
}

func (m *MockTouristRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*tourist.Tourist, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tourist.Tourist), args.Error(1)
}

func (m *MockTouristRepository) FindByChainID(ctx context.Context, chainID string) (*tourist.Tourist, error) {
	args := m.Called(ctx, chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tourist.Tourist), args.Error(1)
}

func (m *MockTouristRepository) FindWithUnresolvedWork(ctx context.Context, limit int) ([]*tourist.Tourist, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*tourist.Tourist), args.Error(1)
}

func (m *MockTouristRepository) List(ctx context.Context, filter shared.Filter) ([]*tourist.Tourist, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*tourist.Tourist), args.Get(1).(int64), args.Error(2)
}

func (m *MockTouristRepository) Summary(ctx context.Context) (tourist.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(tourist.Summary), args.Error(1)
}

func (m *MockTouristRepository) CountByCodePrefix(ctx context.Context, prefix string) (int64, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).(int64), args.Error(1)
}

// MockPanicRecorder is a mock implementation of PanicRecorder
type MockPanicRecorder struct {
	mock.Mock
}

func (m *MockPanicRecorder) RecordIncidentPanic(ctx context.Context, touristID uuid.UUID, loc tourist.Location, description, evidenceRef string) (uuid.UUID, error) {
	args := m.Called(ctx, touristID, loc, description, evidenceRef)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type countingMetrics struct {
	types []string
}

func (c *countingMetrics) RecordIncident(_ context.Context, incidentType string) {
	c.types = append(c.types, incidentType)
}

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	incidents *MockIncidentRepository
	tourists  *MockTouristRepository
	panics    *MockPanicRecorder
	metrics   *countingMetrics
	vault     *storage.Vault
	owner     *tourist.Tourist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sealer, err := crypto.NewPayloadSealer("incident-secret", "v1")
	require.NoError(t, err)

	owner, err := tourist.NewTourist(tourist.NewTouristParams{
		UserID:       uuid.New(),
		FullName:     "Asha Rao",
		PhoneNumber:  "+91 9876543210",
		OwnerWallet:  "0x52908400098527886E0F7030069857D2E4169EE7",
		KYCRef:       "kyc-ref",
		EmergencyRef: "emergency-ref",
		ValidUntil:   testNow.Add(30 * 24 * time.Hour),
	}, testNow)
	require.NoError(t, err)

	f := &fixture{
		incidents: new(MockIncidentRepository),
		tourists:  new(MockTouristRepository),
		panics:    new(MockPanicRecorder),
		metrics:   &countingMetrics{},
		vault:     storage.NewVault(storage.NewMemoryBlobStore(), sealer),
		owner:     owner,
	}
	f.tourists.On("FindByID", mock.Anything, owner.ID).Return(owner, nil).Maybe()
	f.svc = NewService(f.incidents, f.tourists, f.vault, zap.NewNop(),
		WithPanicRecorder(f.panics),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return testNow }),
	)
	return f
}

func (f *fixture) reportRequest(typ incident.Type) ReportRequest {
	return ReportRequest{
		TouristID: f.owner.ID,
		Type:      typ,
		Location: incident.Place{
			Location: tourist.Location{Lat: 26.9239, Lng: 75.8267},
			City:     "Jaipur",
		},
		OccurredAt:  testNow.Add(-time.Hour),
		Description: "Wallet snatched near Hawa Mahal",
		Evidence:    []string{"bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"},
	}
}

func TestReport_NonEmergency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.incidents.On("CountInYear", mock.Anything, 2026).Return(int64(41), nil)
	f.incidents.On("Create", mock.Anything, mock.AnythingOfType("*incident.Incident")).Return(nil)

	resp, err := f.svc.Report(ctx, Actor{UserID: f.owner.UserID}, f.reportRequest(incident.TypeFraud))
	require.NoError(t, err)

	assert.Equal(t, "FIR-2026-000042", resp.Incident.Code)
	assert.Equal(t, "reported", resp.Incident.Status)
	assert.Equal(t, "pending", resp.Incident.FIRStatus)
	assert.Equal(t, "medium", resp.Incident.Severity)
	assert.Equal(t, "self", resp.Incident.ReportedBy.Relationship)
	assert.Equal(t, "Asha Rao", resp.Incident.ReportedBy.Name)
	assert.Equal(t, "+91-1073", resp.EmergencyContact)
	assert.Nil(t, resp.PanicID)
	require.Len(t, resp.Incident.Actions, 1)
	assert.Equal(t, incident.ActionPoliceAssigned, resp.Incident.Actions[0].Type)
	assert.Equal(t, []string{"fraud"}, f.metrics.types)
	f.panics.AssertNotCalled(t, "RecordIncidentPanic", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	var report Report
	require.NoError(t, f.vault.GetJSON(ctx, PurposeIncident, resp.Incident.EvidenceRef, &report))
	assert.Equal(t, f.owner.ChainID, report.ChainID)
	assert.Equal(t, "FIR-2026-000042", report.Code)
	assert.Len(t, report.Evidence, 1)
}

func TestReport_EmergencyRecordsPanic(t *testing.T) {
	f := newFixture(t)
	panicID := uuid.New()
	f.incidents.On("CountInYear", mock.Anything, 2026).Return(int64(0), nil)
	f.incidents.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.panics.On("RecordIncidentPanic", mock.Anything, f.owner.ID, mock.Anything, mock.Anything, mock.Anything).Return(panicID, nil)

	resp, err := f.svc.Report(context.Background(), Actor{UserID: f.owner.UserID}, f.reportRequest(incident.TypeTheft))
	require.NoError(t, err)
	require.NotNil(t, resp.PanicID)
	assert.Equal(t, panicID, *resp.PanicID)
	assert.Equal(t, "+91-1073", resp.EmergencyContact)
	f.panics.AssertExpectations(t)
}

func TestReport_CodeTakenMovesOn(t *testing.T) {
	f := newFixture(t)
	f.incidents.On("CountInYear", mock.Anything, 2026).Return(int64(4), nil)
	f.incidents.On("Create", mock.Anything, mock.MatchedBy(func(i *incident.Incident) bool {
		return i.Code == "FIR-2026-000005"
	})).Return(shared.ErrAlreadyExists).Once()
	f.incidents.On("Create", mock.Anything, mock.MatchedBy(func(i *incident.Incident) bool {
		return i.Code == "FIR-2026-000006"
	})).Return(nil).Once()

	resp, err := f.svc.Report(context.Background(), Actor{UserID: f.owner.UserID}, f.reportRequest(incident.TypeFraud))
	require.NoError(t, err)
	assert.Equal(t, "FIR-2026-000006", resp.Incident.Code)
	f.incidents.AssertExpectations(t)
}

func TestReport_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("stranger", func(t *testing.T) {
		_, err := f.svc.Report(ctx, Actor{UserID: uuid.New()}, f.reportRequest(incident.TypeFraud))
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("unknown tourist", func(t *testing.T) {
		missing := uuid.New()
		f.tourists.On("FindByID", mock.Anything, missing).Return(nil, shared.ErrNotFound)
		req := f.reportRequest(incident.TypeFraud)
		req.TouristID = missing
		_, err := f.svc.Report(ctx, Actor{UserID: f.owner.UserID}, req)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("bad location", func(t *testing.T) {
		f.incidents.On("CountInYear", mock.Anything, 2026).Return(int64(0), nil)
		req := f.reportRequest(incident.TypeFraud)
		req.Location.Lng = 400
		_, err := f.svc.Report(ctx, Actor{UserID: f.owner.UserID}, req)
		assert.Equal(t, "INVALID_LOCATION", shared.CodeOf(err))
		f.incidents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func seedIncident(t *testing.T, touristID uuid.UUID) *incident.Incident {
	t.Helper()
	i, err := incident.NewIncident("FIR-2026-000001", incident.NewIncidentParams{
		TouristID:   touristID,
		Type:        incident.TypeMedical,
		Place:       incident.Place{Location: tourist.Location{Lat: 1, Lng: 1}},
		OccurredAt:  testNow,
		Description: "fainted",
	}, testNow)
	require.NoError(t, err)
	return i
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	i := seedIncident(t, f.owner.ID)
	f.incidents.On("FindByCode", mock.Anything, i.Code).Return(i, nil)
	f.incidents.On("ListByTourist", mock.Anything, f.owner.ID, mock.Anything).Return([]*incident.Incident{i}, int64(1), nil)

	resp, err := f.svc.Get(ctx, Actor{UserID: f.owner.UserID}, i.Code)
	require.NoError(t, err)
	assert.Equal(t, i.Code, resp.Code)

	_, err = f.svc.Get(ctx, Actor{UserID: uuid.New()}, i.Code)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	page, err := f.svc.ListByTourist(ctx, Actor{IsAdmin: true}, f.owner.ID, shared.Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 20, page.PageSize)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := Actor{UserID: uuid.New(), IsAdmin: true}

	_, err := f.svc.UpdateStatus(ctx, Actor{UserID: f.owner.UserID}, "FIR-2026-000001", UpdateStatusRequest{})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	t.Run("appends an action and retries conflicts", func(t *testing.T) {
		f.incidents.On("FindByCode", mock.Anything, "FIR-2026-000001").Return(seedIncident(t, f.owner.ID), nil).Once()
		f.incidents.On("FindByCode", mock.Anything, "FIR-2026-000001").Return(seedIncident(t, f.owner.ID), nil).Once()
		f.incidents.On("Save", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Once()
		f.incidents.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

		resp, err := f.svc.UpdateStatus(ctx, admin, "FIR-2026-000001", UpdateStatusRequest{
			Status:      incident.StatusInvestigating,
			FIRStatus:   incident.FIRFiled,
			FIRNumber:   "FIR/2026/0001",
			ActionType:  incident.ActionFIRFiled,
			ActionNote:  "e-FIR generated",
			OfficerName: "SI Verma",
		})
		require.NoError(t, err)
		assert.Equal(t, "investigating", resp.Status)
		assert.Equal(t, "filed", resp.FIRStatus)
		require.Len(t, resp.Actions, 2)
		assert.Equal(t, "SI Verma", resp.Actions[1].TakenBy)
		f.incidents.AssertNumberOfCalls(t, "Save", 2)
	})
}
