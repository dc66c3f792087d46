package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	incidentapp "github.com/tsafe/backend/internal/application/incident"
	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/infrastructure/auth"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
	"github.com/tsafe/backend/internal/interfaces/http/dto"
	"github.com/tsafe/backend/internal/interfaces/http/middleware"
)

// MockTouristService implements TouristService and KYCService for testing
type MockTouristService struct {
	mock.Mock
}

func (m *MockTouristService) Register(ctx context.Context, userID uuid.UUID, req touristapp.RegisterRequest, key string) (*touristapp.RegisterResponse, error) {
	args := m.Called(ctx, userID, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.RegisterResponse), args.Error(1)
}

func (m *MockTouristService) UpdateProfile(ctx context.Context, userID, touristID uuid.UUID, req touristapp.UpdateProfileRequest, key string) (*touristapp.WorkItemResponse, error) {
	args := m.Called(ctx, userID, touristID, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.WorkItemResponse), args.Error(1)
}

func (m *MockTouristService) RaisePanic(ctx context.Context, userID, touristID uuid.UUID, req touristapp.RaisePanicRequest, key string) (*touristapp.PanicResponse, error) {
	args := m.Called(ctx, userID, touristID, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.PanicResponse), args.Error(1)
}

func (m *MockTouristService) PushScore(ctx context.Context, actor touristapp.Actor, touristID uuid.UUID, req touristapp.PushScoreRequest, key string) (*touristapp.ScorePushResponse, error) {
	args := m.Called(ctx, actor, touristID, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.ScorePushResponse), args.Error(1)
}

func (m *MockTouristService) RetryFailed(ctx context.Context, actor touristapp.Actor, touristID, itemID uuid.UUID) (*touristapp.WorkItemResponse, error) {
	args := m.Called(ctx, actor, touristID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.WorkItemResponse), args.Error(1)
}

func (m *MockTouristService) Get(ctx context.Context, actor touristapp.Actor, id uuid.UUID, decrypt bool) (*touristapp.TouristResponse, error) {
	args := m.Called(ctx, actor, id, decrypt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.TouristResponse), args.Error(1)
}

func (m *MockTouristService) GetMine(ctx context.Context, userID uuid.UUID, decrypt bool) (*touristapp.TouristResponse, error) {
	args := m.Called(ctx, userID, decrypt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.TouristResponse), args.Error(1)
}

func (m *MockTouristService) Dashboard(ctx context.Context, userID uuid.UUID) (*touristapp.DashboardResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.DashboardResponse), args.Error(1)
}

func (m *MockTouristService) List(ctx context.Context, actor touristapp.Actor, filter shared.Filter) (*touristapp.ListResponse, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.ListResponse), args.Error(1)
}

func (m *MockTouristService) InitiateKYC(ctx context.Context, userID uuid.UUID, req touristapp.InitiateKYCRequest) (*touristapp.InitiateKYCResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.InitiateKYCResponse), args.Error(1)
}

func (m *MockTouristService) VerifyKYC(ctx context.Context, userID uuid.UUID, req touristapp.VerifyKYCRequest, key string) (*touristapp.VerifyKYCResponse, error) {
	args := m.Called(ctx, userID, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.VerifyKYCResponse), args.Error(1)
}

func (m *MockTouristService) KYCStatus(ctx context.Context, userID uuid.UUID) (*touristapp.KYCStatusResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*touristapp.KYCStatusResponse), args.Error(1)
}

func (m *MockTouristService) CancelKYC(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

// MockIncidentService implements IncidentService for testing
type MockIncidentService struct {
	mock.Mock
}

func (m *MockIncidentService) Report(ctx context.Context, actor incidentapp.Actor, req incidentapp.ReportRequest) (*incidentapp.ReportResponse, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incidentapp.ReportResponse), args.Error(1)
}

func (m *MockIncidentService) Get(ctx context.Context, actor incidentapp.Actor, code string) (*incidentapp.Response, error) {
	args := m.Called(ctx, actor, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incidentapp.Response), args.Error(1)
}

func (m *MockIncidentService) OpenReport(ctx context.Context, actor incidentapp.Actor, code string) (*incidentapp.Report, error) {
	args := m.Called(ctx, actor, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incidentapp.Report), args.Error(1)
}

func (m *MockIncidentService) ListByTourist(ctx context.Context, actor incidentapp.Actor, touristID uuid.UUID, filter shared.Filter) (shared.Paginated[incidentapp.Response], error) {
	args := m.Called(ctx, actor, touristID, filter)
	return args.Get(0).(shared.Paginated[incidentapp.Response]), args.Error(1)
}

func (m *MockIncidentService) UpdateStatus(ctx context.Context, actor incidentapp.Actor, code string, req incidentapp.UpdateStatusRequest) (*incidentapp.Response, error) {
	args := m.Called(ctx, actor, code, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incidentapp.Response), args.Error(1)
}

// MockWorkerControl implements WorkerControl for testing
type MockWorkerControl struct {
	mock.Mock
}

func (m *MockWorkerControl) WorkerStatus() (onchain.Status, error) {
	args := m.Called()
	return args.Get(0).(onchain.Status), args.Error(1)
}

func (m *MockWorkerControl) StartWorker(ctx context.Context) (onchain.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(onchain.Status), args.Error(1)
}

func (m *MockWorkerControl) StopWorker(ctx context.Context) (onchain.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(onchain.Status), args.Error(1)
}

func (m *MockWorkerControl) RunWorkerPass(ctx context.Context) (onchain.PassResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(onchain.PassResult), args.Error(1)
}

func (m *MockWorkerControl) Diagnose(ctx context.Context) (onchain.Diagnostics, error) {
	args := m.Called(ctx)
	return args.Get(0).(onchain.Diagnostics), args.Error(1)
}

// asCaller simulates the JWT middleware for an authenticated caller
func asCaller(userID uuid.UUID, isAdmin bool, email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTClaimsKey, &auth.Claims{UserID: userID.String(), Email: email, IsAdmin: isAdmin})
		c.Set(middleware.JWTUserIDKey, userID.String())
		c.Set(middleware.JWTIsAdminKey, isAdmin)
		c.Next()
	}
}

// newTestEngine builds a bare engine with validators registered
func newTestEngine(mw ...gin.HandlerFunc) *gin.Engine {
	middleware.SetupValidator()
	engine := gin.New()
	engine.Use(mw...)
	return engine
}

func performRequest(engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
