// Package incident files and follows up incident tickets raised for a
// tourist. Tickets never touch the ledger; emergency types also record a
// panic on the tourist profile.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/incident"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

// PurposeIncident labels sealed incident reports.
const PurposeIncident = "incident_report"

const (
	codeAttempts = 5
	saveAttempts = 3
)

// PayloadVault seals documents into content-addressed blobs.
type PayloadVault interface {
	PutJSON(ctx context.Context, purpose string, doc any) (string, error)
	GetJSON(ctx context.Context, purpose, ref string, out any) error
}

// PanicRecorder records a panic on the tourist for emergency incidents.
type PanicRecorder interface {
	RecordIncidentPanic(ctx context.Context, touristID uuid.UUID, loc tourist.Location, description, evidenceRef string) (uuid.UUID, error)
}

// MetricsRecorder counts reported incidents.
type MetricsRecorder interface {
	RecordIncident(ctx context.Context, incidentType string)
}

// Actor identifies the caller.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Service implements incident ticketing.
type Service struct {
	incidents incident.Repository
	tourists  tourist.Repository
	vault     PayloadVault
	panics    PanicRecorder
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPanicRecorder enables panic records for emergency incident types.
func WithPanicRecorder(p PanicRecorder) Option {
	return func(s *Service) { s.panics = p }
}

// WithMetrics sets the incident counter.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service
func NewService(incidents incident.Repository, tourists tourist.Repository, vault PayloadVault, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		incidents: incidents,
		tourists:  tourists,
		vault:     vault,
		logger:    logger.Named("incident"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report opens a ticket for a tourist the caller owns. The full report is
// sealed and only its reference is stored with the ticket.
func (s *Service) Report(ctx context.Context, actor Actor, req ReportRequest) (*ReportResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "incident", "Report",
		telemetry.WithAttribute(telemetry.SpanAttrTouristID, req.TouristID.String()))
	defer span.End()

	t, err := s.tourists.FindByID(ctx, req.TouristID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !t.IsOwnedBy(actor.UserID) {
		return nil, shared.ErrForbidden
	}

	reporter := incident.Reporter{Name: t.FullName, PhoneNumber: t.PhoneNumber, Relationship: "self"}
	if req.ReportedBy != nil && req.ReportedBy.Name != "" {
		reporter = *req.ReportedBy
	}
	params := incident.NewIncidentParams{
		TouristID:   t.ID,
		Type:        req.Type,
		Severity:    req.Severity,
		Place:       req.Location,
		OccurredAt:  req.OccurredAt,
		Description: req.Description,
		Witnesses:   req.Witnesses,
		ReportedBy:  reporter,
	}

	now := s.now()
	var created *incident.Incident
	for attempt := 0; attempt < codeAttempts && created == nil; attempt++ {
		issued, err := s.incidents.CountInYear(ctx, now.Year())
		if err != nil {
			return nil, err
		}
		code := incident.FormatCode(now.Year(), int(issued)+1+attempt)

		ref, err := s.vault.PutJSON(ctx, PurposeIncident, Report{
			Code:        code,
			TouristID:   t.ID,
			ChainID:     t.ChainID,
			Type:        req.Type,
			Severity:    req.Severity,
			Location:    req.Location,
			OccurredAt:  req.OccurredAt,
			Description: req.Description,
			Witnesses:   req.Witnesses,
			Evidence:    req.Evidence,
			ReportedBy:  reporter,
			Timestamp:   now,
		})
		if err != nil {
			return nil, err
		}
		params.EvidenceRef = ref

		i, err := incident.NewIncident(code, params, now)
		if err != nil {
			return nil, err
		}
		err = s.incidents.Create(ctx, i)
		switch {
		case err == nil:
			created = i
		case errors.Is(err, shared.ErrAlreadyExists):
			s.logger.Debug("incident code taken, trying next", zap.String("code", code))
		default:
			return nil, err
		}
	}
	if created == nil {
		return nil, fmt.Errorf("allocate incident code for %d: %w", now.Year(), shared.ErrConcurrencyConflict)
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrIncidentID, created.Code)
	if s.metrics != nil {
		s.metrics.RecordIncident(ctx, string(created.Type))
	}
	s.logger.Warn("incident reported",
		zap.String("incident_id", created.Code),
		zap.String("tourist_id", t.ID.String()),
		zap.String("type", string(created.Type)),
		zap.String("severity", string(created.Severity)),
	)

	resp := &ReportResponse{
		Incident:         toResponse(created),
		EmergencyContact: created.Type.EmergencyContact(),
		Message:          "Incident reported successfully. Police will be assigned shortly.",
	}
	if created.Type.IsEmergency() && s.panics != nil {
		panicID, err := s.panics.RecordIncidentPanic(ctx, t.ID, created.Place.Location, created.Description, created.EvidenceRef)
		if err != nil {
			// The ticket stands on its own; the panic is best effort.
			s.logger.Error("failed to record panic for incident",
				zap.String("incident_id", created.Code),
				zap.Error(err),
			)
		} else {
			resp.PanicID = &panicID
		}
	}
	return resp, nil
}

// Get returns a ticket to the tourist's owner or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, code string) (*Response, error) {
	i, err := s.incidents.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, i.TouristID); err != nil {
		return nil, err
	}
	resp := toResponse(i)
	return &resp, nil
}

// OpenReport decrypts the sealed report behind a ticket. Admin only.
func (s *Service) OpenReport(ctx context.Context, actor Actor, code string) (*Report, error) {
	if !actor.IsAdmin {
		return nil, shared.ErrForbidden
	}
	i, err := s.incidents.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	var report Report
	if err := s.vault.GetJSON(ctx, PurposeIncident, i.EvidenceRef, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByTourist returns a page of the tourist's tickets, newest first.
func (s *Service) ListByTourist(ctx context.Context, actor Actor, touristID uuid.UUID, filter shared.Filter) (shared.Paginated[Response], error) {
	if err := s.authorize(ctx, actor, touristID); err != nil {
		return shared.Paginated[Response]{}, err
	}
	filter = filter.Normalize()
	incidents, total, err := s.incidents.ListByTourist(ctx, touristID, filter)
	if err != nil {
		return shared.Paginated[Response]{}, err
	}
	items := make([]Response, len(incidents))
	for idx, i := range incidents {
		items[idx] = toResponse(i)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// UpdateStatus applies an officer's follow-up. Admin only.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, code string, req UpdateStatusRequest) (*Response, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "incident", "UpdateStatus",
		telemetry.WithAttribute(telemetry.SpanAttrIncidentID, code))
	defer span.End()

	if !actor.IsAdmin {
		return nil, shared.ErrForbidden
	}
	takenBy := req.OfficerName
	if takenBy == "" {
		takenBy = "System"
	}
	update := incident.StatusUpdate{
		Status:     req.Status,
		FIRStatus:  req.FIRStatus,
		FIRNumber:  req.FIRNumber,
		Officer:    req.Officer,
		ActionType: req.ActionType,
		ActionNote: req.ActionNote,
		TakenBy:    takenBy,
	}

	for attempt := 1; ; attempt++ {
		i, err := s.incidents.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := i.ApplyUpdate(update, s.now()); err != nil {
			return nil, err
		}
		err = s.incidents.Save(ctx, i)
		if err == nil {
			s.logger.Info("incident updated",
				zap.String("incident_id", code),
				zap.String("status", string(i.Status)),
				zap.String("fir_status", string(i.FIRStatus)),
			)
			resp := toResponse(i)
			return &resp, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= saveAttempts {
			return nil, err
		}
	}
}

func (s *Service) authorize(ctx context.Context, actor Actor, touristID uuid.UUID) error {
	if actor.IsAdmin {
		return nil
	}
	t, err := s.tourists.FindByID(ctx, touristID)
	if err != nil {
		return err
	}
	if !t.IsOwnedBy(actor.UserID) {
		return shared.ErrForbidden
	}
	return nil
}
