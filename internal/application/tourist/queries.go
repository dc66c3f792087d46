package tourist

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
)

// Get returns a profile to its owner or an admin. With decrypt set the
// sealed KYC document, emergency contacts and panic evidence are opened;
// payloads that fail to open are reported in DecryptError.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID, decrypt bool) (*TouristResponse, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !t.IsOwnedBy(actor.UserID) {
		return nil, shared.ErrForbidden
	}
	resp := toTouristResponse(t)
	if decrypt {
		s.open(ctx, t, &resp)
	}
	return &resp, nil
}

// GetMine returns the caller's own profile.
func (s *Service) GetMine(ctx context.Context, userID uuid.UUID, decrypt bool) (*TouristResponse, error) {
	t, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toTouristResponse(t)
	if decrypt {
		s.open(ctx, t, &resp)
	}
	return &resp, nil
}

func (s *Service) open(ctx context.Context, t *tourist.Tourist, resp *TouristResponse) {
	var failed []error
	var doc KYCDocument
	if err := s.vault.GetJSON(ctx, PurposeKYC, t.KYCRef, &doc); err != nil {
		failed = append(failed, err)
	} else {
		resp.KYCData = &doc
	}
	var contacts []EmergencyContact
	if err := s.vault.GetJSON(ctx, PurposeEmergency, t.EmergencyRef, &contacts); err != nil {
		failed = append(failed, err)
	} else {
		resp.EmergencyContacts = contacts
	}
	for i, p := range t.Panics {
		var evidence PanicEvidence
		if err := s.vault.GetJSON(ctx, PurposePanic, p.EvidenceRef, &evidence); err != nil {
			failed = append(failed, err)
			continue
		}
		resp.Panics[i].Evidence = &evidence
	}
	if len(failed) > 0 {
		err := errors.Join(failed...)
		s.logger.Warn("failed to open sealed payloads",
			zap.String("tourist_id", t.ID.String()),
			zap.Int("failures", len(failed)),
			zap.Error(err),
		)
		resp.DecryptError = "Some encrypted data could not be decrypted"
	}
}

// Dashboard summarises the caller's profile and ledger progress.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*DashboardResponse, error) {
	t, err := s.findByUser(ctx, userID)
	if errors.Is(err, ErrNoProfile) {
		return &DashboardResponse{
			Message: "No tourist profile found. Please create a tourist profile first.",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	summary := tourist.SummarizeChain(t.WorkItems)
	counts := t.CountByStatus()
	activePanics := 0
	for _, p := range t.Panics {
		if st := t.PanicStatus(p); st == tourist.StatusPending || st == tourist.StatusSubmitted {
			activePanics++
		}
	}

	view := &DashboardTourist{
		ID:                   t.ID,
		TouristCode:          t.TouristCode,
		ChainID:              t.ChainID,
		Nationality:          string(t.Nationality),
		ValidUntil:           t.ValidUntil,
		TrackingOptIn:        t.TrackingOptIn,
		KYCStatus:            string(t.KYC.Status),
		OnchainStatus:        string(summary.Status),
		IsRegisteredOnChain:  summary.Registered,
		LastSuccessfulTxHash: summary.LastConfirmedHandle,
		PanicCount:           len(t.Panics),
		ActivePanics:         activePanics,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
	if summary.Latest != nil {
		view.LastTxHash = summary.Latest.LedgerHandle
	}

	message := "Profile active"
	switch {
	case t.KYC.Status == tourist.KYCStatusPending:
		message = "Please complete KYC verification to activate your profile."
	case !summary.Registered:
		message = "Blockchain registration in progress. Please wait."
	case t.KYC.Status == tourist.KYCStatusVerified:
		message = "Profile fully active and registered on blockchain."
	}

	return &DashboardResponse{
		HasProfile:     true,
		Tourist:        view,
		CanCompleteKYC: t.KYC.Status == tourist.KYCStatusPending,
		BlockchainDetails: &BlockchainDetails{
			TotalTransactions:      counts.Total(),
			SuccessfulTransactions: counts.Confirmed,
			FailedTransactions:     counts.Failed,
			PendingTransactions:    counts.Pending + counts.Submitted,
		},
		Message: message,
	}, nil
}

// List returns a page of tourists with dashboard counts. Admin only.
func (s *Service) List(ctx context.Context, actor Actor, filter shared.Filter) (*ListResponse, error) {
	if !actor.IsAdmin {
		return nil, shared.ErrForbidden
	}
	filter = filter.Normalize()
	tourists, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]TouristListItem, len(tourists))
	for i, t := range tourists {
		items[i] = toListItem(t)
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &ListResponse{
		Tourists:   page.Items,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
		Summary:    summary,
	}, nil
}

// WorkerStatus returns the reconciliation worker's state.
func (s *Service) WorkerStatus() (onchain.Status, error) {
	if s.worker == nil {
		return onchain.Status{}, ErrWorkerUnavailable
	}
	return s.worker.Status(), nil
}

// StartWorker starts the reconciliation worker.
func (s *Service) StartWorker(ctx context.Context) (onchain.Status, error) {
	if s.worker == nil {
		return onchain.Status{}, ErrWorkerUnavailable
	}
	if err := s.worker.Start(ctx); err != nil {
		return onchain.Status{}, err
	}
	s.autostart.Store(true)
	return s.worker.Status(), nil
}

// StopWorker stops the reconciliation worker, waiting for an in-flight pass.
func (s *Service) StopWorker(ctx context.Context) (onchain.Status, error) {
	if s.worker == nil {
		return onchain.Status{}, ErrWorkerUnavailable
	}
	s.autostart.Store(false)
	if err := s.worker.Stop(ctx); err != nil {
		return onchain.Status{}, err
	}
	return s.worker.Status(), nil
}

// RunWorkerPass runs one reconciliation pass synchronously.
func (s *Service) RunWorkerPass(ctx context.Context) (onchain.PassResult, error) {
	if s.worker == nil {
		return onchain.PassResult{}, ErrWorkerUnavailable
	}
	return s.worker.RunPass(ctx)
}

// Diagnose runs the ledger diagnostics.
func (s *Service) Diagnose(ctx context.Context) (onchain.Diagnostics, error) {
	if s.worker == nil {
		return onchain.Diagnostics{}, ErrWorkerUnavailable
	}
	return s.worker.RunDiagnostics(ctx), nil
}
