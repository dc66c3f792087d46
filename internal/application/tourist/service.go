// Package tourist holds the producer and consumer use cases around tourist
// profiles. Producers seal payloads and append work items; the onchain worker
// alone moves those items forward.
package tourist

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
)

// Payload purposes. Each is bound to its sealed blob so a reference can only
// be opened under the purpose it was written with.
const (
	PurposeKYC       = "kyc"
	PurposeEmergency = "emergency_contacts"
	PurposePanic     = "panic_evidence"
	PurposeScore     = "safety_score"
)

// saveAttempts bounds reload-and-reapply on version conflicts with the worker.
const saveAttempts = 3

// Use case errors mapped to HTTP statuses by the handlers.
var (
	ErrProfileExists     = shared.NewDomainError("PROFILE_EXISTS", "Tourist profile already exists")
	ErrNoProfile         = shared.NewDomainError("NO_PROFILE", "No tourist profile found, register as a tourist first")
	ErrDuplicateRequest  = shared.NewDomainError("DUPLICATE_REQUEST", "Request with this idempotency key was already processed")
	ErrWorkerUnavailable = shared.NewDomainError("WORKER_UNAVAILABLE", "Onchain worker is not configured")
)

// PayloadVault seals documents into content-addressed blobs.
type PayloadVault interface {
	PutJSON(ctx context.Context, purpose string, doc any) (string, error)
	GetJSON(ctx context.Context, purpose, ref string, out any) error
}

// WorkerControl is the reconciliation worker's control surface.
type WorkerControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Kick()
	Status() onchain.Status
	RunPass(ctx context.Context) (onchain.PassResult, error)
	RunDiagnostics(ctx context.Context) onchain.Diagnostics
}

// MetricsRecorder counts producer outcomes.
type MetricsRecorder interface {
	RecordRegistration(ctx context.Context)
	RecordKYC(ctx context.Context, method tourist.KYCMethod, outcome string)
	RecordPanic(ctx context.Context)
	RecordScorePush(ctx context.Context)
}

type nopMetrics struct{}

func (nopMetrics) RecordRegistration(context.Context)                   {}
func (nopMetrics) RecordKYC(context.Context, tourist.KYCMethod, string) {}
func (nopMetrics) RecordPanic(context.Context)                          {}
func (nopMetrics) RecordScorePush(context.Context)                      {}

// Actor identifies the caller of a use case.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Config holds producer settings
type Config struct {
	DefaultValidity time.Duration
	ValidityBuffer  time.Duration
	OTPTTL          time.Duration
	MaxOTPAttempts  int
	DemoMode        bool
	IdempotencyTTL  time.Duration
	EmergencyNumber string
	// AutostartWorker lets producers start a stopped worker. StopWorker
	// turns it off until the next StartWorker.
	AutostartWorker bool
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		DefaultValidity: 30 * 24 * time.Hour,
		ValidityBuffer:  time.Hour,
		OTPTTL:          10 * time.Minute,
		MaxOTPAttempts:  5,
		IdempotencyTTL:  24 * time.Hour,
		EmergencyNumber: "+91-100",
		AutostartWorker: true,
	}
}

// Option customises a Service.
type Option func(*Service)

// WithIdempotencyStore enables Idempotency-Key replay protection.
func WithIdempotencyStore(store shared.IdempotencyStore) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithWorker lets producers nudge the worker after appending work.
func WithWorker(w WorkerControl) Option {
	return func(s *Service) { s.worker = w }
}

// WithMetrics sets the producer counters.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom overrides the OTP entropy source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// Service implements the tourist use cases
type Service struct {
	repo        tourist.Repository
	vault       PayloadVault
	challenges  tourist.ChallengeStore
	idempotency shared.IdempotencyStore
	worker      WorkerControl
	metrics     MetricsRecorder
	config      Config
	logger      *zap.Logger
	now         func() time.Time
	random      io.Reader

	autostart atomic.Bool
}

// NewService creates a Service
func NewService(
	repo tourist.Repository,
	vault PayloadVault,
	challenges tourist.ChallengeStore,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:       repo,
		vault:      vault,
		challenges: challenges,
		metrics:    nopMetrics{},
		config:     config,
		logger:     logger.Named("tourist"),
		now:        time.Now,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.autostart.Store(config.AutostartWorker)
	return s
}

// claimedKey is an Idempotency-Key held for one producer call. Unless keep is
// called once the work is stored, release hands the key back so the client
// can retry with it.
type claimedKey struct {
	store shared.IdempotencyStore
	key   string
	kept  bool
	log   *zap.Logger
}

func (k *claimedKey) keep() {
	if k != nil {
		k.kept = true
	}
}

func (k *claimedKey) release(ctx context.Context) {
	if k == nil || k.kept {
		return
	}
	if err := k.store.Release(context.WithoutCancel(ctx), k.key); err != nil {
		k.log.Warn("failed to release idempotency key", zap.String("key", k.key), zap.Error(err))
	}
}

// claim takes an Idempotency-Key. An empty key or a missing store skips the
// check and returns a nil claim, which is safe to keep and release.
func (s *Service) claim(ctx context.Context, userID uuid.UUID, op, key string) (*claimedKey, error) {
	if key == "" || s.idempotency == nil {
		return nil, nil
	}
	full := fmt.Sprintf("tourist:%s:%s:%s", userID, op, key)
	fresh, err := s.idempotency.MarkProcessed(ctx, full, s.config.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if !fresh {
		return nil, ErrDuplicateRequest
	}
	return &claimedKey{store: s.idempotency, key: full, log: s.logger}, nil
}

// mutate loads the tourist, applies fn and saves. On a version conflict the
// tourist is reloaded and fn applied again.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*tourist.Tourist) error) (*tourist.Tourist, error) {
	for attempt := 1; ; attempt++ {
		t, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		err = s.repo.Save(ctx, t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= saveAttempts {
			return nil, err
		}
		s.logger.Debug("version conflict appending work, retrying",
			zap.String("tourist_id", id.String()),
			zap.Int("attempt", attempt),
		)
	}
}

// ownedBy returns fn wrapped with an ownership check.
func ownedBy(userID uuid.UUID, fn func(*tourist.Tourist) error) func(*tourist.Tourist) error {
	return func(t *tourist.Tourist) error {
		if !t.IsOwnedBy(userID) {
			return shared.ErrForbidden
		}
		return fn(t)
	}
}

// nudge asks the worker to pick up new work without waiting for the next
// tick. A stopped worker is started only while autostart is on.
func (s *Service) nudge(ctx context.Context) {
	if s.worker == nil {
		return
	}
	if !s.worker.Status().Running {
		if !s.autostart.Load() {
			s.logger.Debug("onchain worker is stopped; new work waits for an operator start")
			return
		}
		if err := s.worker.Start(ctx); err != nil {
			s.logger.Warn("failed to start onchain worker", zap.Error(err))
			return
		}
	}
	s.worker.Kick()
}

func (s *Service) findByUser(ctx context.Context, userID uuid.UUID) (*tourist.Tourist, error) {
	t, err := s.repo.FindByUserID(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrNoProfile
	}
	return t, err
}
