package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// SummarySource provides the dashboard counts sampled by TouristMetrics.
type SummarySource interface {
	Summary(ctx context.Context) (tourist.Summary, error)
}

// TouristMetricsConfig configures NewTouristMetrics.
type TouristMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	Source          SummarySource
	CollectInterval time.Duration
}

// TouristMetrics counts producer operations and samples dashboard totals.
type TouristMetrics struct {
	logger   *zap.Logger
	source   SummarySource
	interval time.Duration

	registrations *Counter
	kycOutcomes   *Counter
	panics        *Counter
	scorePushes   *Counter
	incidents     *Counter
	tourists      *Gauge

	stopCh      chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
	wg          sync.WaitGroup
}

// NewTouristMetrics creates the tourist instruments on cfg.Meter.
func NewTouristMetrics(cfg TouristMetricsConfig) (*TouristMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = time.Minute
	}

	tm := &TouristMetrics{
		logger:   logger,
		source:   cfg.Source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	var err error
	if tm.registrations, err = NewCounter(cfg.Meter, "tsafe_tourist_registrations_total",
		"Tourist profiles registered", "{tourist}"); err != nil {
		return nil, err
	}
	if tm.kycOutcomes, err = NewCounter(cfg.Meter, "tsafe_kyc_verifications_total",
		"KYC verification attempts by method and outcome", "{attempt}"); err != nil {
		return nil, err
	}
	if tm.panics, err = NewCounter(cfg.Meter, "tsafe_panics_raised_total",
		"Panic alerts raised", "{panic}"); err != nil {
		return nil, err
	}
	if tm.scorePushes, err = NewCounter(cfg.Meter, "tsafe_score_pushes_total",
		"Safety score pushes accepted", "{push}"); err != nil {
		return nil, err
	}
	if tm.incidents, err = NewCounter(cfg.Meter, "tsafe_incidents_reported_total",
		"Incidents reported by type", "{incident}"); err != nil {
		return nil, err
	}
	if tm.tourists, err = NewGauge(cfg.Meter, "tsafe_tourists",
		"Tourist profiles by kind", "{tourist}"); err != nil {
		return nil, err
	}
	return tm, nil
}

// RecordRegistration counts a registered profile.
func (tm *TouristMetrics) RecordRegistration(ctx context.Context) {
	tm.registrations.Inc(ctx)
}

// RecordKYC counts a verification attempt.
func (tm *TouristMetrics) RecordKYC(ctx context.Context, method tourist.KYCMethod, outcome string) {
	tm.kycOutcomes.Inc(ctx, AttrKYCMethod.String(string(method)), AttrOutcome.String(outcome))
}

// RecordPanic counts a raised panic alert.
func (tm *TouristMetrics) RecordPanic(ctx context.Context) {
	tm.panics.Inc(ctx)
}

// RecordScorePush counts an accepted score push.
func (tm *TouristMetrics) RecordScorePush(ctx context.Context) {
	tm.scorePushes.Inc(ctx)
}

// RecordIncident counts a reported incident.
func (tm *TouristMetrics) RecordIncident(ctx context.Context, incidentType string) {
	tm.incidents.Inc(ctx, AttrIncidentType.String(incidentType))
}

// Collect samples the summary once.
func (tm *TouristMetrics) Collect(ctx context.Context) {
	if tm.source == nil {
		return
	}
	s, err := tm.source.Summary(ctx)
	if err != nil {
		tm.logger.Warn("Failed to collect tourist summary", zap.Error(err))
		return
	}
	tm.tourists.Record(ctx, s.Total, AttrSummaryKind.String("total"))
	tm.tourists.Record(ctx, s.Active, AttrSummaryKind.String("active"))
	tm.tourists.Record(ctx, s.WithPanics, AttrSummaryKind.String("with_panics"))
	tm.tourists.Record(ctx, s.Unresolved, AttrSummaryKind.String("unresolved"))
}

// StartPeriodicCollection samples the summary every interval until Stop is
// called or ctx ends. Later calls are ignored.
func (tm *TouristMetrics) StartPeriodicCollection(ctx context.Context) {
	tm.collectOnce.Do(func() {
		tm.wg.Add(1)
		go func() {
			defer tm.wg.Done()
			ticker := time.NewTicker(tm.interval)
			defer ticker.Stop()

			tm.Collect(ctx)
			for {
				select {
				case <-ticker.C:
					tm.Collect(ctx)
				case <-tm.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	})
}

// Stop ends periodic collection. It is safe to call more than once.
func (tm *TouristMetrics) Stop() {
	tm.stopOnce.Do(func() {
		close(tm.stopCh)
		tm.wg.Wait()
	})
}
