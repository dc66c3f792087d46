// Package onchain drives tourist work items to a terminal status against the ledger.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

// PassResult summarises one reconciliation pass.
type PassResult struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Skipped   bool          `json:"skipped"`
	Entities  int           `json:"entities"`
	Submitted int           `json:"submitted"`
	Confirmed int           `json:"confirmed"`
	Failed    int           `json:"failed"`
	Halted    int           `json:"halted"`
}

func (r *PassResult) add(o PassResult) {
	r.Submitted += o.Submitted
	r.Confirmed += o.Confirmed
	r.Failed += o.Failed
	r.Halted += o.Halted
}

// Status is the worker's control-surface snapshot.
type Status struct {
	Running         bool        `json:"running"`
	Processing      bool        `json:"processing"`
	OperatorAddress string      `json:"operator_address"`
	ContractAddress string      `json:"contract_address"`
	LastPass        *PassResult `json:"last_pass,omitempty"`
}

// Option customises a Worker.
type Option func(*Worker)

// WithPublisher sets the transition event sink.
func WithPublisher(p tourist.TransitionPublisher) Option {
	return func(w *Worker) { w.publisher = p }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker reconciles pending and submitted work items with the ledger.
// A pass runs at most once at a time; Start and Stop are idempotent.
type Worker struct {
	repo      tourist.Repository
	ledger    tourist.Ledger
	config    Config
	logger    *zap.Logger
	publisher tourist.TransitionPublisher
	metrics   *Metrics
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan struct{}

	processing atomic.Bool
	lastPass   atomic.Pointer[PassResult]

	// unrecorded holds handles of submissions the ledger acknowledged but the
	// store never recorded, keyed by work item id. A pending item found here
	// resumes on its handle instead of being submitted again.
	unrecordedMu sync.Mutex
	unrecorded   map[uuid.UUID]string
}

// NewWorker creates a worker. It does not start polling.
func NewWorker(
	repo tourist.Repository,
	ledger tourist.Ledger,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	w := &Worker{
		repo:       repo,
		ledger:     ledger,
		config:     config,
		logger:     logger.Named("onchain"),
		publisher:  tourist.NopPublisher{},
		now:        time.Now,
		kick:       make(chan struct{}, 1),
		unrecorded: make(map[uuid.UUID]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins polling. Calling Start on a running worker only logs a warning.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("onchain worker is already running")
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)

	w.logger.Info("onchain worker started",
		zap.Int("batch_size", w.config.BatchSize),
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("entity_concurrency", w.config.EntityConcurrency),
		zap.String("operator", w.ledger.OperatorAddress()),
		zap.String("contract", w.ledger.ContractAddress()),
	)
	return nil
}

// Stop halts polling and waits for an in-flight pass to finish, up to ctx.
// In-flight ledger calls are not cancelled. Stopping a stopped worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.logger.Debug("onchain worker is not running")
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		w.logger.Info("onchain worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("onchain worker stop timed out waiting for pass", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Kick asks a running worker to start a pass without waiting for the next tick.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Status returns the current control state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	return Status{
		Running:         running,
		Processing:      w.processing.Load(),
		OperatorAddress: w.ledger.OperatorAddress(),
		ContractAddress: w.ledger.ContractAddress(),
		LastPass:        w.lastPass.Load(),
	}
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	w.RunDiagnostics(ctx)
	w.runLogged(ctx)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runLogged(ctx)
		case <-w.kick:
			w.runLogged(ctx)
		}
	}
}

func (w *Worker) runLogged(ctx context.Context) {
	if _, err := w.RunPass(ctx); err != nil {
		w.logger.Error("reconciliation pass failed", zap.Error(err))
	}
}

// RunPass executes one pass over at most BatchSize entities. When another
// pass is executing it returns immediately with Skipped set.
func (w *Worker) RunPass(ctx context.Context) (PassResult, error) {
	if !w.processing.CompareAndSwap(false, true) {
		w.logger.Debug("reconciliation pass already in progress, skipping")
		w.metrics.IncSkipped()
		return PassResult{Skipped: true}, nil
	}
	defer w.processing.Store(false)

	// Shutdown must not abort ledger calls that are already under way.
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.StartSpan(ctx, "onchain.pass")
	defer span.End()
	result := PassResult{StartedAt: w.now()}
	started := time.Now()

	entities, err := w.repo.FindWithUnresolvedWork(ctx, w.config.BatchSize)
	if err != nil {
		result.Duration = time.Since(started)
		w.metrics.ObservePass("error", result.Duration)
		telemetry.RecordError(span, err)
		return result, fmt.Errorf("find unresolved work: %w", err)
	}
	result.Entities = len(entities)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.config.EntityConcurrency)
	for _, t := range entities {
		g.Go(func() error {
			r := w.processEntity(ctx, t)
			mu.Lock()
			result.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(started)
	w.lastPass.Store(&result)
	w.metrics.ObservePass("ok", result.Duration)
	telemetry.SetAttributes(span,
		"pass.entities", result.Entities,
		"pass.confirmed", result.Confirmed,
		"pass.failed", result.Failed,
	)

	if result.Entities > 0 {
		w.logger.Info("reconciliation pass finished",
			zap.Int("entities", result.Entities),
			zap.Int("submitted", result.Submitted),
			zap.Int("confirmed", result.Confirmed),
			zap.Int("failed", result.Failed),
			zap.Int("halted", result.Halted),
			zap.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

// processEntity walks the entity's unresolved items in stored order.
func (w *Worker) processEntity(ctx context.Context, t *tourist.Tourist) PassResult {
	var res PassResult
	for _, id := range t.UnresolvedWork() {
		item, ok := t.WorkItem(id)
		if !ok || !item.IsUnresolved() {
			continue
		}
		var halt bool
		t, halt = w.processItem(ctx, t, id, &res)
		if halt {
			res.Halted++
			w.logger.Error("stopped processing tourist for this pass",
				zap.String("tourist_id", t.ID.String()),
				zap.String("work_item_id", id.String()),
			)
			break
		}
	}
	return res
}

// processItem advances one item. A panic inside the handler is recorded as
// the item's failure.
func (w *Worker) processItem(ctx context.Context, t *tourist.Tourist, id uuid.UUID, res *PassResult) (cur *tourist.Tourist, halt bool) {
	w.metrics.itemStarted()
	defer w.metrics.itemFinished()

	cur = t
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("recovered panic while processing work item",
				zap.String("tourist_id", cur.ID.String()),
				zap.String("work_item_id", id.String()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			cur, halt = w.fail(ctx, cur, id, fmt.Sprintf("internal error: %v", r), res)
		}
	}()

	item, _ := cur.WorkItem(id)
	ctx, span := telemetry.StartSpan(ctx, "onchain.work_item",
		telemetry.WithAttribute(telemetry.SpanAttrTouristID, cur.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrWorkItemID, id.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAction, item.Action.String()),
	)
	defer span.End()

	operation := "dispatch"
	if item.Status == tourist.StatusSubmitted {
		operation = "resume"
	}
	handle, unrecorded := w.unrecordedHandle(id)
	if unrecorded && item.Status != tourist.StatusPending {
		// The save that looked failed did commit.
		w.forgetUnrecorded(id)
		unrecorded = false
	}
	if unrecorded {
		operation = "record"
	}
	telemetry.WithProfilingLabels(ctx, telemetry.WorkerLabels(operation, item.Action.String()), func(ctx context.Context) {
		switch item.Status {
		case tourist.StatusPending:
			if unrecorded {
				cur, halt = w.resumeUnrecorded(ctx, cur, id, handle, res)
				return
			}
			cur, halt = w.dispatch(ctx, cur, id, res)
		case tourist.StatusSubmitted:
			w.logger.Info("resuming finality wait for submitted work item",
				zap.String("tourist_id", cur.ID.String()),
				zap.String("work_item_id", id.String()),
				zap.String("tx_hash", item.LedgerHandle),
			)
			cur, halt = w.awaitFinality(ctx, cur, id, item.LedgerHandle, res)
		case tourist.StatusConfirmed, tourist.StatusFailed:
		}
	})
	if final, ok := cur.WorkItem(id); ok {
		telemetry.SetAttributes(span, telemetry.SpanAttrStatus, final.Status.String())
	}
	return cur, halt
}

// dispatch performs the action-specific procedure for a pending item.
func (w *Worker) dispatch(ctx context.Context, t *tourist.Tourist, id uuid.UUID, res *PassResult) (*tourist.Tourist, bool) {
	item, _ := t.WorkItem(id)
	action, payloadRef := item.Action, item.PayloadRef

	fee, submits := w.config.Gas.For(action)
	if !submits {
		if action != tourist.ActionPanic && action != tourist.ActionVerifyKYC {
			return w.fail(ctx, t, id, fmt.Sprintf("unsupported work item action %q", action), res)
		}
		cur, err := w.transition(ctx, t, id, func(wi *tourist.WorkItem) error {
			return wi.ConfirmOffChain(w.now())
		})
		if err != nil {
			w.logPersistFailure(cur, id, tourist.StatusConfirmed, err)
			return cur, true
		}
		res.Confirmed++
		return cur, false
	}

	var (
		handle string
		err    error
	)
	switch action {
	case tourist.ActionRegister:
		handle, err = w.submitRegistration(ctx, t, fee)
	case tourist.ActionUpdate:
		err = w.callLedger(ctx, "submit_update", func(cctx context.Context) (callErr error) {
			handle, callErr = w.ledger.SubmitUpdate(cctx, t.ChainID, payloadRef, t.TrackingOptIn, fee)
			return callErr
		})
	case tourist.ActionScore:
		err = w.callLedger(ctx, "submit_score", func(cctx context.Context) (callErr error) {
			handle, callErr = w.ledger.SubmitScorePush(cctx, t.ChainID, payloadRef, fee)
			return callErr
		})
	default:
		err = fmt.Errorf("unsupported work item action %q", action)
	}
	if err != nil {
		w.logger.Warn("work item submission failed",
			zap.String("tourist_id", t.ID.String()),
			zap.String("work_item_id", id.String()),
			zap.String("action", action.String()),
			zap.Error(err),
		)
		return w.fail(ctx, t, id, err.Error(), res)
	}

	res.Submitted++
	cur, err := w.recordSubmission(ctx, t, id, handle)
	if err != nil {
		w.rememberUnrecorded(id, handle)
		w.logger.Error("failed to persist submitted work item; transaction is on the ledger but not recorded",
			zap.String("tourist_id", t.ID.String()),
			zap.String("work_item_id", id.String()),
			zap.String("tx_hash", handle),
			zap.Error(err),
		)
		return cur, true
	}
	return w.awaitFinality(ctx, cur, id, handle, res)
}

// resumeUnrecorded records a submission acknowledged in an earlier pass and
// waits for its finality. The ledger is not called again.
func (w *Worker) resumeUnrecorded(ctx context.Context, t *tourist.Tourist, id uuid.UUID, handle string, res *PassResult) (*tourist.Tourist, bool) {
	w.logger.Info("recording earlier submission of pending work item",
		zap.String("tourist_id", t.ID.String()),
		zap.String("work_item_id", id.String()),
		zap.String("tx_hash", handle),
	)
	cur, err := w.recordSubmission(ctx, t, id, handle)
	if err != nil {
		w.logger.Error("still unable to persist submitted work item",
			zap.String("tourist_id", t.ID.String()),
			zap.String("work_item_id", id.String()),
			zap.String("tx_hash", handle),
			zap.Error(err),
		)
		return cur, true
	}
	w.forgetUnrecorded(id)
	return w.awaitFinality(ctx, cur, id, handle, res)
}

// recordSubmission persists pending→submitted. Unlike other transitions it
// retries any save error, backing off between attempts, because losing the
// handle would send the same operation to the ledger twice.
func (w *Worker) recordSubmission(ctx context.Context, t *tourist.Tourist, id uuid.UUID, handle string) (*tourist.Tourist, error) {
	markSubmitted := func(wi *tourist.WorkItem) error {
		if wi.Status == tourist.StatusSubmitted && wi.LedgerHandle == handle {
			return nil
		}
		return wi.MarkSubmitted(handle, w.now())
	}

	cur := t
	for attempt := 1; ; attempt++ {
		saved, err := w.transition(ctx, cur, id, markSubmitted)
		if err == nil {
			return saved, nil
		}
		if attempt >= w.config.SaveAttempts {
			return saved, err
		}
		w.logger.Warn("failed to record submission, retrying",
			zap.String("tourist_id", cur.ID.String()),
			zap.String("work_item_id", id.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(time.Duration(attempt) * w.config.SaveBackoff)

		reloaded, lerr := w.repo.FindByID(ctx, cur.ID)
		if lerr != nil {
			return saved, errors.Join(err, fmt.Errorf("reload after failed save: %w", lerr))
		}
		cur = reloaded
	}
}

func (w *Worker) unrecordedHandle(id uuid.UUID) (string, bool) {
	w.unrecordedMu.Lock()
	defer w.unrecordedMu.Unlock()
	handle, ok := w.unrecorded[id]
	return handle, ok
}

func (w *Worker) rememberUnrecorded(id uuid.UUID, handle string) {
	w.unrecordedMu.Lock()
	defer w.unrecordedMu.Unlock()
	w.unrecorded[id] = handle
}

func (w *Worker) forgetUnrecorded(id uuid.UUID) {
	w.unrecordedMu.Lock()
	defer w.unrecordedMu.Unlock()
	delete(w.unrecorded, id)
}

// submitRegistration checks expiry and the ledger's existing state before
// sending the registration. A failed pre-check fails the item; it is not
// treated as "not registered".
func (w *Worker) submitRegistration(ctx context.Context, t *tourist.Tourist, fee tourist.FeeCap) (string, error) {
	now := w.now()
	if !t.ValidUntil.After(now) {
		return "", fmt.Errorf("%w. Current: %d, Provided: %d", tourist.ErrInvalidExpiry, now.Unix(), t.ValidUntil.Unix())
	}

	var registered bool
	err := w.callLedger(ctx, "is_registered", func(cctx context.Context) (callErr error) {
		registered, callErr = w.ledger.IsRegistered(cctx, t.ChainID)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("registration pre-check failed: %w", err)
	}
	if registered {
		return "", tourist.ErrAlreadyRegistered
	}

	req := tourist.RegistrationRequest{
		ChainID:       t.ChainID,
		OwnerWallet:   t.OwnerWallet,
		KYCRef:        t.KYCRef,
		EmergencyRef:  t.EmergencyRef,
		ValidUntil:    t.ValidUntil,
		TrackingOptIn: t.TrackingOptIn,
	}
	var handle string
	err = w.callLedger(ctx, "submit_registration", func(cctx context.Context) (callErr error) {
		handle, callErr = w.ledger.SubmitRegistration(cctx, req, fee)
		return callErr
	})
	return handle, err
}

// awaitFinality blocks on the ledger and records the outcome.
func (w *Worker) awaitFinality(ctx context.Context, t *tourist.Tourist, id uuid.UUID, handle string, res *PassResult) (*tourist.Tourist, bool) {
	fctx, cancel := context.WithTimeout(ctx, w.config.FinalityTimeout)
	defer cancel()

	started := time.Now()
	err := w.ledger.AwaitFinality(fctx, handle, w.config.Confirmations)
	w.metrics.ObserveLedgerCall("await_finality", err, time.Since(started))

	if err != nil {
		w.logger.Warn("work item did not reach finality",
			zap.String("tourist_id", t.ID.String()),
			zap.String("work_item_id", id.String()),
			zap.String("tx_hash", handle),
			zap.Error(err),
		)
		return w.fail(ctx, t, id, fmt.Sprintf("%v (tx %s)", err, handle), res)
	}

	cur, err := w.transition(ctx, t, id, func(wi *tourist.WorkItem) error {
		return wi.MarkConfirmed(w.now())
	})
	if err != nil {
		w.logPersistFailure(cur, id, tourist.StatusConfirmed, err)
		return cur, true
	}
	res.Confirmed++
	return cur, false
}

// fail records a terminal failure on the item. Persist errors halt the entity
// so later items are not advanced past an unrecorded one.
func (w *Worker) fail(ctx context.Context, t *tourist.Tourist, id uuid.UUID, cause string, res *PassResult) (*tourist.Tourist, bool) {
	cur, err := w.transition(ctx, t, id, func(wi *tourist.WorkItem) error {
		return wi.MarkFailed(cause, w.now())
	})
	if err != nil {
		w.logPersistFailure(cur, id, tourist.StatusFailed, err)
		return cur, true
	}
	res.Failed++
	return cur, false
}

// transition applies fn to the item and saves the entity. On a version
// conflict the entity is reloaded and fn is re-applied to the item with the
// same id, up to SaveAttempts times.
func (w *Worker) transition(ctx context.Context, t *tourist.Tourist, id uuid.UUID, fn func(*tourist.WorkItem) error) (*tourist.Tourist, error) {
	cur := t
	for attempt := 1; ; attempt++ {
		item, ok := cur.WorkItem(id)
		if !ok {
			return cur, fmt.Errorf("work item %s: %w", id, shared.ErrNotFound)
		}
		from := item.Status
		if err := fn(item); err != nil {
			return cur, err
		}
		cur.Touch(w.now())

		err := w.repo.Save(ctx, cur)
		if err == nil {
			w.recordTransition(ctx, cur, item, from)
			return cur, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= w.config.SaveAttempts {
			return cur, err
		}

		w.logger.Warn("version conflict saving work item, reloading",
			zap.String("tourist_id", cur.ID.String()),
			zap.String("work_item_id", id.String()),
			zap.Int("attempt", attempt),
		)
		reloaded, lerr := w.repo.FindByID(ctx, cur.ID)
		if lerr != nil {
			return cur, fmt.Errorf("reload after conflict: %w", lerr)
		}
		cur = reloaded
	}
}

func (w *Worker) recordTransition(ctx context.Context, t *tourist.Tourist, item *tourist.WorkItem, from tourist.WorkItemStatus) {
	w.metrics.IncTransition(item.Action.String(), item.Status.String())
	w.logger.Info("work item transitioned",
		zap.String("tourist_id", t.ID.String()),
		zap.String("work_item_id", item.ID.String()),
		zap.String("action", item.Action.String()),
		zap.String("from", from.String()),
		zap.String("to", item.Status.String()),
		zap.String("tx_hash", item.LedgerHandle),
	)

	pctx, cancel := context.WithTimeout(ctx, w.config.CallTimeout)
	defer cancel()
	if err := w.publisher.Publish(pctx, tourist.NewTransitionEvent(t, item, from)); err != nil {
		w.logger.Warn("failed to publish transition event",
			zap.String("work_item_id", item.ID.String()),
			zap.Error(err),
		)
	}
}

func (w *Worker) logPersistFailure(t *tourist.Tourist, id uuid.UUID, to tourist.WorkItemStatus, err error) {
	w.logger.Error("failed to persist work item transition",
		zap.String("tourist_id", t.ID.String()),
		zap.String("work_item_id", id.String()),
		zap.String("to", to.String()),
		zap.Error(err),
	)
}

// callLedger runs fn under CallTimeout and records its latency.
func (w *Worker) callLedger(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, w.config.CallTimeout)
	defer cancel()

	started := time.Now()
	err := fn(cctx)
	w.metrics.ObserveLedgerCall(op, err, time.Since(started))
	return err
}
