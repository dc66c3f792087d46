package onchain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/ledger"
)

// fakeRepository is an in-memory document store with version checks
type fakeRepository struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*tourist.Tourist
	order    []uuid.UUID
	saveHook func(r *fakeRepository, t *tourist.Tourist) error
	saves    int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{docs: make(map[uuid.UUID]*tourist.Tourist)}
}

func clone(t *tourist.Tourist) *tourist.Tourist {
	c := *t
	c.WorkItems = append([]tourist.WorkItem(nil), t.WorkItems...)
	c.Panics = append([]tourist.PanicRecord(nil), t.Panics...)
	return &c
}

func (r *fakeRepository) Create(_ context.Context, t *tourist.Tourist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[t.ID] = clone(t)
	r.order = append(r.order, t.ID)
	return nil
}

func (r *fakeRepository) Save(_ context.Context, t *tourist.Tourist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveHook != nil {
		if err := r.saveHook(r, t); err != nil {
			return err
		}
	}
	stored, ok := r.docs[t.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != t.Version {
		return shared.ErrConcurrencyConflict
	}
	t.Version++
	r.docs[t.ID] = clone(t)
	return nil
}

func (r *fakeRepository) FindByID(_ context.Context, id uuid.UUID) (*tourist.Tourist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.docs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return clone(t), nil
}

func (r *fakeRepository) FindByUserID(context.Context, uuid.UUID) (*tourist.Tourist, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeRepository) FindByChainID(context.Context, string) (*tourist.Tourist, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeRepository) FindWithUnresolvedWork(_ context.Context, limit int) ([]*tourist.Tourist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tourist.Tourist
	for _, id := range r.order {
		if t := r.docs[id]; t.HasUnresolvedWork() {
			out = append(out, clone(t))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepository) List(context.Context, shared.Filter) ([]*tourist.Tourist, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepository) Summary(context.Context) (tourist.Summary, error) {
	return tourist.Summary{}, nil
}

func (r *fakeRepository) CountByCodePrefix(context.Context, string) (int64, error) {
	return 0, nil
}

func (r *fakeRepository) stored(t *testing.T, id uuid.UUID) *tourist.Tourist {
	t.Helper()
	doc, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	return doc
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []tourist.TransitionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...tourist.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) transitions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, string(e.Action)+":"+string(e.To))
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.CallTimeout = 2 * time.Second
	cfg.FinalityTimeout = 2 * time.Second
	cfg.SaveBackoff = time.Millisecond
	return cfg
}

func newTestWorker(t *testing.T, repo tourist.Repository, l tourist.Ledger, opts ...Option) *Worker {
	t.Helper()
	w, err := NewWorker(repo, l, testConfig(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return w
}

func seedTourist(t *testing.T, repo *fakeRepository) *tourist.Tourist {
	t.Helper()
	now := time.Now()
	tr, err := tourist.NewTourist(tourist.NewTouristParams{
		UserID:        uuid.New(),
		FullName:      "Test Tourist",
		OwnerWallet:   "0x52908400098527886E0F7030069857D2E4169EE7",
		KYCRef:        "kyc-ref",
		EmergencyRef:  "emergency-ref",
		ValidUntil:    now.Add(30 * 24 * time.Hour),
		TrackingOptIn: true,
	}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), tr))
	return tr
}

// seedRegistered stores a tourist whose registration is already confirmed.
func seedRegistered(t *testing.T, repo *fakeRepository, l *ledger.MemoryLedger) *tourist.Tourist {
	t.Helper()
	tr := seedTourist(t, repo)
	require.NoError(t, tr.WorkItems[0].MarkSubmitted("0xreg", time.Now()))
	require.NoError(t, tr.WorkItems[0].MarkConfirmed(time.Now()))
	require.NoError(t, repo.Save(context.Background(), tr))
	l.SetRegistered(tr.ChainID)
	return tr
}

func appendItem(t *testing.T, repo *fakeRepository, id uuid.UUID, action tourist.Action, ref string) uuid.UUID {
	t.Helper()
	tr := repo.stored(t, id)
	item, err := tr.AppendWorkItem(action, ref, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), tr))
	return item.ID
}

func assertAllInvariants(t *testing.T, tr *tourist.Tourist) {
	t.Helper()
	for i := range tr.WorkItems {
		assert.NoError(t, tr.WorkItems[i].CheckInvariants())
	}
}

func TestNewWorker_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gas.Update.GasLimit = cfg.Gas.Register.GasLimit
	_, err := NewWorker(newFakeRepository(), ledger.NewMemoryLedger(), cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.BatchSize = 0
	_, err = NewWorker(newFakeRepository(), ledger.NewMemoryLedger(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestWorker_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("pending registration reaches confirmed", func(t *testing.T) {
		repo := newFakeRepository()
		l := ledger.NewMemoryLedger()
		tr := seedTourist(t, repo)
		w := newTestWorker(t, repo, l)

		res, err := w.RunPass(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Entities)
		assert.Equal(t, 1, res.Submitted)
		assert.Equal(t, 1, res.Confirmed)

		got := repo.stored(t, tr.ID)
		assert.Equal(t, tourist.StatusConfirmed, got.WorkItems[0].Status)
		assert.NotEmpty(t, got.WorkItems[0].LedgerHandle)
		assert.False(t, got.WorkItems[0].IsOffChain())
		assert.True(t, l.IsChainRegistered(tr.ChainID))
		assert.Equal(t, uint64(500_000), l.FeeFor(ledger.OpRegister).GasLimit)
		assertAllInvariants(t, got)
	})

	t.Run("expired registration fails without ledger calls", func(t *testing.T) {
		repo := newFakeRepository()
		l := ledger.NewMemoryLedger()
		tr := seedTourist(t, repo)
		stored := repo.stored(t, tr.ID)
		stored.ValidUntil = time.Now().Add(-time.Minute)
		require.NoError(t, repo.Save(ctx, stored))
		w := newTestWorker(t, repo, l)

		_, err := w.RunPass(ctx)
		require.NoError(t, err)

		got := repo.stored(t, tr.ID)
		assert.Equal(t, tourist.StatusFailed, got.WorkItems[0].Status)
		assert.True(t, strings.HasPrefix(got.WorkItems[0].Error, "validUntil must be in the future. Current: "))
		assert.Contains(t, got.WorkItems[0].Error, "Provided: ")
		assert.Zero(t, l.Calls(ledger.OpIsRegistered))
		assert.Zero(t, l.SubmissionCount())
	})

	t.Run("already registered fails without submit", func(t *testing.T) {
		repo := newFakeRepository()
		l := ledger.NewMemoryLedger()
		tr := seedTourist(t, repo)
		l.SetRegistered(tr.ChainID)
		w := newTestWorker(t, repo, l)

		_, err := w.RunPass(ctx)
		require.NoError(t, err)

		got := repo.stored(t, tr.ID)
		assert.Equal(t, tourist.StatusFailed, got.WorkItems[0].Status)
		assert.Equal(t, "tourist already registered on ledger", got.WorkItems[0].Error)
		assert.Equal(t, 1, l.Calls(ledger.OpIsRegistered))
		assert.Zero(t, l.SubmissionCount())
	})

	t.Run("pre-check failure fails the item", func(t *testing.T) {
		repo := newFakeRepository()
		l := ledger.NewMemoryLedger()
		tr := seedTourist(t, repo)
		l.FailNext(ledger.OpIsRegistered, tourist.NewLedgerError(tourist.ErrNetwork, "getTourist", "connection refused"))
		w := newTestWorker(t, repo, l)

		_, err := w.RunPass(ctx)
		require.NoError(t, err)

		got := repo.stored(t, tr.ID)
		assert.Equal(t, tourist.StatusFailed, got.WorkItems[0].Status)
		assert.Contains(t, got.WorkItems[0].Error, "connection refused")
		assert.Zero(t, l.SubmissionCount())
	})
}

func TestWorker_ShortCircuitActions(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, l)
	panicID := appendItem(t, repo, tr.ID, tourist.ActionPanic, "evidence-ref")
	kycID := appendItem(t, repo, tr.ID, tourist.ActionVerifyKYC, "kyc-v2")
	w := newTestWorker(t, repo, l)

	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Confirmed)
	assert.Zero(t, res.Submitted)

	got := repo.stored(t, tr.ID)
	for _, id := range []uuid.UUID{panicID, kycID} {
		item, ok := got.WorkItem(id)
		require.True(t, ok)
		assert.Equal(t, tourist.StatusConfirmed, item.Status)
		assert.True(t, item.IsOffChain())
	}
	assert.Zero(t, l.SubmissionCount())
	assert.Zero(t, l.Calls(ledger.OpAwaitFinality))
	assertAllInvariants(t, got)
}

func TestWorker_ItemsWithinEntityRunInOrder(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	pub := &recordingPublisher{}
	tr := seedTourist(t, repo)
	appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")
	appendItem(t, repo, tr.ID, tourist.ActionScore, "score-1")
	w := newTestWorker(t, repo, l, WithPublisher(pub))

	_, err := w.RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"register:submitted", "register:confirmed",
		"update:submitted", "update:confirmed",
		"score:submitted", "score:confirmed",
	}, pub.transitions())
	assert.Equal(t, uint64(300_000), l.FeeFor(ledger.OpUpdate).GasLimit)
	assert.Equal(t, uint64(250_000), l.FeeFor(ledger.OpScore).GasLimit)
	assert.False(t, repo.stored(t, tr.ID).HasUnresolvedWork())
}

func TestWorker_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	first := seedRegistered(t, repo, l)
	updateID := appendItem(t, repo, first.ID, tourist.ActionUpdate, "emergency-v2")
	scoreID := appendItem(t, repo, first.ID, tourist.ActionScore, "score-1")
	second := seedTourist(t, repo)

	l.FailNext(ledger.OpUpdate, tourist.NewLedgerError(tourist.ErrInsufficientFunds, "updateByOwner", "insufficient funds for gas"))
	w := newTestWorker(t, repo, l)

	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got := repo.stored(t, first.ID)
	upd, _ := got.WorkItem(updateID)
	assert.Equal(t, tourist.StatusFailed, upd.Status)
	assert.Contains(t, upd.Error, "insufficient funds")
	assert.Empty(t, upd.LedgerHandle)
	score, _ := got.WorkItem(scoreID)
	assert.Equal(t, tourist.StatusConfirmed, score.Status)

	assert.Equal(t, tourist.StatusConfirmed, repo.stored(t, second.ID).WorkItems[0].Status)
	assertAllInvariants(t, got)
}

func TestWorker_RevertedTransactionFails(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, l)
	scoreID := appendItem(t, repo, tr.ID, tourist.ActionScore, "score-1")

	// The submitted event carries the handle, so the revert is scripted there.
	w := newTestWorker(t, repo, l, WithPublisher(publisherFunc(func(e tourist.TransitionEvent) {
		if e.To == tourist.StatusSubmitted {
			l.SetFinalityOutcome(e.LedgerHandle, tourist.NewLedgerError(tourist.ErrReverted, "await_finality", "status 0"))
		}
	})))

	_, err := w.RunPass(ctx)
	require.NoError(t, err)

	item, _ := repo.stored(t, tr.ID).WorkItem(scoreID)
	assert.Equal(t, tourist.StatusFailed, item.Status)
	assert.Contains(t, item.Error, "transaction failed on ledger")
	assert.Contains(t, item.Error, "(tx 0x")
	assert.Empty(t, item.LedgerHandle)
}

type publisherFunc func(tourist.TransitionEvent)

func (f publisherFunc) Publish(_ context.Context, events ...tourist.TransitionEvent) error {
	for _, e := range events {
		f(e)
	}
	return nil
}

func (f publisherFunc) Close() error { return nil }

func TestWorker_RepollsSubmittedAfterRestart(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)

	stored := repo.stored(t, tr.ID)
	require.NoError(t, stored.WorkItems[0].MarkSubmitted("0xorphan", time.Now()))
	require.NoError(t, repo.Save(ctx, stored))
	l.Track("0xorphan", ledger.OpRegister, tr.ChainID)

	w := newTestWorker(t, repo, l)
	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)

	got := repo.stored(t, tr.ID)
	assert.Equal(t, tourist.StatusConfirmed, got.WorkItems[0].Status)
	assert.Equal(t, "0xorphan", got.WorkItems[0].LedgerHandle)
	assert.Zero(t, l.SubmissionCount())
	assert.Zero(t, l.Calls(ledger.OpIsRegistered))
}

func TestWorker_SingleFlight(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)
	release := l.BlockFinality()
	defer release()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	w := newTestWorker(t, repo, l, WithMetrics(metrics))

	done := make(chan PassResult)
	go func() {
		res, _ := w.RunPass(ctx)
		done <- res
	}()
	require.Eventually(t, func() bool { return w.Status().Processing }, time.Second, 5*time.Millisecond)

	skipped, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.True(t, skipped.Skipped)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SkippedPasses))

	release()
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, l.SubmissionCount())
	assert.Equal(t, tourist.StatusConfirmed, repo.stored(t, tr.ID).WorkItems[0].Status)
	assert.False(t, w.Status().Processing)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Transitions.WithLabelValues("register", "confirmed")))
}

func TestWorker_StartStopIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)
	w := newTestWorker(t, repo, l)

	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.Status().Running)
	assert.Equal(t, l.OperatorAddress(), w.Status().OperatorAddress)

	require.Eventually(t, func() bool {
		return repo.stored(t, tr.ID).WorkItems[0].Status == tourist.StatusConfirmed
	}, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	require.NoError(t, w.Stop(stopCtx))
	assert.False(t, w.Status().Running)
	assert.Equal(t, 1, l.SubmissionCount())
	require.NotNil(t, w.Status().LastPass)
}

func TestWorker_StopDoesNotCancelInFlightCalls(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)
	release := l.BlockFinality()
	defer release()
	w := newTestWorker(t, repo, l)

	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { return w.Status().Processing }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Stop(stopCtx), context.DeadlineExceeded)
	assert.False(t, w.Status().Running)

	release()
	require.Eventually(t, func() bool {
		return repo.stored(t, tr.ID).WorkItems[0].Status == tourist.StatusConfirmed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_BatchSize(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	for i := 0; i < 25; i++ {
		seedTourist(t, repo)
	}
	w := newTestWorker(t, repo, l)

	first, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, first.Entities)

	second, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, second.Entities)
	assert.Equal(t, 25, l.SubmissionCount())
}

func TestWorker_EntityConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	var ids []uuid.UUID
	for i := 0; i < 8; i++ {
		tr := seedTourist(t, repo)
		appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")
		ids = append(ids, tr.ID)
	}
	cfg := testConfig()
	cfg.EntityConcurrency = 4
	w, err := NewWorker(repo, l, cfg, zap.NewNop())
	require.NoError(t, err)

	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, res.Confirmed)
	for _, id := range ids {
		assert.False(t, repo.stored(t, id).HasUnresolvedWork())
	}
}

func TestWorker_VersionConflictReappliesTransition(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)

	conflicted := false
	repo.saveHook = func(r *fakeRepository, t *tourist.Tourist) error {
		if !conflicted {
			conflicted = true
			stored := r.docs[t.ID]
			_, _ = stored.AppendWorkItem(tourist.ActionScore, "score-1", time.Now())
			stored.Version++
		}
		return nil
	}
	w := newTestWorker(t, repo, l)

	_, err := w.RunPass(ctx)
	require.NoError(t, err)

	got := repo.stored(t, tr.ID)
	require.Len(t, got.WorkItems, 2)
	assert.Equal(t, tourist.StatusConfirmed, got.WorkItems[0].Status)
	assert.Equal(t, tourist.StatusPending, got.WorkItems[1].Status)
	assert.Equal(t, 1, l.SubmissionCount())
}

func TestWorker_PersistFailureHaltsEntity(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)
	appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")

	repo.saveHook = func(_ *fakeRepository, t *tourist.Tourist) error {
		if t.WorkItems[0].Status == tourist.StatusSubmitted {
			return errors.New("database unavailable")
		}
		return nil
	}
	w := newTestWorker(t, repo, l)

	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Halted)

	got := repo.stored(t, tr.ID)
	assert.Equal(t, tourist.StatusPending, got.WorkItems[0].Status)
	assert.Equal(t, tourist.StatusPending, got.WorkItems[1].Status)
	assert.Equal(t, 1, l.SubmissionCount())
	assert.Zero(t, l.Calls(ledger.OpUpdate))
}

func TestWorker_TransientSaveFailureAfterSubmitIsRetried(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, l)
	updateID := appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")

	failed := false
	repo.saveHook = func(_ *fakeRepository, t *tourist.Tourist) error {
		if item, _ := t.WorkItem(updateID); item.Status == tourist.StatusSubmitted && !failed {
			failed = true
			return errors.New("connection reset by peer")
		}
		return nil
	}
	w := newTestWorker(t, repo, l)

	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Halted)
	assert.Equal(t, 1, res.Confirmed)

	item, _ := repo.stored(t, tr.ID).WorkItem(updateID)
	assert.Equal(t, tourist.StatusConfirmed, item.Status)
	assert.Equal(t, 1, l.Calls(ledger.OpUpdate))
}

func TestWorker_UnrecordedSubmissionIsNotResubmitted(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, l)
	updateID := appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")

	storeDown := true
	repo.saveHook = func(_ *fakeRepository, t *tourist.Tourist) error {
		if item, _ := t.WorkItem(updateID); storeDown && item.Status == tourist.StatusSubmitted {
			return errors.New("database unavailable")
		}
		return nil
	}
	pub := &recordingPublisher{}
	w := newTestWorker(t, repo, l, WithPublisher(pub))

	first, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Halted)
	item, _ := repo.stored(t, tr.ID).WorkItem(updateID)
	require.Equal(t, tourist.StatusPending, item.Status)
	require.Equal(t, 1, l.Calls(ledger.OpUpdate))

	storeDown = false
	second, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Halted)
	assert.Zero(t, second.Submitted)
	assert.Equal(t, 1, second.Confirmed)

	item, _ = repo.stored(t, tr.ID).WorkItem(updateID)
	assert.Equal(t, tourist.StatusConfirmed, item.Status)
	assert.NotEmpty(t, item.LedgerHandle)
	assert.Equal(t, 1, l.Calls(ledger.OpUpdate), "update must reach the ledger once")
	assert.Equal(t, []string{"update:submitted", "update:confirmed"}, pub.transitions())

	_, known := w.unrecordedHandle(updateID)
	assert.False(t, known)
}

func TestWorker_TransitionsTouchTourist(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, l)
	appendItem(t, repo, tr.ID, tourist.ActionScore, "score-1")
	later := time.Now().Add(time.Hour).Truncate(time.Second)
	w := newTestWorker(t, repo, l, WithClock(func() time.Time { return later }))

	_, err := w.RunPass(ctx)
	require.NoError(t, err)

	got := repo.stored(t, tr.ID)
	assert.True(t, got.UpdatedAt.Equal(later), "updated_at %s", got.UpdatedAt)
	assert.Equal(t, tourist.StatusConfirmed, got.WorkItems[1].Status)
}

// stalledLedger never answers update submissions before the caller gives up.
type stalledLedger struct {
	*ledger.MemoryLedger
}

func (stalledLedger) SubmitUpdate(ctx context.Context, _, _ string, _ bool, _ tourist.FeeCap) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWorker_LedgerCallTimeoutFailsItem(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	mem := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, mem)
	updateID := appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")

	cfg := testConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	w, err := NewWorker(repo, stalledLedger{mem}, cfg, zap.NewNop())
	require.NoError(t, err)

	started := time.Now()
	res, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, res.Failed)

	item, _ := repo.stored(t, tr.ID).WorkItem(updateID)
	assert.Equal(t, tourist.StatusFailed, item.Status)
	assert.Contains(t, item.Error, "deadline")
	assert.Empty(t, item.LedgerHandle)
}

func TestWorker_UpdateWithoutConfirmedRegistrationIsSubmitted(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	l := ledger.NewMemoryLedger()
	tr := seedTourist(t, repo)
	stored := repo.stored(t, tr.ID)
	require.NoError(t, stored.WorkItems[0].MarkFailed("registration abandoned", time.Now()))
	require.NoError(t, repo.Save(ctx, stored))
	updateID := appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")
	w := newTestWorker(t, repo, l)

	_, err := w.RunPass(ctx)
	require.NoError(t, err)

	assert.False(t, l.IsChainRegistered(tr.ChainID))
	assert.Equal(t, 1, l.Calls(ledger.OpUpdate))
	assert.Zero(t, l.Calls(ledger.OpIsRegistered))
	item, _ := repo.stored(t, tr.ID).WorkItem(updateID)
	assert.Equal(t, tourist.StatusConfirmed, item.Status)
}

type panickyLedger struct {
	*ledger.MemoryLedger
}

func (panickyLedger) SubmitUpdate(context.Context, string, string, bool, tourist.FeeCap) (string, error) {
	panic("nil pointer in encoder")
}

func TestWorker_RecoversHandlerPanic(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	mem := ledger.NewMemoryLedger()
	tr := seedRegistered(t, repo, mem)
	updateID := appendItem(t, repo, tr.ID, tourist.ActionUpdate, "emergency-v2")
	scoreID := appendItem(t, repo, tr.ID, tourist.ActionScore, "score-1")
	w := newTestWorker(t, repo, panickyLedger{mem})

	_, err := w.RunPass(ctx)
	require.NoError(t, err)

	got := repo.stored(t, tr.ID)
	upd, _ := got.WorkItem(updateID)
	assert.Equal(t, tourist.StatusFailed, upd.Status)
	assert.Contains(t, upd.Error, "internal error: nil pointer in encoder")
	score, _ := got.WorkItem(scoreID)
	assert.Equal(t, tourist.StatusConfirmed, score.Status)
}

func TestWorker_RunDiagnostics(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy ledger", func(t *testing.T) {
		w := newTestWorker(t, newFakeRepository(), ledger.NewMemoryLedger())
		d := w.RunDiagnostics(ctx)
		assert.True(t, d.Healthy(), d.Warnings)
		assert.Equal(t, "memory", d.Network.Name)
	})

	t.Run("problems are warnings", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		l.SetOperatorRole(false)
		l.SetBalance(decimal.Zero)
		l.SetFeeEstimate(tourist.FeeEstimate{BaseFeeGwei: decimal.NewFromInt(30), PriorityFeeGwei: decimal.NewFromInt(2)})
		w := newTestWorker(t, newFakeRepository(), l)

		d := w.RunDiagnostics(ctx)
		assert.Len(t, d.Warnings, 3)
	})
}
