package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyflow/internal/balance"
	"storyflow/internal/domain"
	"storyflow/internal/sora"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, taskID string) (*sora.TaskStatus, error)
}

func (f *fakeFetcher) FetchStatus(ctx context.Context, taskID string) (*sora.TaskStatus, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, taskID)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type appliedUpdate struct {
	kind     domain.VideoJobKind
	targetID string
	upd      domain.VideoStatusUpdate
}

type fakeStore struct {
	mu        sync.Mutex
	updateErr error
	updates   []appliedUpdate
	billing   map[string]struct {
		userID string
		cost   int
	}
	pending []domain.PendingPoll
}

func newFakeStore() *fakeStore {
	return &fakeStore{billing: map[string]struct {
		userID string
		cost   int
	}{}}
}

func (s *fakeStore) setBilling(targetID, userID string, cost int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.billing[targetID] = struct {
		userID string
		cost   int
	}{userID, cost}
}

func (s *fakeStore) ApplyUpdate(ctx context.Context, kind domain.VideoJobKind, targetID string, upd domain.VideoStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, appliedUpdate{kind: kind, targetID: targetID, upd: upd})
	return s.updateErr
}

func (s *fakeStore) Billing(ctx context.Context, kind domain.VideoJobKind, targetID string) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.billing[targetID]
	if !ok {
		return "", 0, domain.ErrNotFound
	}
	return b.userID, b.cost, nil
}

func (s *fakeStore) Unfinished(ctx context.Context) ([]domain.PendingPoll, error) {
	return s.pending, nil
}

func (s *fakeStore) lastUpdate() (appliedUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return appliedUpdate{}, false
	}
	return s.updates[len(s.updates)-1], true
}

type refundCall struct {
	userID    string
	amount    int
	relatedID string
}

type fakeLedger struct {
	mu      sync.Mutex
	refunds []refundCall
}

func (l *fakeLedger) Refund(ctx context.Context, userID string, amount int, description, relatedID string) balance.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds = append(l.refunds, refundCall{userID: userID, amount: amount, relatedID: relatedID})
	return balance.Result{Success: true, Balance: amount}
}

func (l *fakeLedger) refundCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refunds)
}

func testRegistry(fetcher StatusFetcher, store RecordStore, ledger RefundLedger, cfg Config) *Registry {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Millisecond
	}
	return NewRegistry(fetcher, store, ledger, cfg, zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within 2s")
}

func TestTrackCompletesOnSuccess(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusSuccess, Progress: "100", VideoURL: "https://cdn/video.mp4"}, nil
	}}
	store := newFakeStore()
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{})
	defer reg.StopAll()

	reg.Track("task-1", "variant-1", domain.KindStoryboardVariant)

	waitFor(t, func() bool { return len(reg.Status()) == 0 })

	upd, ok := store.lastUpdate()
	if !ok {
		t.Fatal("no update persisted")
	}
	if upd.upd.Status != domain.VideoCompleted || !upd.upd.Finished {
		t.Fatalf("unexpected terminal update: %+v", upd.upd)
	}
	if upd.upd.VideoURL == nil || *upd.upd.VideoURL != "https://cdn/video.mp4" {
		t.Fatalf("video url not carried through: %+v", upd.upd)
	}
	if ledger.refundCount() != 0 {
		t.Fatalf("refunded a successful job %d times", ledger.refundCount())
	}
}

func TestFailureRefundsExactlyOnce(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusFailure, FailReason: "content policy"}, nil
	}}
	store := newFakeStore()
	store.setBilling("variant-1", "user-1", 3)
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{})
	defer reg.StopAll()

	reg.Track("task-1", "variant-1", domain.KindStoryboardVariant)

	waitFor(t, func() bool { return ledger.refundCount() > 0 })
	// Give a few more intervals a chance to double-refund.
	time.Sleep(20 * time.Millisecond)

	if got := ledger.refundCount(); got != 1 {
		t.Fatalf("refund issued %d times, want exactly 1", got)
	}
	refund := ledger.refunds[0]
	if refund.userID != "user-1" || refund.amount != 3 || refund.relatedID != "task-1" {
		t.Fatalf("unexpected refund: %+v", refund)
	}
	upd, _ := store.lastUpdate()
	if upd.upd.Status != domain.VideoFailed || upd.upd.FailReason == nil || *upd.upd.FailReason != "content policy" {
		t.Fatalf("failure not persisted: %+v", upd.upd)
	}
	if len(reg.Status()) != 0 {
		t.Fatal("failed task still tracked")
	}
}

func TestTimeoutForceFailsAndRefunds(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusInProgress, Progress: "40"}, nil
	}}
	store := newFakeStore()
	store.setBilling("char-1", "user-2", 3)
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{MaxDuration: time.Nanosecond})
	defer reg.StopAll()

	reg.Track("task-2", "char-1", domain.KindCharacterVideo)

	waitFor(t, func() bool { return ledger.refundCount() > 0 })
	time.Sleep(20 * time.Millisecond)

	if got := ledger.refundCount(); got != 1 {
		t.Fatalf("timeout refund issued %d times, want exactly 1", got)
	}
	upd, ok := store.lastUpdate()
	if !ok {
		t.Fatal("no timeout update persisted")
	}
	if upd.upd.Status != domain.VideoFailed || !upd.upd.Finished {
		t.Fatalf("expected forced failure, got %+v", upd.upd)
	}
	if upd.upd.FailReason == nil || *upd.upd.FailReason != "generation timed out" {
		t.Fatalf("unexpected fail reason: %+v", upd.upd.FailReason)
	}
	if len(reg.Status()) != 0 {
		t.Fatal("expired task still tracked")
	}
}

func TestTransientFetchErrorKeepsPolling(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		if call < 3 {
			return nil, sora.ErrTransient
		}
		return &sora.TaskStatus{Status: sora.StatusSuccess}, nil
	}}
	store := newFakeStore()
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{})
	defer reg.StopAll()

	reg.Track("task-3", "variant-1", domain.KindStoryboardVariant)

	waitFor(t, func() bool { return len(reg.Status()) == 0 })

	if got := fetcher.callCount(); got < 3 {
		t.Fatalf("fetched %d times, want at least 3", got)
	}
	if ledger.refundCount() != 0 {
		t.Fatal("transient errors must not trigger a refund")
	}
	upd, _ := store.lastUpdate()
	if upd.upd.Status != domain.VideoCompleted {
		t.Fatalf("final status = %v", upd.upd.Status)
	}
}

func TestStatusWriteFailureDoesNotKillLoop(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		if call < 3 {
			return &sora.TaskStatus{Status: sora.StatusInProgress, Progress: "50"}, nil
		}
		return &sora.TaskStatus{Status: sora.StatusFailure, FailReason: "render error"}, nil
	}}
	store := newFakeStore()
	store.updateErr = errors.New("db unavailable")
	store.setBilling("variant-1", "user-1", 3)
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{})
	defer reg.StopAll()

	reg.Track("task-6", "variant-1", domain.KindStoryboardVariant)

	waitFor(t, func() bool { return len(reg.Status()) == 0 })
	time.Sleep(20 * time.Millisecond)

	// The write kept failing on every cycle, yet the loop continued polling
	// and still reached the terminal state.
	if got := fetcher.callCount(); got < 3 {
		t.Fatalf("fetched %d times, want at least 3", got)
	}
	upd, ok := store.lastUpdate()
	if !ok {
		t.Fatal("no update attempted")
	}
	if upd.upd.Status != domain.VideoFailed {
		t.Fatalf("final attempted status = %v, want failed", upd.upd.Status)
	}
	if got := ledger.refundCount(); got != 1 {
		t.Fatalf("refund issued %d times, want exactly 1", got)
	}
}

func TestTrackIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusInProgress}, nil
	}}
	store := newFakeStore()
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{Interval: time.Minute})
	defer reg.StopAll()

	reg.Track("task-4", "variant-1", domain.KindStoryboardVariant)
	reg.Track("task-4", "variant-1", domain.KindStoryboardVariant)
	reg.Track("task-4", "variant-1", domain.KindStoryboardVariant)

	if got := len(reg.Status()); got != 1 {
		t.Fatalf("tracked %d entries for one task", got)
	}
}

func TestTrackIgnoresEmptyTaskID(t *testing.T) {
	reg := testRegistry(&fakeFetcher{fn: func(int, string) (*sora.TaskStatus, error) {
		return nil, errors.New("must not be called")
	}}, newFakeStore(), &fakeLedger{}, Config{})
	defer reg.StopAll()

	reg.Track("", "variant-1", domain.KindStoryboardVariant)

	if got := len(reg.Status()); got != 0 {
		t.Fatalf("tracked %d entries for an empty task id", got)
	}
}

func TestStopCancelsWithoutRefund(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusInProgress}, nil
	}}
	store := newFakeStore()
	store.setBilling("variant-1", "user-1", 3)
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{Interval: time.Minute})

	reg.Track("task-5", "variant-1", domain.KindStoryboardVariant)
	reg.Stop("task-5")
	reg.StopAll()

	if got := len(reg.Status()); got != 0 {
		t.Fatalf("stopped task still tracked (%d entries)", got)
	}
	if ledger.refundCount() != 0 {
		t.Fatal("Stop must not refund")
	}
}

func TestResumeRebuildsTracking(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusInProgress}, nil
	}}
	store := newFakeStore()
	store.pending = []domain.PendingPoll{
		{TaskID: "task-a", TargetID: "variant-1", Kind: domain.KindStoryboardVariant},
		{TaskID: "task-b", TargetID: "char-1", Kind: domain.KindCharacterVideo},
	}
	ledger := &fakeLedger{}
	reg := testRegistry(fetcher, store, ledger, Config{Interval: time.Minute})
	defer reg.StopAll()

	if err := reg.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	status := reg.Status()
	if len(status) != 2 {
		t.Fatalf("resumed %d tasks, want 2", len(status))
	}
	seen := map[string]bool{}
	for _, s := range status {
		seen[s.TaskID] = true
	}
	if !seen["task-a"] || !seen["task-b"] {
		t.Fatalf("unexpected resumed set: %+v", status)
	}
}

func TestStopAllDrainsLoops(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(call int, taskID string) (*sora.TaskStatus, error) {
		return &sora.TaskStatus{Status: sora.StatusInProgress}, nil
	}}
	reg := testRegistry(fetcher, newFakeStore(), &fakeLedger{}, Config{Interval: time.Millisecond})

	reg.Track("task-x", "variant-1", domain.KindStoryboardVariant)
	reg.Track("task-y", "variant-2", domain.KindStoryboardVariant)

	done := make(chan struct{})
	go func() {
		reg.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopAll did not drain within 2s")
	}
	if got := len(reg.Status()); got != 0 {
		t.Fatalf("%d tasks tracked after StopAll", got)
	}
}
