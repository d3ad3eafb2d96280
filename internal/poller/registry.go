// Package poller drives in-flight video generation jobs to a terminal state.
// The external API has no webhook, so a registry of per-task loops polls it
// on a fixed interval, updates the persisted record, and reconciles the
// token ledger when a job fails. Tracking state is volatile; Resume rebuilds
// it from the durable records after a restart.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyflow/internal/balance"
	"storyflow/internal/domain"
	"storyflow/internal/sora"
)

// StatusFetcher queries the external API for one task.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, taskID string) (*sora.TaskStatus, error)
}

// RecordStore is the durable side of tracking. ApplyUpdate is best-effort
// from the registry's point of view; Billing must be reliable because it
// feeds refunds.
type RecordStore interface {
	ApplyUpdate(ctx context.Context, kind domain.VideoJobKind, targetID string, upd domain.VideoStatusUpdate) error
	Billing(ctx context.Context, kind domain.VideoJobKind, targetID string) (userID string, tokenCost int, err error)
	Unfinished(ctx context.Context) ([]domain.PendingPoll, error)
}

// RefundLedger issues the failure refunds.
type RefundLedger interface {
	Refund(ctx context.Context, userID string, amount int, description, relatedID string) balance.Result
}

// TrackedTask is one entry of the observability snapshot.
type TrackedTask struct {
	TaskID     string `json:"task_id"`
	DurationMS int64  `json:"duration_ms"`
}

type pollTask struct {
	taskID    string
	targetID  string
	kind      domain.VideoJobKind
	startedAt time.Time
	stop      chan struct{}
}

// Registry owns every active poll loop. It is safe for concurrent use; the
// task map is guarded by a mutex and each task runs in its own goroutine.
type Registry struct {
	fetcher     StatusFetcher
	store       RecordStore
	ledger      RefundLedger
	interval    time.Duration
	maxDuration time.Duration
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*pollTask
	wg    sync.WaitGroup
}

// Config bounds one registry's polling behavior.
type Config struct {
	Interval    time.Duration // between poll cycles, default 5s
	MaxDuration time.Duration // per-task ceiling measured from Track time, default 1h
}

func NewRegistry(fetcher StatusFetcher, store RecordStore, ledger RefundLedger, cfg Config, logger zerolog.Logger) *Registry {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		fetcher:     fetcher,
		store:       store,
		ledger:      ledger,
		interval:    cfg.Interval,
		maxDuration: cfg.MaxDuration,
		log:         logger,
		ctx:         ctx,
		cancel:      cancel,
		tasks:       make(map[string]*pollTask),
	}
}

// Track registers a task and starts its poll loop: one immediate cycle, then
// one every interval. Registering an already-tracked task is a no-op, so a
// task can never own two timers.
func (r *Registry) Track(taskID, targetID string, kind domain.VideoJobKind) {
	if taskID == "" {
		return
	}

	r.mu.Lock()
	if _, exists := r.tasks[taskID]; exists {
		r.mu.Unlock()
		return
	}
	task := &pollTask{
		taskID:    taskID,
		targetID:  targetID,
		kind:      kind,
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
	r.tasks[taskID] = task
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info().
		Str("task_id", taskID).
		Str("target_id", targetID).
		Str("kind", string(kind)).
		Msg("poller: tracking")

	go r.run(task)
}

func (r *Registry) run(task *pollTask) {
	defer r.wg.Done()

	if r.cycle(task) {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-task.stop:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.cycle(task) {
				return
			}
		}
	}
}

// cycle performs one poll. It returns true when tracking for the task is
// over, either because a terminal state was reached or the ceiling expired.
func (r *Registry) cycle(task *pollTask) bool {
	if time.Since(task.startedAt) > r.maxDuration {
		return r.expire(task)
	}

	status, err := r.fetcher.FetchStatus(r.ctx, task.taskID)
	if err != nil {
		// Transient by contract: nothing new this cycle, retry on the next.
		if !errors.Is(err, context.Canceled) {
			r.log.Debug().Err(err).Str("task_id", task.taskID).Msg("poller: fetch skipped")
		}
		return false
	}

	upd := status.Update()
	if err := r.store.ApplyUpdate(r.ctx, task.kind, task.targetID, upd); err != nil {
		// Best-effort bookkeeping; the next successful cycle self-corrects.
		r.log.Warn().Err(err).Str("task_id", task.taskID).Msg("poller: status update failed")
	}

	if !upd.Status.Terminal() {
		return false
	}

	// Detach before any refund so a racing cycle or Stop cannot refund twice.
	if !r.detach(task.taskID) {
		return true
	}

	if upd.Status == domain.VideoFailed {
		r.refund(task, refundDescription(task.kind))
	}

	r.log.Info().
		Str("task_id", task.taskID).
		Str("status", string(upd.Status)).
		Msg("poller: finished")
	return true
}

// expire force-fails a task that outlived the poll ceiling, refunds it, and
// stops tracking. This is the escape hatch guaranteeing a job can neither
// poll forever nor silently keep the user's tokens.
func (r *Registry) expire(task *pollTask) bool {
	if !r.detach(task.taskID) {
		return true
	}

	reason := "generation timed out"
	upd := domain.VideoStatusUpdate{
		Status:     domain.VideoFailed,
		FailReason: &reason,
		Finished:   true,
	}
	if err := r.store.ApplyUpdate(r.ctx, task.kind, task.targetID, upd); err != nil {
		r.log.Warn().Err(err).Str("task_id", task.taskID).Msg("poller: timeout update failed")
	}

	r.refund(task, refundDescription(task.kind))

	r.log.Warn().
		Str("task_id", task.taskID).
		Str("target_id", task.targetID).
		Msg("poller: gave up after max poll duration")
	return true
}

// refund credits the job's recorded token cost back to its owner. The amount
// is read from the durable record, not from memory, so a restart between
// submission and failure cannot lose it.
func (r *Registry) refund(task *pollTask, description string) {
	userID, tokenCost, err := r.store.Billing(r.ctx, task.kind, task.targetID)
	if err != nil {
		r.log.Error().Err(err).
			Str("task_id", task.taskID).
			Str("target_id", task.targetID).
			Msg("poller: billing lookup failed, refund not issued")
		return
	}
	if userID == "" || tokenCost <= 0 {
		return
	}

	res := r.ledger.Refund(r.ctx, userID, tokenCost, description, task.taskID)
	if !res.Success {
		r.log.Error().Err(res.Err).
			Str("task_id", task.taskID).
			Str("user_id", userID).
			Int("amount", tokenCost).
			Msg("poller: refund failed")
		return
	}
	r.log.Info().
		Str("task_id", task.taskID).
		Str("user_id", userID).
		Int("amount", tokenCost).
		Int("balance", res.Balance).
		Msg("poller: refunded")
}

// detach removes the task from the registry. Exactly one caller wins; only
// the winner may issue terminal side effects.
func (r *Registry) detach(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return false
	}
	delete(r.tasks, taskID)
	return true
}

// Stop cancels tracking for one task without touching its record or balance.
func (r *Registry) Stop(taskID string) {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if ok {
		delete(r.tasks, taskID)
	}
	r.mu.Unlock()
	if ok {
		close(task.stop)
	}
}

// StopAll cancels every poll loop and waits for them to drain. Called on
// shutdown so no goroutine outlives the process's grace period.
func (r *Registry) StopAll() {
	r.mu.Lock()
	for taskID, task := range r.tasks {
		delete(r.tasks, taskID)
		close(task.stop)
	}
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// Resume rebuilds tracking from the durable records: every queued or
// generating job with a task id gets a fresh poll loop (and a fresh ceiling
// window, measured from now).
func (r *Registry) Resume(ctx context.Context) error {
	pending, err := r.store.Unfinished(ctx)
	if err != nil {
		return err
	}
	for _, p := range pending {
		r.Track(p.TaskID, p.TargetID, p.Kind)
	}
	if len(pending) > 0 {
		r.log.Info().Int("count", len(pending)).Msg("poller: resumed pending jobs")
	}
	return nil
}

// Status snapshots the tracked tasks for observability.
func (r *Registry) Status() []TrackedTask {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TrackedTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, TrackedTask{
			TaskID:     task.taskID,
			DurationMS: now.Sub(task.startedAt).Milliseconds(),
		})
	}
	return out
}

func refundDescription(kind domain.VideoJobKind) string {
	if kind == domain.KindCharacterVideo {
		return "角色视频生成失败，代币已返还"
	}
	return "分镜视频生成失败，代币已返还"
}
