// Package sync implements the offline action queue: the guarantee that a
// mutating operation requested while offline or under load is never lost,
// retried within bounds, and replayed once connectivity returns.
package sync

import (
	"context"
	"sort"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/shared"
	syncdomain "github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/sync"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/config"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionStore is the durable half of the queue.
type ActionStore interface {
	SaveSnapshot(ctx context.Context, actions []*syncdomain.Action) error
	Load(ctx context.Context) ([]*syncdomain.Action, error)
}

// Executor performs one action type against its remote collaborator (payment
// processor, medical aid gateway). Executors are injected so tests control
// every outcome.
type Executor interface {
	Execute(ctx context.Context, action *syncdomain.Action) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action *syncdomain.Action) error

// Execute implements Executor
func (f ExecutorFunc) Execute(ctx context.Context, action *syncdomain.Action) error {
	return f(ctx, action)
}

// Counts summarizes the live queue for the status badge.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
}

// Queue is the durable, priority-ordered queue of deferred mutating
// operations. A single dispatch loop owns all state transitions; the pending
// pool is sorted priority-then-FIFO before every pass and at most
// MaxConcurrency actions are in flight at once.
type Queue struct {
	cfg       config.QueueConfig
	store     ActionStore
	bus       *event.Bus
	logger    *zap.Logger
	executors map[syncdomain.ActionType]Executor

	mu      stdsync.Mutex
	actions map[uuid.UUID]*syncdomain.Action

	online atomic.Bool

	kick     chan struct{}
	stopCh   chan struct{}
	stopOnce stdsync.Once
	wg       stdsync.WaitGroup
}

// NewQueue creates the queue and rehydrates pending and failed actions from
// the durable store.
func NewQueue(cfg config.QueueConfig, store ActionStore, bus *event.Bus, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		logger:    logger,
		executors: make(map[syncdomain.ActionType]Executor),
		actions:   make(map[uuid.UUID]*syncdomain.Action),
		kick:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	q.online.Store(true)
	q.hydrate()
	return q
}

func (q *Queue) hydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	actions, err := q.store.Load(ctx)
	if err != nil {
		q.logger.Warn("failed to hydrate offline queue, starting empty", zap.Error(err))
		return
	}
	for _, a := range actions {
		q.actions[a.ID] = a
	}
	if len(actions) > 0 {
		q.logger.Info("offline queue hydrated", zap.Int("actions", len(actions)))
	}
}

// RegisterExecutor binds an executor to an action type. Must be called before
// Start; actions without an executor fail their attempts.
func (q *Queue) RegisterExecutor(t syncdomain.ActionType, e Executor) {
	q.executors[t] = e
}

// Start launches the dispatch loop with its periodic sync tick.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
	q.trigger()
}

// Stop halts dispatching and waits for in-flight actions to settle.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

// Online reports connectivity as last signalled.
func (q *Queue) Online() bool {
	return q.online.Load()
}

// SetOnline records a connectivity transition. Going online triggers an
// immediate processing pass over everything queued while offline.
func (q *Queue) SetOnline(online bool) {
	was := q.online.Swap(online)
	if was == online {
		return
	}
	if online {
		q.logger.Info("connectivity restored, replaying offline queue")
		q.bus.Publish(event.New(event.TypeQueueOnline, nil))
		q.trigger()
	} else {
		q.logger.Info("connectivity lost, queueing mutations")
		q.bus.Publish(event.New(event.TypeQueueOffline, nil))
	}
}

// Enqueue validates and admits a new action. At capacity the oldest pending
// low-priority action is evicted to make room; if none exists the enqueue
// fails outright, signalling backpressure to the caller.
func (q *Queue) Enqueue(ctx context.Context, payload syncdomain.Payload, priority syncdomain.ActionPriority) (*syncdomain.Action, error) {
	action, err := syncdomain.NewAction(payload, priority, q.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	if len(q.actions) >= q.cfg.MaxSize {
		victim := q.oldestPendingLowLocked()
		if victim == nil {
			q.mu.Unlock()
			return nil, shared.ErrQueueFull
		}
		delete(q.actions, victim.ID)
		q.logger.Warn("queue at capacity, evicted low-priority action",
			zap.String("evicted_id", victim.ID.String()),
			zap.String("evicted_type", string(victim.Type)),
		)
	}
	q.actions[action.ID] = action
	q.mu.Unlock()

	q.persist(ctx)
	if q.online.Load() {
		q.trigger()
	}
	return action, nil
}

// oldestPendingLowLocked finds the eviction victim. Caller holds q.mu.
func (q *Queue) oldestPendingLowLocked() *syncdomain.Action {
	var victim *syncdomain.Action
	for _, a := range q.actions {
		if a.Status != syncdomain.StatusPending || a.Priority != syncdomain.PriorityLow {
			continue
		}
		if victim == nil || a.Timestamp.Before(victim.Timestamp) {
			victim = a
		}
	}
	return victim
}

// RetryFailed resets terminally failed actions to pending and triggers a
// pass. Returns how many became eligible again.
func (q *Queue) RetryFailed(ctx context.Context) int {
	q.mu.Lock()
	reset := 0
	for _, a := range q.actions {
		if a.Status == syncdomain.StatusFailed {
			if err := a.ResetForRetry(); err == nil {
				reset++
			}
		}
	}
	q.mu.Unlock()

	if reset > 0 {
		q.persist(ctx)
		if q.online.Load() {
			q.trigger()
		}
	}
	return reset
}

// Cancel withdraws a pending or failed action.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	action, ok := q.actions[id]
	if !ok {
		q.mu.Unlock()
		return shared.ErrNotFound
	}
	if err := action.Cancel(); err != nil {
		q.mu.Unlock()
		return shared.ErrInvalidState
	}
	delete(q.actions, id)
	q.mu.Unlock()

	q.persist(ctx)
	return nil
}

// Actions returns a snapshot copy of the live queue, newest first.
func (q *Queue) Actions() []*syncdomain.Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*syncdomain.Action, 0, len(q.actions))
	for _, a := range q.actions {
		dup := *a
		snapshot = append(snapshot, &dup)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Timestamp.After(snapshot[j].Timestamp) })
	return snapshot
}

// Counts returns live queue totals by status.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	var c Counts
	for _, a := range q.actions {
		switch a.Status {
		case syncdomain.StatusPending:
			c.Pending++
		case syncdomain.StatusProcessing:
			c.Processing++
		case syncdomain.StatusFailed:
			c.Failed++
		}
	}
	return c
}

// ProcessPending runs dispatch passes until no due actions remain or the
// register goes offline. Exposed for tests; the run loop calls it on every
// trigger.
func (q *Queue) ProcessPending(ctx context.Context) {
	for q.online.Load() {
		batch := q.claimBatch()
		if len(batch) == 0 {
			return
		}

		var wg stdsync.WaitGroup
		for _, a := range batch {
			wg.Add(1)
			go func(action *syncdomain.Action) {
				defer wg.Done()
				q.execute(ctx, action)
			}(a)
		}
		wg.Wait()

		q.persist(ctx)
	}
}

// claimBatch picks up to MaxConcurrency due actions in priority-then-FIFO
// order and marks them processing. An action already processing is never
// claimed twice.
func (q *Queue) claimBatch() []*syncdomain.Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	due := make([]*syncdomain.Action, 0, len(q.actions))
	for _, a := range q.actions {
		if a.Due(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority.Rank() != due[j].Priority.Rank() {
			return due[i].Priority.Rank() < due[j].Priority.Rank()
		}
		return due[i].Timestamp.Before(due[j].Timestamp)
	})

	if len(due) > q.cfg.MaxConcurrency {
		due = due[:q.cfg.MaxConcurrency]
	}
	for _, a := range due {
		if err := a.MarkProcessing(); err != nil {
			q.logger.Error("failed to claim action", zap.String("action_id", a.ID.String()), zap.Error(err))
		}
	}
	return due
}

// execute runs one action under the per-action deadline. Failures are
// isolated per action and never abort siblings in the same batch.
func (q *Queue) execute(ctx context.Context, action *syncdomain.Action) {
	executor, ok := q.executors[action.Type]

	var err error
	if !ok {
		err = shared.NewDomainError("NO_EXECUTOR", "no executor registered for action type")
	} else {
		execCtx, cancel := context.WithTimeout(ctx, q.cfg.ActionTimeout)
		err = executor.Execute(execCtx, action)
		cancel()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		action.MarkCompleted()
		q.bus.Publish(event.New(event.TypeActionCompleted, map[string]any{
			"action_id":   action.ID.String(),
			"action_type": string(action.Type),
		}))
		return
	}

	action.MarkFailed(err.Error(), q.cfg.BaseBackoff)
	if action.Status == syncdomain.StatusFailed {
		q.logger.Warn("action exhausted retries",
			zap.String("action_id", action.ID.String()),
			zap.String("action_type", string(action.Type)),
			zap.Int("retries", action.RetryCount),
			zap.String("last_error", action.LastError),
		)
		q.bus.Publish(event.New(event.TypeActionFailed, map[string]any{
			"action_id":   action.ID.String(),
			"action_type": string(action.Type),
			"error":       action.LastError,
			"retries":     action.RetryCount,
		}))
	} else {
		q.logger.Debug("action failed, will retry",
			zap.String("action_id", action.ID.String()),
			zap.Int("retry_count", action.RetryCount),
		)
	}
}

// persist snapshots the live queue to the durable store, pruning completed
// and cancelled actions from memory afterwards. A store failure is benign;
// the queue keeps operating in memory and the next save retries. The store
// reads the snapshot outside q.mu, so it gets copies, never live actions.
func (q *Queue) persist(ctx context.Context) {
	q.mu.Lock()
	snapshot := make([]*syncdomain.Action, 0, len(q.actions))
	for _, a := range q.actions {
		dup := *a
		snapshot = append(snapshot, &dup)
	}
	q.mu.Unlock()

	if err := q.store.SaveSnapshot(ctx, snapshot); err != nil {
		q.logger.Warn("failed to persist offline queue, continuing in memory", zap.Error(err))
	}

	q.mu.Lock()
	for id, a := range q.actions {
		if a.Status == syncdomain.StatusCompleted || a.Status == syncdomain.StatusCancelled {
			delete(q.actions, id)
		}
	}
	q.mu.Unlock()
}

func (q *Queue) trigger() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-q.kick:
		case <-ticker.C:
		}
		if q.online.Load() {
			q.ProcessPending(context.Background())
		}
	}
}
