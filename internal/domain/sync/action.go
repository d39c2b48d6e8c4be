package sync

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActionStatus represents the status of a queued offline action
type ActionStatus string

const (
	StatusPending    ActionStatus = "pending"
	StatusProcessing ActionStatus = "processing"
	StatusCompleted  ActionStatus = "completed"
	StatusFailed     ActionStatus = "failed"
	StatusCancelled  ActionStatus = "cancelled"
)

// ActionPriority orders the pending pool. High-priority actions are always
// dispatched before normal, normal before low; within a band, FIFO by enqueue time.
type ActionPriority string

const (
	PriorityHigh   ActionPriority = "high"
	PriorityNormal ActionPriority = "normal"
	PriorityLow    ActionPriority = "low"
)

// Rank returns the sort rank for a priority, lower dispatched first.
func (p ActionPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// Default retry configuration
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 2 * time.Second
)

// Action is one deferred mutating operation held by the offline queue.
// Only the queue's processing pass mutates an action after enqueue.
type Action struct {
	ID            uuid.UUID
	Type          ActionType
	Payload       Payload
	Status        ActionStatus
	Priority      ActionPriority
	Timestamp     time.Time
	RetryCount    int
	MaxRetries    int
	NextAttemptAt *time.Time
	LastError     string
	UpdatedAt     time.Time
}

// NewAction creates a pending action for the given validated payload.
func NewAction(payload Payload, priority ActionPriority, maxRetries int) (*Action, error) {
	if payload == nil {
		return nil, errors.New("action payload is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := time.Now()
	return &Action{
		ID:         uuid.New(),
		Type:       payload.ActionType(),
		Payload:    payload,
		Status:     StatusPending,
		Priority:   priority,
		Timestamp:  now,
		MaxRetries: maxRetries,
		UpdatedAt:  now,
	}, nil
}

// Due reports whether the action is eligible for dispatch at the given instant:
// pending and past its backoff deadline, if any.
func (a *Action) Due(now time.Time) bool {
	if a.Status != StatusPending {
		return false
	}
	return a.NextAttemptAt == nil || !now.Before(*a.NextAttemptAt)
}

// MarkProcessing claims the action for a dispatch slot. An action already
// processing is never claimed twice.
func (a *Action) MarkProcessing() error {
	if a.Status != StatusPending {
		return errors.New("can only claim pending actions")
	}
	a.Status = StatusProcessing
	a.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted records successful execution. Completed actions are pruned
// from the live queue on the next save.
func (a *Action) MarkCompleted() {
	a.Status = StatusCompleted
	a.LastError = ""
	a.UpdatedAt = time.Now()
}

// MarkFailed records a failed execution attempt. Below the retry bound the
// action returns to pending with an exponential backoff deadline
// (base, 2*base, 4*base, ...); at the bound it becomes terminally failed and
// is never retried without an explicit reset.
func (a *Action) MarkFailed(errMsg string, baseBackoff time.Duration) {
	a.RetryCount++
	a.LastError = errMsg
	a.UpdatedAt = time.Now()

	if a.RetryCount >= a.MaxRetries {
		a.Status = StatusFailed
		a.NextAttemptAt = nil
		return
	}

	if baseBackoff <= 0 {
		baseBackoff = DefaultBaseBackoff
	}
	backoff := baseBackoff * time.Duration(1<<uint(a.RetryCount-1))
	next := time.Now().Add(backoff)
	a.Status = StatusPending
	a.NextAttemptAt = &next
}

// ResetForRetry returns a terminally failed action to the pending pool.
func (a *Action) ResetForRetry() error {
	if a.Status != StatusFailed {
		return errors.New("can only retry failed actions")
	}
	a.Status = StatusPending
	a.RetryCount = 0
	a.LastError = ""
	a.NextAttemptAt = nil
	a.UpdatedAt = time.Now()
	return nil
}

// Cancel removes a pending action from dispatch eligibility.
func (a *Action) Cancel() error {
	if a.Status != StatusPending && a.Status != StatusFailed {
		return errors.New("can only cancel pending or failed actions")
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether the action will never execute again on its own.
func (a *Action) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed || a.Status == StatusCancelled
}
