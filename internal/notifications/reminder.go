package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
)

// DefaultCheckpoints are the overdue ages, in whole hours, that trigger a reminder.
var DefaultCheckpoints = []int{1, 6, 12, 24, 48, 72}

// ReminderRepository provides overdue tasks and records sent checkpoints.
type ReminderRepository interface {
	// ListOverdueTasks returns incomplete tasks due at or before dueBefore,
	// with all relations loaded.
	ListOverdueTasks(ctx context.Context, dueBefore time.Time) ([]*domain.Task, error)
	MarkReminderSent(ctx context.Context, taskID string, checkpoint int) error
}

// ReminderSender sends reminder messages.
type ReminderSender interface {
	IsConfigured() bool
	SendReminder(ctx context.Context, task TaskSnapshot, hoursOverdue int) (*MessageHandle, error)
}

// PollerConfig contains reminder poller configuration.
type PollerConfig struct {
	Interval    time.Duration
	Checkpoints []int
}

// DefaultPollerConfig returns default poller configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    time.Hour,
		Checkpoints: DefaultCheckpoints,
	}
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	StartedAt   time.Time `json:"started_at"`
	Skipped     bool      `json:"skipped"`
	Overdue     int       `json:"overdue"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	AlreadySent int       `json:"already_sent"`
	Error       string    `json:"error,omitempty"`
}

// ReminderPoller periodically scans for overdue tasks and sends a reminder
// when a task's overdue age is exactly one of the configured checkpoints.
type ReminderPoller struct {
	config      PollerConfig
	checkpoints map[int]struct{}
	repo        ReminderRepository
	sender      ReminderSender
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	cycleMu sync.Mutex
}

// PollerOption configures a ReminderPoller.
type PollerOption func(*ReminderPoller)

// WithPollerLogger sets the logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *ReminderPoller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPollerClock overrides the clock used to compute overdue age.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *ReminderPoller) {
		if now != nil {
			p.now = now
		}
	}
}

// NewReminderPoller creates a stopped poller.
func NewReminderPoller(config PollerConfig, repo ReminderRepository, sender ReminderSender, opts ...PollerOption) *ReminderPoller {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if len(config.Checkpoints) == 0 {
		config.Checkpoints = DefaultCheckpoints
	}

	checkpoints := make(map[int]struct{}, len(config.Checkpoints))
	for _, c := range config.Checkpoints {
		checkpoints[c] = struct{}{}
	}

	p := &ReminderPoller{
		config:      config,
		checkpoints: checkpoints,
		repo:        repo,
		sender:      sender,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling on interval boundaries. Starting a running poller is a no-op.
func (p *ReminderPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run(ctx, p.stopCh, p.doneCh)

	p.logger.Info("reminder poller started",
		"interval", p.config.Interval,
		"checkpoints", p.config.Checkpoints,
	)
}

// Stop halts polling and waits for an in-flight cycle. Stopping a stopped poller is a no-op.
func (p *ReminderPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	p.mu.Unlock()

	// Only this run is awaited; a Start racing with Stop gets its own channels.
	close(stopCh)
	<-doneCh
	p.logger.Info("reminder poller stopped")
}

// IsRunning reports whether the poller is active.
func (p *ReminderPoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReminderPoller) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		timer := time.NewTimer(p.untilNextTick())

		select {
		case <-ctx.Done():
			timer.Stop()
			p.mu.Lock()
			if p.stopCh == stopCh {
				p.running = false
				p.stopCh, p.doneCh = nil, nil
			}
			p.mu.Unlock()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			p.CheckNow(ctx)
		}
	}
}

func (p *ReminderPoller) untilNextTick() time.Duration {
	now := p.now()
	next := now.Truncate(p.config.Interval).Add(p.config.Interval)
	return next.Sub(now)
}

// CheckNow runs one poll cycle immediately, whether or not the poller is running.
func (p *ReminderPoller) CheckNow(ctx context.Context) CycleResult {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	now := p.now()
	result := CycleResult{StartedAt: now}

	if !p.sender.IsConfigured() {
		p.logger.Debug("telegram not configured, skipping reminder check")
		result.Skipped = true
		recordReminderCycle("skipped")
		return result
	}

	tasks, err := p.repo.ListOverdueTasks(ctx, now.Add(-time.Hour))
	if err != nil {
		p.logger.Error("failed to list overdue tasks", "error", err)
		result.Error = err.Error()
		recordReminderCycle("failed")
		return result
	}

	result.Overdue = len(tasks)
	overdueTasks.Set(float64(len(tasks)))

	for _, task := range tasks {
		if task.DueDate == nil || task.Status == domain.TaskStatusDone {
			continue
		}

		hours := HoursOverdue(*task.DueDate, now)
		if !p.IsCheckpoint(hours) {
			continue
		}

		if task.ReminderCheckpoint >= hours {
			result.AlreadySent++
			continue
		}

		if err := p.remind(ctx, task, hours); err != nil {
			p.logger.Warn("failed to send reminder",
				"task_id", task.ID,
				"hours_overdue", hours,
				"error", err,
			)
			result.Failed++
			recordReminder("failed")
			continue
		}

		result.Sent++
		recordReminder("success")
	}

	recordReminderCycle("success")
	p.logger.Info("reminder check completed",
		"overdue", result.Overdue,
		"sent", result.Sent,
		"failed", result.Failed,
		"already_sent", result.AlreadySent,
	)

	return result
}

func (p *ReminderPoller) remind(ctx context.Context, task *domain.Task, hours int) error {
	if _, err := p.sender.SendReminder(ctx, SnapshotFromTask(task), hours); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}

	if err := p.repo.MarkReminderSent(ctx, task.ID, hours); err != nil {
		p.logger.Warn("failed to record reminder checkpoint",
			"task_id", task.ID,
			"checkpoint", hours,
			"error", err,
		)
	}
	return nil
}

// IsCheckpoint reports whether hours is one of the configured checkpoints.
func (p *ReminderPoller) IsCheckpoint(hours int) bool {
	_, ok := p.checkpoints[hours]
	return ok
}

// HoursOverdue returns the whole hours elapsed since due, rounded down.
func HoursOverdue(due, now time.Time) int {
	return int(math.Floor(now.Sub(due).Hours()))
}
