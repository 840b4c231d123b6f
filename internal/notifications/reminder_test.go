package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pollNow = time.Date(2026, 3, 8, 15, 0, 20, 0, time.UTC)

func newTestPoller(t *testing.T, repo ReminderRepository, transport *mockTransport, cfg TransportConfig) *ReminderPoller {
	t.Helper()
	d := newTestDispatcher(t, cfg, transport)
	return NewReminderPoller(DefaultPollerConfig(), repo, d, WithPollerClock(func() time.Time { return pollNow }))
}

func TestHoursOverdue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, HoursOverdue(now.Add(-59*time.Minute), now))
	assert.Equal(t, 1, HoursOverdue(now.Add(-time.Hour), now))
	assert.Equal(t, 1, HoursOverdue(now.Add(-119*time.Minute), now))
	assert.Equal(t, 24, HoursOverdue(now.Add(-24*time.Hour-30*time.Minute), now))
	assert.Equal(t, -1, HoursOverdue(now.Add(time.Minute), now))
}

func TestReminderPoller_CheckpointExactness(t *testing.T) {
	checkpoints := map[int]bool{1: true, 6: true, 12: true, 24: true, 48: true, 72: true}

	for hours := 0; hours <= 100; hours++ {
		t.Run(fmt.Sprintf("%dh", hours), func(t *testing.T) {
			task := overdueTask("t1", pollNow, time.Duration(hours)*time.Hour+10*time.Minute)
			repo := newMockReminderRepository(task)
			transport := newMockTransport()
			p := newTestPoller(t, repo, transport, configuredTransport())

			result := p.CheckNow(context.Background())

			if checkpoints[hours] {
				assert.Equal(t, 1, result.Sent)
				assert.Equal(t, 1, transport.sentCount())
				assert.Equal(t, hours, repo.marked["t1"])
			} else {
				assert.Equal(t, 0, result.Sent)
				assert.Equal(t, 0, transport.sentCount())
			}
		})
	}
}

func TestReminderPoller_QueriesOneHourBack(t *testing.T) {
	repo := newMockReminderRepository()
	p := newTestPoller(t, repo, newMockTransport(), configuredTransport())

	p.CheckNow(context.Background())

	assert.Equal(t, pollNow.Add(-time.Hour), repo.dueBefore)
}

func TestReminderPoller_SkipsWhenNotConfigured(t *testing.T) {
	repo := newMockReminderRepository(overdueTask("t1", pollNow, 6*time.Hour))
	transport := newMockTransport()
	p := newTestPoller(t, repo, transport, NewTransportConfig("", ""))

	result := p.CheckNow(context.Background())

	assert.True(t, result.Skipped)
	assert.True(t, repo.dueBefore.IsZero(), "repository must not be queried")
	assert.Equal(t, 0, transport.sentCount())
}

func TestReminderPoller_SecondRunInSameHourDoesNotResend(t *testing.T) {
	repo := newMockReminderRepository(overdueTask("t1", pollNow, 6*time.Hour))
	transport := newMockTransport()
	p := newTestPoller(t, repo, transport, configuredTransport())

	first := p.CheckNow(context.Background())
	second := p.CheckNow(context.Background())

	assert.Equal(t, 1, first.Sent)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.AlreadySent)
	assert.Equal(t, 1, transport.sentCount())
}

func TestReminderPoller_SkipsDoneAndUndatedTasks(t *testing.T) {
	done := overdueTask("done", pollNow, 6*time.Hour)
	done.Status = domain.TaskStatusDone
	undated := overdueTask("undated", pollNow, 6*time.Hour)
	undated.DueDate = nil

	repo := newMockReminderRepository(done, undated)
	transport := newMockTransport()
	p := newTestPoller(t, repo, transport, configuredTransport())

	result := p.CheckNow(context.Background())

	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, transport.sentCount())
}

func TestReminderPoller_PerTaskFailureDoesNotAbortCycle(t *testing.T) {
	repo := newMockReminderRepository(
		overdueTask("t1", pollNow, 6*time.Hour),
		overdueTask("t2", pollNow, 12*time.Hour),
	)
	transport := newMockTransport()
	transport.sendErr = &apiError{category: CategoryRateLimited, msg: "Too Many Requests"}
	p := newTestPoller(t, repo, transport, configuredTransport())

	result := p.CheckNow(context.Background())

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Sent)
	assert.Empty(t, repo.marked, "failed reminders are not recorded")
}

func TestReminderPoller_RepositoryError(t *testing.T) {
	repo := newMockReminderRepository()
	repo.listErr = errors.New("db down")
	p := newTestPoller(t, repo, newMockTransport(), configuredTransport())

	result := p.CheckNow(context.Background())

	assert.Equal(t, "db down", result.Error)
}

func TestReminderPoller_StartStop(t *testing.T) {
	p := newTestPoller(t, newMockReminderRepository(), newMockTransport(), configuredTransport())
	ctx := context.Background()

	assert.False(t, p.IsRunning())

	p.Start(ctx)
	assert.True(t, p.IsRunning())

	p.Start(ctx)
	assert.True(t, p.IsRunning(), "second start is a no-op")

	p.Stop()
	assert.False(t, p.IsRunning())

	p.Stop()
	assert.False(t, p.IsRunning(), "second stop is a no-op")

	p.Start(ctx)
	assert.True(t, p.IsRunning(), "poller can be restarted")
	p.Stop()
}

func TestReminderPoller_StopsWithContext(t *testing.T) {
	p := newTestPoller(t, newMockReminderRepository(), newMockTransport(), configuredTransport())
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestReminderPoller_ConcurrentStartStop(t *testing.T) {
	p := newTestPoller(t, newMockReminderRepository(), newMockTransport(), configuredTransport())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				p.Start(ctx)
			}()
			go func() {
				defer wg.Done()
				p.Stop()
			}()
		}
		wg.Wait()
		p.Stop()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("start and stop did not settle")
	}
	assert.False(t, p.IsRunning())
}

func TestReminderPoller_RestartsAfterContextCancel(t *testing.T) {
	p := newTestPoller(t, newMockReminderRepository(), newMockTransport(), configuredTransport())
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx)
	cancel()
	require.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 10*time.Millisecond)

	p.Start(context.Background())
	assert.True(t, p.IsRunning())
	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestReminderPoller_TicksOnIntervalBoundary(t *testing.T) {
	p := newTestPoller(t, newMockReminderRepository(), newMockTransport(), configuredTransport())

	assert.Equal(t, 59*time.Minute+40*time.Second, p.untilNextTick())
}

func TestReminderPoller_CustomCheckpoints(t *testing.T) {
	p := NewReminderPoller(PollerConfig{Checkpoints: []int{2, 3}}, newMockReminderRepository(), nil)

	assert.True(t, p.IsCheckpoint(2))
	assert.True(t, p.IsCheckpoint(3))
	assert.False(t, p.IsCheckpoint(1))
	assert.Equal(t, time.Hour, p.config.Interval)
}
