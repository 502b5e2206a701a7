package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("Runs every job even when one fails", func(t *testing.T) {
		var order []string
		s := NewScheduler(time.Minute, nil,
			Job{Name: "cancel_overdue", Run: func(ctx context.Context) (int, error) {
				order = append(order, "cancel_overdue")
				return 0, errors.New("db down")
			}},
			Job{Name: "handle_refunds", Run: func(ctx context.Context) (int, error) {
				order = append(order, "handle_refunds")
				return 2, nil
			}},
		)

		s.RunOnce(context.Background())
		assert.Equal(t, []string{"cancel_overdue", "handle_refunds"}, order)
	})

	t.Run("Canceled context skips remaining jobs", func(t *testing.T) {
		var calls int32
		s := NewScheduler(time.Minute, nil, Job{Name: "noop", Run: func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, nil
		}})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.RunOnce(ctx)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})
}

func TestScheduler_Start(t *testing.T) {
	var calls int32
	s := NewScheduler(10*time.Millisecond, nil, Job{Name: "tick", Run: func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}})

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
