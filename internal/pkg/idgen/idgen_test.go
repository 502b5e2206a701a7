package idgen

import (
	"context"
	"sync"
	"testing"
	"time"

	"orders_manager/internal/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))

	t.Run("Date prefix followed by sequence", func(t *testing.T) {
		id, err := Compose(clk, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(240309_0000000000042), id)
	})

	t.Run("Sequence out of range", func(t *testing.T) {
		_, err := Compose(clk, 0)
		assert.Error(t, err)
		_, err = Compose(clk, sequenceSpan)
		assert.Error(t, err)
	})
}

func TestMemoryGenerator(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
	gen := NewMemoryGenerator(clk)
	ctx := context.Background()

	t.Run("Ids increase strictly", func(t *testing.T) {
		first, err := gen.Next(ctx)
		require.NoError(t, err)
		second, err := gen.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})

	t.Run("Concurrent callers never collide", func(t *testing.T) {
		const n = 200
		var (
			mu   sync.Mutex
			seen = make(map[int64]struct{}, n)
			wg   sync.WaitGroup
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := gen.Next(ctx)
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, seen, n)
	})
}
