package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoop_RunsEventsInOrder(t *testing.T) {
	loop := NewLoop(16, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 1; i <= 3; i++ {
		i := i
		loop.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, got)
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	loop := NewLoop(1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
