package embedding

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	pool := NewPool(context.Background(), 2)
	var running, peak, done atomic.Int32
	for range 8 {
		pool.Submit(func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			done.Add(1)
		})
	}
	pool.Wait()
	assert.Equal(t, int32(8), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolPassesContext(t *testing.T) {
	t.Parallel()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "run-1")
	pool := NewPool(ctx, 0)
	var got atomic.Value
	pool.Submit(func(ctx context.Context) { got.Store(ctx.Value(key{})) })
	pool.Wait()
	assert.Equal(t, "run-1", got.Load())
}
