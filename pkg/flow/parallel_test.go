package flow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

func TestParallelBatch_ResultsKeepInputOrder(t *testing.T) {
	// Later items finish first; the gather must still be index-stable.
	pb, err := NewParallelBatch(ParallelBatchConfig{
		BatchConfig: BatchConfig{
			Name: "staggered",
			Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error) {
				return []any{0, 1, 2, 3, 4}, nil
			},
			ExecItem: func(ctx context.Context, item any) (any, error) {
				n := item.(int)
				time.Sleep(time.Duration(5-n) * 10 * time.Millisecond)
				return fmt.Sprintf("r%d", n), nil
			},
			Post: func(ctx context.Context, shared *schema.Shared, items, results []any) (Action, error) {
				shared.Set("output", results)
				return "", nil
			},
		},
	})
	require.NoError(t, err)

	shared := schema.NewShared(nil)
	_, err = pb.Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, []any{"r0", "r1", "r2", "r3", "r4"}, shared.GetSlice("output"))
}

func TestParallelBatch_MaxParallelBound(t *testing.T) {
	var inFlight, peak int64
	pb, err := NewParallelBatch(ParallelBatchConfig{
		MaxParallel: 2,
		BatchConfig: BatchConfig{
			Name: "bounded",
			Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error) {
				return []any{1, 2, 3, 4, 5, 6}, nil
			},
			ExecItem: func(ctx context.Context, item any) (any, error) {
				cur := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return item, nil
			},
		},
	})
	require.NoError(t, err)

	_, err = pb.Run(context.Background(), schema.NewShared(nil))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestParallelBatch_FirstErrorByIndexWins(t *testing.T) {
	pb, err := NewParallelBatch(ParallelBatchConfig{
		BatchConfig: BatchConfig{
			Name: "failing",
			Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error) {
				return []any{0, 1, 2}, nil
			},
			ExecItem: func(ctx context.Context, item any) (any, error) {
				n := item.(int)
				if n >= 1 {
					// Item 2 fails fast, item 1 fails slow; the reported
					// index must still be the lower one.
					time.Sleep(time.Duration(3-n) * 10 * time.Millisecond)
					return nil, schema.NewErrorf(schema.ErrCodeValidation, "item %d bad", n)
				}
				return n, nil
			},
		},
	})
	require.NoError(t, err)

	_, err = pb.Run(context.Background(), schema.NewShared(nil))
	require.Error(t, err)

	var de *schema.DojoError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Details["item_index"])
}

func TestParallelBatch_PanicBecomesError(t *testing.T) {
	pb, err := NewParallelBatch(ParallelBatchConfig{
		BatchConfig: BatchConfig{
			Name: "panicky",
			Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]any, error) {
				return []any{0, 1}, nil
			},
			ExecItem: func(ctx context.Context, item any) (any, error) {
				if item.(int) == 1 {
					panic("boom")
				}
				return item, nil
			},
		},
	})
	require.NoError(t, err)

	_, err = pb.Run(context.Background(), schema.NewShared(nil))
	require.Error(t, err)

	var de *schema.DojoError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, schema.ErrCodeExecution, de.Code)
	assert.Contains(t, de.Message, "panicked")
}

func TestNewParallelBatch_NegativeBoundRejected(t *testing.T) {
	_, err := NewParallelBatch(ParallelBatchConfig{
		MaxParallel: -1,
		BatchConfig: BatchConfig{Name: "bad"},
	})
	require.Error(t, err)
}

func TestParallelBatchFlow_BranchesGetOwnParams(t *testing.T) {
	// Every branch writes to a key derived from its parameter set; with
	// context-carried params no branch can observe another's set.
	var mu sync.Mutex
	seen := map[string]bool{}

	writer, err := NewTask(TaskConfig{
		Name: "writer",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			return params.String("slot"), nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (Action, error) {
			slot, _ := prep.(string)
			mu.Lock()
			seen[slot] = true
			mu.Unlock()
			shared.Set("out."+slot, slot)
			return "", nil
		},
	})
	require.NoError(t, err)

	pbf, err := NewParallelBatchFlow(ParallelBatchFlowConfig{
		MaxParallel: 3,
		BatchFlowConfig: BatchFlowConfig{
			Name:  "fanout",
			Start: writer,
			Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]schema.Params, error) {
				sets := make([]schema.Params, 8)
				for i := range sets {
					sets[i] = schema.Params{"slot": fmt.Sprintf("s%d", i)}
				}
				return sets, nil
			},
		},
	})
	require.NoError(t, err)

	shared := schema.NewShared(nil)
	_, err = pbf.RunSync(shared)
	require.NoError(t, err)

	assert.Len(t, seen, 8)
	for i := 0; i < 8; i++ {
		slot := fmt.Sprintf("s%d", i)
		assert.Equal(t, slot, shared.GetString("out."+slot))
	}
}

func TestParallelBatchFlow_PostRunsAfterJoin(t *testing.T) {
	var running int64
	sleeper, err := NewTask(TaskConfig{
		Name: "sleeper",
		Exec: func(ctx context.Context, prep any) (any, error) {
			atomic.AddInt64(&running, 1)
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil, nil
		},
	})
	require.NoError(t, err)

	pbf, err := NewParallelBatchFlow(ParallelBatchFlowConfig{
		BatchFlowConfig: BatchFlowConfig{
			Name:  "joined",
			Start: sleeper,
			Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) ([]schema.Params, error) {
				return []schema.Params{{}, {}, {}}, nil
			},
			Post: func(ctx context.Context, shared *schema.Shared, sets []schema.Params) (Action, error) {
				assert.Zero(t, atomic.LoadInt64(&running), "post must not overlap branches")
				return "joined", nil
			},
		},
	})
	require.NoError(t, err)

	action, err := pbf.RunSync(schema.NewShared(nil))
	require.NoError(t, err)
	assert.Equal(t, "joined", action)
}
