package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/format"
	"mongo-bridge/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func series(names ...string) format.Result {
	out := make(format.Result, len(names))
	for i, n := range names {
		out[i] = &format.Series{Target: document.String(n), Datapoints: []format.Datapoint{}}
	}
	return out
}

func frameNames(res format.Result) []string {
	names := make([]string, len(res))
	for i, f := range res {
		names[i] = f.Name()
	}
	return names
}

// gatedExecutor blocks sub-query RefID until its gate is released.
type gatedExecutor struct {
	gates   map[string]chan struct{}
	results map[string]format.Result
	errs    map[string]error
	calls   atomic.Int64
}

func newGatedExecutor(refs ...string) *gatedExecutor {
	g := &gatedExecutor{
		gates:   make(map[string]chan struct{}),
		results: make(map[string]format.Result),
		errs:    make(map[string]error),
	}
	for _, r := range refs {
		g.gates[r] = make(chan struct{})
	}
	return g
}

func (g *gatedExecutor) Execute(_ context.Context, q SubQuery) (format.Result, error) {
	g.calls.Inc()
	<-g.gates[q.RefID]
	if err := g.errs[q.RefID]; err != nil {
		return nil, err
	}
	return g.results[q.RefID], nil
}

func (g *gatedExecutor) release(ref string) { close(g.gates[ref]) }

func subs(refs ...string) []SubQuery {
	out := make([]SubQuery, len(refs))
	for i, r := range refs {
		out[i] = SubQuery{RefID: r, Shape: domain.ShapeTimeSeries}
	}
	return out
}

type runResult struct {
	res format.Result
	err error
}

func runAsync(c *Coordinator, ctx context.Context, q []SubQuery) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		res, err := c.Run(ctx, q)
		ch <- runResult{res: res, err: err}
	}()
	return ch
}

func TestCoordinator_MergesInRequestOrder(t *testing.T) {
	t.Parallel()

	exec := newGatedExecutor("A", "B", "C")
	exec.results["A"] = series("a1", "a2")
	exec.results["B"] = series("b1")
	exec.results["C"] = series("c1", "c2")

	c := NewCoordinator(exec, 0, testutil.DiscardLogger())
	defer c.Close()

	done := runAsync(c, context.Background(), subs("A", "B", "C"))
	exec.release("C")
	exec.release("A")
	exec.release("B")

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, []string{"a1", "a2", "b1", "c1", "c2"}, frameNames(out.res))
	assert.Equal(t, 0, c.Open())
}

func TestCoordinator_AllOrNothing(t *testing.T) {
	t.Parallel()

	// Every release order of three sub-queries where B fails.
	orders := [][]string{
		{"A", "B", "C"}, {"A", "C", "B"}, {"B", "A", "C"},
		{"B", "C", "A"}, {"C", "A", "B"}, {"C", "B", "A"},
	}
	failure := domain.ErrExecution(errors.New("bad stage"))

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			t.Parallel()

			exec := newGatedExecutor("A", "B", "C")
			exec.results["A"] = series("a")
			exec.results["C"] = series("c")
			exec.errs["B"] = failure

			c := NewCoordinator(exec, 0, testutil.DiscardLogger())
			done := runAsync(c, context.Background(), subs("A", "B", "C"))
			for _, ref := range order {
				exec.release(ref)
			}

			out := <-done
			c.Close()
			require.Error(t, out.err)
			assert.Nil(t, out.res)
			var execErr *domain.ExecutionError
			assert.True(t, errors.As(out.err, &execErr))
			assert.Equal(t, 0, c.Open())
		})
	}
}

func TestCoordinator_LateCompletionsAreDropped(t *testing.T) {
	t.Parallel()

	exec := newGatedExecutor("A", "B", "C")
	exec.errs["A"] = domain.ErrConnection(errors.New("refused"))
	exec.errs["C"] = domain.ErrExecution(errors.New("second failure"))
	exec.results["B"] = series("b")

	c := NewCoordinator(exec, 0, testutil.DiscardLogger())
	done := runAsync(c, context.Background(), subs("A", "B", "C"))

	exec.release("A")
	out := <-done
	require.Error(t, out.err)
	var connErr *domain.ConnectionError
	assert.True(t, errors.As(out.err, &connErr))

	// The request is closed; a late success and a late error must be no-ops.
	exec.release("B")
	exec.release("C")
	c.Close()
	assert.Equal(t, 0, c.Open())
	select {
	case extra := <-done:
		t.Fatalf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestCoordinator_ZeroSubQueries(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(ExecutorFunc(func(context.Context, SubQuery) (format.Result, error) {
		panic("executor must not be called")
	}), 0, testutil.DiscardLogger())
	defer c.Close()

	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestCoordinator_RequestIDsIncrease(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(ExecutorFunc(func(context.Context, SubQuery) (format.Result, error) {
		return series("x"), nil
	}), 0, testutil.DiscardLogger())
	defer c.Close()

	var last uint64
	for i := 0; i < 5; i++ {
		_, err := c.Run(context.Background(), subs("A"))
		require.NoError(t, err)
		id := c.nextID.Load()
		assert.Greater(t, id, last)
		last = id
	}
}

func TestCoordinator_RecoversPanics(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(ExecutorFunc(func(context.Context, SubQuery) (format.Result, error) {
		panic("unexpected document")
	}), 0, testutil.DiscardLogger())
	defer c.Close()

	_, err := c.Run(context.Background(), subs("A", "B"))
	require.Error(t, err)
	var fmtErr *domain.FormattingError
	assert.True(t, errors.As(err, &fmtErr))
	assert.Contains(t, err.Error(), "unexpected document")
}

func TestCoordinator_CallerCancellation(t *testing.T) {
	t.Parallel()

	exec := newGatedExecutor("A")
	var execCtxErr error
	var mu sync.Mutex
	wrapped := ExecutorFunc(func(ctx context.Context, q SubQuery) (format.Result, error) {
		res, err := exec.Execute(ctx, q)
		mu.Lock()
		execCtxErr = ctx.Err()
		mu.Unlock()
		return res, err
	})

	c := NewCoordinator(wrapped, 0, testutil.DiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(c, ctx, subs("A"))

	cancel()
	out := <-done
	assert.ErrorIs(t, out.err, context.Canceled)
	assert.Equal(t, 0, c.Open())

	exec.release("A")
	c.Close()
	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, execCtxErr, "sub-queries must not observe caller cancellation")
}

func TestCoordinator_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int64
	c := NewCoordinator(ExecutorFunc(func(context.Context, SubQuery) (format.Result, error) {
		n := running.Inc()
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Dec()
		return series("x"), nil
	}), 2, testutil.DiscardLogger())
	defer c.Close()

	res, err := c.Run(context.Background(), subs("A", "B", "C", "D", "E", "F"))
	require.NoError(t, err)
	assert.Len(t, res, 6)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestCoordinator_SkipsUndispatchedAfterFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := NewCoordinator(ExecutorFunc(func(context.Context, SubQuery) (format.Result, error) {
		calls.Inc()
		return nil, domain.ErrExecution(errors.New("fail"))
	}), 1, testutil.DiscardLogger())

	_, err := c.Run(context.Background(), subs("A", "B", "C", "D"))
	require.Error(t, err)
	c.Close()
	assert.Equal(t, int64(1), calls.Load())
}
