package query

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/format"
)

// DefaultMaxConcurrent bounds how many sub-queries of one request run at
// the same time when no limit is configured.
const DefaultMaxConcurrent = 8

// SubQuery is one parsed and substituted target of a metric request.
type SubQuery struct {
	RefID      string
	Shape      string
	Descriptor *domain.QueryDescriptor
	Conn       domain.Connection
	// RangeInfo describes the request range for timing diagnostics.
	RangeInfo string
}

// Executor runs one sub-query to its formatted result.
type Executor interface {
	Execute(ctx context.Context, q SubQuery) (format.Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, q SubQuery) (format.Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, q SubQuery) (format.Result, error) {
	return f(ctx, q)
}

type slot struct {
	pending bool
	result  format.Result
}

type outcome struct {
	result format.Result
	err    error
}

// requestState is owned by the registry while the request is open. Its
// slots are only touched with Coordinator.mu held.
type requestState struct {
	id        uint64
	slots     []slot
	remaining int
	closed    atomic.Bool
	done      chan outcome
}

// Coordinator fans a request's sub-queries out to an Executor and
// delivers either every result, merged in request order, or the first
// error. Each request is closed exactly once; completions arriving after
// that are dropped.
type Coordinator struct {
	exec   Executor
	limit  int
	logger *slog.Logger

	nextID atomic.Uint64

	mu       sync.Mutex
	requests map[uint64]*requestState

	wg sync.WaitGroup
}

// NewCoordinator creates a Coordinator. maxConcurrent <= 0 selects
// DefaultMaxConcurrent.
func NewCoordinator(exec Executor, maxConcurrent int, logger *slog.Logger) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Coordinator{
		exec:     exec,
		limit:    maxConcurrent,
		logger:   logger.With("component", "coordinator"),
		requests: make(map[uint64]*requestState),
	}
}

// Run executes subs concurrently and blocks until the request closes or
// ctx is done. Sub-queries do not observe ctx cancellation; once ctx is
// done the request is abandoned and its remaining completions discarded.
func (c *Coordinator) Run(ctx context.Context, subs []SubQuery) (format.Result, error) {
	if len(subs) == 0 {
		return format.Result{}, nil
	}

	st := &requestState{
		id:        c.nextID.Inc(),
		slots:     make([]slot, len(subs)),
		remaining: len(subs),
		done:      make(chan outcome, 1),
	}
	for i := range st.slots {
		st.slots[i].pending = true
	}

	c.mu.Lock()
	c.requests[st.id] = st
	c.mu.Unlock()

	logger := c.logger.With("query_request", st.id)
	logger.Debug("request opened", "subqueries", len(subs))

	c.wg.Add(1)
	go c.dispatch(context.WithoutCancel(ctx), st, subs)

	select {
	case out := <-st.done:
		if out.err != nil {
			logger.Debug("request failed", "error", out.err)
		} else {
			logger.Debug("request completed", "frames", len(out.result))
		}
		return out.result, out.err
	case <-ctx.Done():
		if c.unregister(st.id) != nil {
			logger.Debug("request abandoned", "error", ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Open returns the number of requests currently registered.
func (c *Coordinator) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Close waits for every dispatched sub-query to return.
func (c *Coordinator) Close() {
	c.wg.Wait()
}

func (c *Coordinator) dispatch(ctx context.Context, st *requestState, subs []SubQuery) {
	defer c.wg.Done()

	var g errgroup.Group
	g.SetLimit(c.limit)
	for i, sq := range subs {
		if st.closed.Load() {
			break
		}
		g.Go(func() error {
			if st.closed.Load() {
				return nil
			}
			res, err := c.execute(ctx, sq)
			if err != nil {
				c.fail(st.id, err)
			} else {
				c.complete(st.id, i, res)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) execute(ctx context.Context, sq SubQuery) (res format.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, domain.ErrFormatting("formatting %s result: %v", sq.Shape, r)
		}
	}()
	return c.exec.Execute(ctx, sq)
}

// unregister removes id and marks it closed. It returns nil when id was
// not registered.
func (c *Coordinator) unregister(id uint64) *requestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.requests[id]
	if !ok {
		return nil
	}
	delete(c.requests, id)
	st.closed.Store(true)
	return st
}

func (c *Coordinator) fail(id uint64, err error) {
	st := c.unregister(id)
	if st == nil {
		c.logger.Debug("dropping late sub-query error", "query_request", id, "error", err)
		return
	}
	st.done <- outcome{err: err}
}

func (c *Coordinator) complete(id uint64, index int, res format.Result) {
	c.mu.Lock()
	st, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("dropping late sub-query result", "query_request", id, "index", index)
		return
	}
	s := &st.slots[index]
	if s.pending {
		s.pending = false
		s.result = res
		st.remaining--
	}
	if st.remaining > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.requests, id)
	st.closed.Store(true)
	c.mu.Unlock()

	st.done <- outcome{result: merge(st.slots)}
}

// merge flattens slot results in request order.
func merge(slots []slot) format.Result {
	out := format.Result{}
	for _, s := range slots {
		out = append(out, s.result...)
	}
	return out
}
