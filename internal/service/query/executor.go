package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/format"
	"mongo-bridge/internal/metrics"
)

// Diagnostics switches the optional request, query and timing logs.
type Diagnostics struct {
	LogRequests bool
	LogQueries  bool
	LogTimings  bool
}

// DatastoreExecutor runs sub-queries against a domain.Datastore and shapes
// the documents with the formatter for the sub-query's type.
type DatastoreExecutor struct {
	store   domain.Datastore
	metrics *metrics.Metrics
	logger  *slog.Logger
	diag    Diagnostics
}

var _ Executor = (*DatastoreExecutor)(nil)

// NewDatastoreExecutor creates a DatastoreExecutor. m may be nil.
func NewDatastoreExecutor(store domain.Datastore, m *metrics.Metrics, logger *slog.Logger, diag Diagnostics) *DatastoreExecutor {
	return &DatastoreExecutor{
		store:   store,
		metrics: m,
		logger:  logger.With("component", "executor"),
		diag:    diag,
	}
}

// Execute implements Executor. Elapsed time covers the datastore round trip
// only and is reported to logs and metrics, never to the caller.
func (e *DatastoreExecutor) Execute(ctx context.Context, q SubQuery) (format.Result, error) {
	logger := e.logger.With("ref_id", q.RefID, "collection", q.Descriptor.Collection)
	if e.diag.LogQueries {
		logger.Info("running aggregation",
			"pipeline", jsonString(q.Descriptor.Pipeline),
			"options", jsonString(q.Descriptor.Options))
	}

	start := time.Now()
	docs, err := e.store.Aggregate(ctx, q.Conn, q.Descriptor)
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.ObserveSubQuery(q.Shape, elapsed, err)
		return nil, err
	}
	if e.diag.LogTimings {
		logger.Info("aggregation finished",
			"elapsed", elapsed,
			"range", q.RangeInfo,
			"documents", len(docs))
	}

	res, err := format.For(q.Shape)(docs)
	e.metrics.ObserveSubQuery(q.Shape, elapsed, err)
	return res, err
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
