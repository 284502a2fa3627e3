// Package query implements the bridge's three operations: connectivity
// check, variable lookup and multi-target metric queries.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/format"
	"mongo-bridge/internal/metrics"
	"mongo-bridge/internal/placeholder"
	"mongo-bridge/internal/querytext"
)

// Endpoint names used for request metrics.
const (
	EndpointTest   = "test"
	EndpointSearch = "search"
	EndpointQuery  = "query"
)

// IDField is the document field a variable lookup returns.
const IDField = "_id"

// Service parses, substitutes and runs bridge requests.
type Service struct {
	store   domain.Datastore
	coord   *Coordinator
	metrics *metrics.Metrics
	logger  *slog.Logger
	diag    Diagnostics
}

// NewService creates a Service. m may be nil.
func NewService(store domain.Datastore, coord *Coordinator, m *metrics.Metrics, logger *slog.Logger, diag Diagnostics) *Service {
	return &Service{
		store:   store,
		coord:   coord,
		metrics: m,
		logger:  logger.With("component", "query"),
		diag:    diag,
	}
}

// TestConnection checks that req's datastore answers. Failures are reported
// in the result, never as an error.
func (s *Service) TestConnection(ctx context.Context, req domain.TestRequest) domain.TestResult {
	s.logRequest(EndpointTest, req)

	err := s.store.Ping(ctx, req.DB.URL)
	s.metrics.ObserveRequest(EndpointTest, err)
	if err != nil {
		s.logger.Warn("connection test failed", "error", err)
		return domain.TestResult{
			Status:        domain.StatusError,
			DisplayStatus: "Error",
			Message:       "MongoDB Connection Error: " + err.Error(),
		}
	}
	return domain.TestResult{
		Status:        domain.StatusSuccess,
		DisplayStatus: "Success",
		Message:       "MongoDB Connection test OK",
	}
}

// Search runs req's query once and returns the _id of each result
// document, null where a document has none.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (_ []document.Value, err error) {
	defer func() { s.metrics.ObserveRequest(EndpointSearch, err) }()
	s.logRequest(EndpointSearch, req)

	q, err := querytext.Parse(req.Target)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Aggregate(ctx, req.DB, q)
	if err != nil {
		return nil, err
	}

	ids := make([]document.Value, len(docs))
	for i, d := range docs {
		ids[i], _ = d.Get(IDField)
	}
	return ids, nil
}

// Query runs every visible target of req and returns their frames in
// target order. Every target is parsed before any of them runs, so a parse
// error never reaches the datastore.
func (s *Service) Query(ctx context.Context, req domain.MetricRequest) (_ format.Result, err error) {
	defer func() { s.metrics.ObserveRequest(EndpointQuery, err) }()
	s.logRequest(EndpointQuery, req)

	targets := make([]domain.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		if !t.Hide {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return format.Result{}, nil
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() {
		return nil, domain.ErrValidation("range.from and range.to are required")
	}

	subs, err := s.prepare(req, targets)
	if err != nil {
		return nil, err
	}

	defer s.metrics.RequestStarted()()
	return s.coord.Run(ctx, subs)
}

func (s *Service) prepare(req domain.MetricRequest, targets []domain.Target) ([]SubQuery, error) {
	values := placeholder.ForRange(req.Range, req.IntervalMs)
	info := describeRange(req)

	subs := make([]SubQuery, len(targets))
	for i, t := range targets {
		q, err := querytext.Parse(t.Target)
		if err != nil {
			return nil, err
		}
		n := values.Apply(q.Pipeline)
		s.logger.Debug("substituted placeholders", "ref_id", t.RefID, "replaced", n)

		subs[i] = SubQuery{
			RefID:      t.RefID,
			Shape:      t.Type,
			Descriptor: q,
			Conn:       req.DB,
			RangeInfo:  info,
		}
	}
	return subs, nil
}

func (s *Service) logRequest(endpoint string, body interface{}) {
	if s.diag.LogRequests {
		s.logger.Info("request", "endpoint", endpoint, "body", jsonString(body))
	}
}

// describeRange renders the request range as "<n> <interval> intervals".
func describeRange(req domain.MetricRequest) string {
	if req.IntervalMs <= 0 {
		return fmt.Sprintf("%s to %s", req.Range.From.Format(timeLayout), req.Range.To.Format(timeLayout))
	}
	seconds := req.Range.To.Sub(req.Range.From).Seconds()
	n := math.Round(seconds / (float64(req.IntervalMs) / 1000))
	return fmt.Sprintf("%.0f %s intervals", n, req.Interval)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
