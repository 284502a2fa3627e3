package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-bridge/internal/domain"
)

func TestOutcome(t *testing.T) {
	t.Parallel()

	parseErr := &domain.ParseError{}
	parseErr.Add("bad")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "ok"},
		{name: "parse", err: parseErr, want: "parse_error"},
		{name: "validation", err: domain.ErrValidation("x"), want: "validation_error"},
		{name: "wrapped connection", err: fmt.Errorf("run: %w", domain.ErrConnection(errors.New("refused"))), want: "connection_error"},
		{name: "execution", err: domain.ErrExecution(errors.New("bad stage")), want: "execution_error"},
		{name: "formatting", err: domain.ErrFormatting("no ts"), want: "formatting_error"},
		{name: "other", err: errors.New("boom"), want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("query", nil)
	m.ObserveRequest("query", domain.ErrExecution(errors.New("x")))
	m.ObserveSubQuery("timeserie", 10*time.Millisecond, nil)
	m.ObserveSubQuery("", time.Millisecond, nil)
	m.ObserveSubQuery("table", time.Millisecond, nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("query", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("query", "execution_error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.subQueries.WithLabelValues("timeserie", "ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.subQueries.WithLabelValues("table", "ok")), 0)

	done := m.RequestStarted()
	assert.InDelta(t, 1, testutil.ToFloat64(m.inflight), 0)
	done()
	assert.InDelta(t, 0, testutil.ToFloat64(m.inflight), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("search", nil)
		m.ObserveSubQuery("table", time.Second, nil)
		m.RequestStarted()()
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRequest("test", nil)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `mongo_bridge_requests_total{endpoint="test",outcome="ok"} 1`))
}
