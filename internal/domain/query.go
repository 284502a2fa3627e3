package domain

import (
	"time"

	"mongo-bridge/internal/document"
)

// OperationAggregate is the only operation query text may name.
const OperationAggregate = "aggregate"

// ShapeTimeSeries selects the time series formatter; any other target type
// is formatted as a table.
const ShapeTimeSeries = "timeserie"

// QueryDescriptor is the structured form of one query text.
type QueryDescriptor struct {
	Collection string
	Operation  string
	Pipeline   []*document.Document
	Options    *document.Document // nil when the query passes no options
}

// Connection names the datastore a request runs against.
type Connection struct {
	URL      string `json:"url"`
	Database string `json:"db"`
}

// TestRequest is the connectivity check payload.
type TestRequest struct {
	DB Connection `json:"db"`
}

// Test result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TestResult is the connectivity check response.
type TestResult struct {
	Status        string `json:"status"`
	DisplayStatus string `json:"display_status"`
	Message       string `json:"message"`
}

// SearchRequest is the variable lookup payload.
type SearchRequest struct {
	Target string     `json:"target"`
	DB     Connection `json:"db"`
}

// TimeRange bounds a metric query.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Target is one query text inside a metric request.
type Target struct {
	Target string `json:"target"`
	Type   string `json:"type"`
	RefID  string `json:"refId,omitempty"`
	Hide   bool   `json:"hide,omitempty"`
}

// MetricRequest is the metric query payload.
type MetricRequest struct {
	Range      TimeRange  `json:"range"`
	IntervalMs int64      `json:"intervalMs"`
	Interval   string     `json:"interval"`
	Targets    []Target   `json:"targets"`
	DB         Connection `json:"db"`
}
