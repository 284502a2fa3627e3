// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
)

// === Datastore Mock ===

// AggregateCall records the arguments of one MockDatastore.Aggregate call.
type AggregateCall struct {
	Conn       domain.Connection
	Descriptor *domain.QueryDescriptor
}

// MockDatastore implements domain.Datastore for testing. It is safe for
// concurrent use.
type MockDatastore struct {
	PingFn      func(ctx context.Context, url string) error
	AggregateFn func(ctx context.Context, conn domain.Connection, q *domain.QueryDescriptor) ([]*document.Document, error)

	mu    sync.Mutex
	calls []AggregateCall
}

// Ping implements the interface method for testing.
func (m *MockDatastore) Ping(ctx context.Context, url string) error {
	if m.PingFn != nil {
		return m.PingFn(ctx, url)
	}
	panic("unexpected call to MockDatastore.Ping")
}

// Aggregate implements the interface method for testing.
func (m *MockDatastore) Aggregate(ctx context.Context, conn domain.Connection, q *domain.QueryDescriptor) ([]*document.Document, error) {
	m.mu.Lock()
	m.calls = append(m.calls, AggregateCall{Conn: conn, Descriptor: q})
	m.mu.Unlock()
	if m.AggregateFn != nil {
		return m.AggregateFn(ctx, conn, q)
	}
	panic("unexpected call to MockDatastore.Aggregate")
}

// Calls returns a copy of the recorded Aggregate calls.
func (m *MockDatastore) Calls() []AggregateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AggregateCall(nil), m.calls...)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Doc builds a document from alternating key and value arguments.
func Doc(kv ...interface{}) *document.Document {
	d := document.New()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(document.Value))
	}
	return d
}
