package domain

import (
	"context"

	"mongo-bridge/internal/document"
)

// Datastore runs aggregation pipelines against the document database.
// Implemented by datastore.Mongo.
type Datastore interface {
	// Ping opens a connection to url, checks it, and closes it.
	// Failures are *ConnectionError.
	Ping(ctx context.Context, url string) error
	// Aggregate opens a connection, runs the descriptor's pipeline against
	// its collection, collects every result document, and closes the
	// connection. Failures are *ConnectionError or *ExecutionError.
	Aggregate(ctx context.Context, conn Connection, q *QueryDescriptor) ([]*document.Document, error)
}
