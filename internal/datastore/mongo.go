// Package datastore runs parsed aggregations against MongoDB.
package datastore

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
)

// DefaultConnectTimeout bounds connection setup when none is configured.
const DefaultConnectTimeout = 10 * time.Second

// Mongo implements domain.Datastore with one short-lived client per call.
type Mongo struct {
	logger         *slog.Logger
	connectTimeout time.Duration
}

var _ domain.Datastore = (*Mongo)(nil)

// NewMongo returns a Mongo datastore. A non-positive timeout selects
// DefaultConnectTimeout.
func NewMongo(logger *slog.Logger, connectTimeout time.Duration) *Mongo {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Mongo{
		logger:         logger.With("component", "mongo"),
		connectTimeout: connectTimeout,
	}
}

// connect opens a client and confirms the deployment answers. The caller
// must disconnect the returned client.
func (m *Mongo) connect(ctx context.Context, url string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(url).
		SetConnectTimeout(m.connectTimeout).
		SetServerSelectionTimeout(m.connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, domain.ErrConnection(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		m.disconnect(client)
		return nil, domain.ErrConnection(err)
	}
	return client, nil
}

func (m *Mongo) disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		m.logger.Warn("disconnect failed", "error", err)
	}
}

// Ping opens and closes a connection to url.
func (m *Mongo) Ping(ctx context.Context, url string) error {
	client, err := m.connect(ctx, url)
	if err != nil {
		return err
	}
	m.disconnect(client)
	return nil
}

// Aggregate runs q's pipeline against conn and returns every result document.
func (m *Mongo) Aggregate(ctx context.Context, conn domain.Connection, q *domain.QueryDescriptor) ([]*document.Document, error) {
	client, err := m.connect(ctx, conn.URL)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(client)

	coll := client.Database(conn.Database).Collection(q.Collection)
	cur, err := coll.Aggregate(ctx, toBSONPipeline(q.Pipeline), m.aggregateOptions(q.Options))
	if err != nil {
		return nil, domain.ErrExecution(err)
	}

	var raw []bson.D
	if err := cur.All(ctx, &raw); err != nil {
		return nil, domain.ErrExecution(err)
	}

	docs := make([]*document.Document, len(raw))
	for i, d := range raw {
		docs[i] = fromBSONDoc(d)
	}
	return docs, nil
}

// aggregateOptions maps the options argument of aggregate onto driver
// options. Unknown or mistyped keys are ignored.
func (m *Mongo) aggregateOptions(opts *document.Document) *options.AggregateOptions {
	out := options.Aggregate()
	if opts == nil {
		return out
	}
	for _, f := range opts.Fields() {
		ok := true
		switch f.Key {
		case "allowDiskUse":
			var b bool
			if b, ok = f.Value.AsBool(); ok {
				out.SetAllowDiskUse(b)
			}
		case "batchSize":
			var n int64
			if n, ok = f.Value.AsInt(); ok {
				out.SetBatchSize(int32(n))
			}
		case "maxTimeMS":
			var n int64
			if n, ok = f.Value.AsInt(); ok {
				out.SetMaxTime(time.Duration(n) * time.Millisecond)
			}
		case "comment":
			var s string
			if s, ok = f.Value.AsString(); ok {
				out.SetComment(s)
			}
		case "hint":
			out.SetHint(toBSON(f.Value))
		case "let":
			var d *document.Document
			if d, ok = f.Value.AsDocument(); ok {
				out.SetLet(toBSONDoc(d))
			}
		case "bypassDocumentValidation":
			var b bool
			if b, ok = f.Value.AsBool(); ok {
				out.SetBypassDocumentValidation(b)
			}
		case "collation":
			var d *document.Document
			if d, ok = f.Value.AsDocument(); ok {
				out.SetCollation(collation(d))
			}
		default:
			ok = false
		}
		if !ok {
			m.logger.Debug("ignoring aggregate option", "option", f.Key, "kind", f.Value.Kind().String())
		}
	}
	return out
}

func collation(d *document.Document) *options.Collation {
	c := &options.Collation{}
	if v, ok := d.Get("locale"); ok {
		c.Locale, _ = v.AsString()
	}
	if v, ok := d.Get("strength"); ok {
		n, _ := v.AsInt()
		c.Strength = int(n)
	}
	if v, ok := d.Get("caseLevel"); ok {
		c.CaseLevel, _ = v.AsBool()
	}
	if v, ok := d.Get("caseFirst"); ok {
		c.CaseFirst, _ = v.AsString()
	}
	if v, ok := d.Get("numericOrdering"); ok {
		c.NumericOrdering, _ = v.AsBool()
	}
	if v, ok := d.Get("alternate"); ok {
		c.Alternate, _ = v.AsString()
	}
	if v, ok := d.Get("backwards"); ok {
		c.Backwards, _ = v.AsBool()
	}
	return c
}
