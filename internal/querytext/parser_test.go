package querytext

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-bridge/internal/domain"
)

func pipelineJSON(t *testing.T, q *domain.QueryDescriptor) string {
	t.Helper()
	out, err := json.Marshal(q.Pipeline)
	require.NoError(t, err)
	return string(out)
}

func TestParse_Aggregate(t *testing.T) {
	t.Parallel()

	q, err := Parse(`  db.readings.aggregate([{"$match": {"ts": "$from"}}, {"$sort": {"ts": 1}}])  `)
	require.NoError(t, err)

	assert.Equal(t, "readings", q.Collection)
	assert.Equal(t, "aggregate", q.Operation)
	assert.Nil(t, q.Options)
	assert.Equal(t, `[{"$match":{"ts":"$from"}},{"$sort":{"ts":1}}]`, pipelineJSON(t, q))
}

func TestParse_DottedCollection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		collection string
	}{
		{name: "plain", query: `db.sensors.aggregate([])`, collection: "sensors"},
		{name: "one dot", query: `db.plant.sensors.aggregate([])`, collection: "plant.sensors"},
		{name: "many dots", query: `db.a.b.c.d.aggregate([])`, collection: "a.b.c.d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.collection, q.Collection)
			assert.Empty(t, q.Pipeline)
		})
	}
}

func TestParse_WithOptions(t *testing.T) {
	t.Parallel()

	q, err := Parse(`db.events.aggregate([{"$limit": 5}], {"allowDiskUse": true, "batchSize": 10})`)
	require.NoError(t, err)
	require.NotNil(t, q.Options)
	assert.Equal(t, []string{"allowDiskUse", "batchSize"}, q.Options.Keys())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		message string
	}{
		{
			name:    "missing prefix",
			query:   `readings.aggregate([])`,
			message: "Failed to parse query - Query must start with db.",
		},
		{
			name:    "missing opening bracket",
			query:   `db.readings.aggregate`,
			message: "Failed to parse query - Can't find opening bracket",
		},
		{
			name:    "no operation segment",
			query:   `db.readings([])`,
			message: "Failed to parse query - Invalid collection and operation syntax",
		},
		{
			name:    "missing closing bracket",
			query:   `db.readings.aggregate([{"$limit": 1}]`,
			message: "Failed to parse query - Can't find last bracket",
		},
		{
			name:    "reasons accumulate",
			query:   `db.readings(`,
			message: "Failed to parse query - Invalid collection and operation syntax:Can't find last bracket",
		},
		{
			name:    "empty arguments",
			query:   `db.readings.aggregate()`,
			message: "Failed to parse query - Missing pipeline argument",
		},
		{
			name:    "pipeline not an array",
			query:   `db.readings.aggregate({"$match": {}})`,
			message: "Failed to parse query - Pipeline must be an array of stages",
		},
		{
			name:    "stage not an object",
			query:   `db.readings.aggregate([{"$match": {}}, 3])`,
			message: "Failed to parse query - Pipeline stage 1 must be an object",
		},
		{
			name:    "options not an object",
			query:   `db.readings.aggregate([], 5)`,
			message: "Failed to parse query - Aggregation options must be an object",
		},
		{
			name:    "too many arguments",
			query:   `db.readings.aggregate([], {}, {})`,
			message: "Failed to parse query - Too many arguments to aggregate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := Parse(tt.query)
			assert.Nil(t, q)
			require.Error(t, err)

			var perr *domain.ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.message, err.Error())
			assert.False(t, errors.Is(err, domain.ErrUnsupportedOperation))
		})
	}
}

func TestParse_UnknownOperation(t *testing.T) {
	t.Parallel()

	for _, op := range []string{"find", "count", "distinct"} {
		t.Run(op, func(t *testing.T) {
			t.Parallel()
			_, err := Parse("db.readings." + op + `({"a": 1})`)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
			assert.Contains(t, err.Error(), "Unknown operation "+op+", only aggregate supported")
		})
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		`db.readings.aggregate([{$match: {}}])`,
		`db.readings.aggregate([{"$match":{"a":1,}}])`,
		`db.readings.aggregate([{"$limit":01}])`,
		"db.readings.aggregate([{\"$match\":{\"a\":\"\xff\"}}])",
	} {
		_, err := Parse(text)
		require.Error(t, err, text)
		assert.Contains(t, err.Error(), "Invalid aggregate arguments", text)
	}
}

// A ')' inside a string literal ends the argument list early.
func TestParse_ParenInsideStringIsNotSupported(t *testing.T) {
	t.Parallel()

	_, err := Parse(`db.readings.aggregate([{"$match": {"label": "a)b"}}])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid aggregate arguments")
}
