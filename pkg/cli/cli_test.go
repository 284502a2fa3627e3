package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MONGO_BRIDGE_OUTPUT", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func stubDatastore(t *testing.T, store domain.Datastore) {
	t.Helper()
	prev := newDatastore
	newDatastore = func(*slog.Logger, time.Duration) domain.Datastore { return store }
	t.Cleanup(func() { newDatastore = prev })
}

func TestZeroArgCommandsRejectUnexpectedPositionalArgs(t *testing.T) {
	for _, args := range [][]string{
		{"version", "extra"},
		{"serve", "extra"},
		{"version", "--output", "json", "extra"},
	} {
		_, err := run(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "unknown command \"extra\"", args)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mongo-bridge version dev (commit: none)\n", out)

	out, err = run(t, "version", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"dev","commit":"none"}`, out)
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "version", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestParse_Table(t *testing.T) {
	out, err := run(t, "parse", `db.sensors.readings.aggregate([{"$match":{"v":1}}],{"allowDiskUse":true})`)
	require.NoError(t, err)
	assert.Equal(t, "collection: sensors.readings\n"+
		"operation:  aggregate\n"+
		`pipeline:   [{"$match":{"v":1}}]`+"\n"+
		`options:    {"allowDiskUse":true}`+"\n"+
		"replaced:   0\n", out)
}

func TestParse_SubstitutesRange(t *testing.T) {
	out, err := run(t, "parse", "-o", "json",
		"--from", "2024-01-01T00:00:00Z", "--to", "2024-01-01T01:00:00Z", "--interval-ms", "60000",
		`db.c.aggregate([{"$match":{"ts":{"$gte":"$from","$lt":"$to"}}},{"$bucketAuto":{"buckets":"$dateBucketCount"}}])`)
	require.NoError(t, err)

	var got struct {
		Collection string            `json:"collection"`
		Pipeline   []json.RawMessage `json:"pipeline"`
		Replaced   int               `json:"replaced"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "c", got.Collection)
	assert.Equal(t, 3, got.Replaced)
	require.Len(t, got.Pipeline, 2)
	assert.JSONEq(t, `{"$match":{"ts":{"$gte":"2024-01-01T00:00:00.000Z","$lt":"2024-01-01T01:00:00.000Z"}}}`, string(got.Pipeline[0]))
	assert.JSONEq(t, `{"$bucketAuto":{"buckets":60}}`, string(got.Pipeline[1]))
}

func TestParse_Errors(t *testing.T) {
	_, err := run(t, "parse", "collection.aggregate([])")
	require.Error(t, err)
	var perr *domain.ParseError
	assert.ErrorAs(t, err, &perr)

	_, err = run(t, "parse", "--from", "2024-01-01T00:00:00Z", "db.c.aggregate([])")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--from and --to")

	_, err = run(t, "parse", "--from", "yesterday", "db.c.aggregate([])")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC 3339")
}

func TestCheck(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stubDatastore(t, &testutil.MockDatastore{
			PingFn: func(_ context.Context, url string) error {
				assert.Equal(t, "mongodb://db:27017", url)
				return nil
			},
		})
		out, err := run(t, "check", "mongodb://db:27017")
		require.NoError(t, err)
		assert.Equal(t, "Success: MongoDB Connection test OK\n", out)
	})

	t.Run("failure", func(t *testing.T) {
		stubDatastore(t, &testutil.MockDatastore{
			PingFn: func(context.Context, string) error {
				return domain.ErrConnection(errors.New("server selection timeout"))
			},
		})
		out, err := run(t, "check", "-o", "json", "mongodb://db:27017")
		require.Error(t, err)
		assert.JSONEq(t, `{"status":"error","display_status":"Error","message":"MongoDB Connection Error: server selection timeout"}`, out)
	})
}

func TestExecute_JSONError(t *testing.T) {
	t.Setenv("MONGO_BRIDGE_OUTPUT", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"parse", "-o", "json", "nope"})
	var stdout, stderr bytes.Buffer
	code := execute(cmd, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), `"error"`)
	assert.Empty(t, stderr.String())
}
