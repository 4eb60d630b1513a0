package influx

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/pkg/core"
)

func unreachable() config.InfluxConfig {
	return config.InfluxConfig{
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "test",
		Bucket:   "journal",
	}
}

func newRecord(t *testing.T, tick uint64, kind string, payload any) *core.Record {
	t.Helper()
	r, err := core.NewRecord(tick, kind, payload)
	require.NoError(t, err)
	return r
}

func TestPointFromRecord(t *testing.T) {
	r := newRecord(t, 3, "status", map[string]any{
		"goroutines": 4,
		"name":       "main",
		"ok":         true,
		"nested":     map[string]any{"skip": 1},
	})

	p := PointFromRecord(r)

	assert.Equal(t, Measurement, p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "kind", p.TagList()[0].Key)
	assert.Equal(t, "status", p.TagList()[0].Value)
	assert.Equal(t, r.ReceivedAt, p.Time())

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, uint64(3), fields["tick"])
	assert.Equal(t, r.ID.String(), fields["id"])
	assert.Equal(t, string(r.Payload), fields["payload"])
	assert.Equal(t, float64(4), fields["payload_goroutines"])
	assert.Equal(t, "main", fields["payload_name"])
	assert.Equal(t, true, fields["payload_ok"])
	assert.NotContains(t, fields, "payload_nested")
}

func TestPointFromRecord_NonObjectPayload(t *testing.T) {
	r := newRecord(t, 1, "count", 42)

	p := PointFromRecord(r)

	assert.Len(t, p.FieldList(), 3)
}

func TestBackend_UnreachableWithoutBackup(t *testing.T) {
	b := New(unreachable(), "", zerolog.Nop())

	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach InfluxDB")

	assert.Error(t, b.Append(newRecord(t, 1, "ping", map[string]any{})))
	assert.NoError(t, b.Flush())
	assert.NoError(t, b.Close())
}

func TestBackend_BackupWhenUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")
	b := New(unreachable(), path, zerolog.Nop())

	require.NoError(t, b.Init())
	require.NoError(t, b.Append(newRecord(t, 1, "ping", map[string]any{"id": 1})))
	require.NoError(t, b.Append(newRecord(t, 2, "ping", map[string]any{"id": 2})))
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(string(content), Measurement+",kind=ping"))
	assert.Contains(t, string(content), "payload_id=1")
	assert.Contains(t, string(content), "payload_id=2")
}

func TestBackend_BackupAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")

	for i := 0; i < 2; i++ {
		b := New(unreachable(), path, zerolog.Nop())
		require.NoError(t, b.Init())
		require.NoError(t, b.Append(newRecord(t, uint64(i), "ping", map[string]any{})))
		require.NoError(t, b.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	// Concatenated gzip members read back as one stream.
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(content), "kind=ping"))
}

func TestBackend_PointTimeIsReceivedAt(t *testing.T) {
	r := newRecord(t, 1, "ping", map[string]any{})
	r.ReceivedAt = time.Unix(1700000000, 0)

	assert.Equal(t, time.Unix(1700000000, 0), PointFromRecord(r).Time())
}
