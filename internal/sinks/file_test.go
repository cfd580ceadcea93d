package sinks

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/audiocore"
)

func readRecords(t *testing.T, path string) []audiocore.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var records []audiocore.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audiocore.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "line %q", scanner.Text())
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "levels", "readings.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	want := []audiocore.Reading{reading(0, 0, 41.5), reading(1, 0, 38), reading(0, 1, 42.125)}
	for _, r := range want {
		require.NoError(t, sink.Accept(t.Context(), r))
	}
	require.NoError(t, sink.Close())

	got := readRecords(t, path)
	require.Len(t, got, len(want))
	for i, r := range want {
		assert.Equal(t, r.Record(), got[i])
	}
}

func TestFileSinkAppendsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "readings.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Open(t.Context()))
	require.NoError(t, sink.Accept(t.Context(), reading(0, 0, 1)))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "close is idempotent")

	require.NoError(t, sink.Open(t.Context()))
	require.NoError(t, sink.Open(t.Context()), "open is idempotent")
	require.NoError(t, sink.Accept(t.Context(), reading(0, 1, 2)))
	require.NoError(t, sink.Close())

	got := readRecords(t, path)
	require.Len(t, got, 2)
	assert.InDelta(t, 1, got[0].SignalStrengthDB, 0)
	assert.InDelta(t, 2, got[1].SignalStrengthDB, 0)
}

func TestFileSinkUnwritablePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	sink, err := NewFileSink(filepath.Join(blocker, "readings.jsonl"))
	require.NoError(t, err)

	err = sink.Accept(t.Context(), reading(2, 5, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrSinkDelivery)
	require.NoError(t, sink.Close())
}

func TestNewFileSinkRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileSink("")
	require.Error(t, err)
}
