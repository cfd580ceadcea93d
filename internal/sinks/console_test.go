package sinks

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleSinkFormatsLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	require.NoError(t, sink.Accept(t.Context(), reading(1, 0, 63.456)))
	require.NoError(t, sink.Accept(t.Context(), reading(0, 1, 0)))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "signal_strength_db=63.46 time=1714564800.250 mic_index=1", lines[0])
	assert.Equal(t, "signal_strength_db=0.00 time=1714564800.350 mic_index=0", lines[1])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, assert.AnError }

func TestConsoleSinkNeverFails(t *testing.T) {
	t.Parallel()

	sink := NewConsoleSink(failingWriter{})
	assert.NoError(t, sink.Accept(t.Context(), reading(0, 0, 20)))
}
