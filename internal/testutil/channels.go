// Package testutil provides shared test helpers for the sampling pipeline
// packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout bounds waits on sampling runs and sink deliveries.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for signals expected within a few ticks.
	ShortTestTimeout = 2 * time.Second
)

// WaitForChannel waits for a signal on ch or fails the test after timeout.
// A nil channel fails immediately.
func WaitForChannel(t testing.TB, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	require.NotNil(t, ch, msg)
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// WaitForClosed is WaitForChannel for channels that signal by closing, and
// additionally reports when ch delivered a value instead.
func WaitForClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	require.NotNil(t, ch, msg)
	select {
	case _, ok := <-ch:
		require.False(t, ok, "channel delivered a value instead of closing")
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}
