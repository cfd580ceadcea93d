package testutil

import (
	"testing"
	"time"
)

func TestWaitForChannel(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	WaitForChannel(t, ch, ShortTestTimeout, "buffered signal not received")
}

func TestWaitForClosed(t *testing.T) {
	ch := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(ch)
	}()
	WaitForClosed(t, ch, ShortTestTimeout, "channel never closed")
}
