package sinks

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/httpclient"
)

// maxDrainBytes bounds how much of a response body is read before closing so
// the connection can be reused.
const maxDrainBytes = 4 << 10

// NetworkSink POSTs each reading as JSON to an HTTP endpoint. One attempt per
// reading: no retry and no buffering.
type NetworkSink struct {
	url     string
	timeout time.Duration
	client  *httpclient.Client
	owned   bool
}

// NetworkOption configures a NetworkSink.
type NetworkOption func(*NetworkSink)

// WithHTTPClient shares an existing client. The sink does not close it.
func WithHTTPClient(c *httpclient.Client) NetworkOption {
	return func(s *NetworkSink) {
		if c != nil {
			s.client = c
			s.owned = false
		}
	}
}

// WithAttemptTimeout bounds a single POST.
func WithAttemptTimeout(d time.Duration) NetworkOption {
	return func(s *NetworkSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewNetworkSink creates a sink posting to url.
func NewNetworkSink(url string, opts ...NetworkOption) (*NetworkSink, error) {
	if url == "" {
		return nil, errors.Newf("network sink requires an endpoint url").
			Component(componentSinks).
			Category(errors.CategoryConfiguration).
			Build()
	}
	s := &NetworkSink{url: url, timeout: httpclient.DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = httpclient.New(&httpclient.Config{DefaultTimeout: s.timeout})
		s.owned = true
	}
	return s, nil
}

// Name implements audiocore.Sink.
func (s *NetworkSink) Name() string { return NameHTTP }

// Accept posts r. Any non-2xx status or transport error is a delivery error.
func (s *NetworkSink) Accept(ctx context.Context, r audiocore.Reading) error {
	body, err := encodeRecord(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Post(ctx, s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return deliveryError(err, NameHTTP, r).
			NetworkContext(s.url, s.timeout).
			Timing("post_reading", time.Since(start)).
			Build()
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return deliveryError(errors.Newf("endpoint returned %s", resp.Status).Build(), NameHTTP, r).
			NetworkContext(s.url, s.timeout).
			Context("status_code", resp.StatusCode).
			Build()
	}
	return nil
}

// Close releases idle connections of a client the sink created.
func (s *NetworkSink) Close() error {
	if s.owned {
		s.client.Close()
	}
	return nil
}
