// Package sinks holds the destinations readings are delivered to. Every sink
// implements audiocore.Sink; sinks that hold a resource across runs also
// implement audiocore.Opener so the hub can reopen them on restart.
package sinks

import (
	"encoding/json"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

const componentSinks = "sinks"

// Sink names as they appear in logs and metric labels.
const (
	NameConsole = "console"
	NameFile    = "file"
	NameHTTP    = "http"
	NameQueue   = "queue"
	NameMQTT    = "mqtt"
	NameMetrics = "metrics"
)

// encodeRecord marshals the wire record of r.
func encodeRecord(r audiocore.Reading) ([]byte, error) {
	data, err := json.Marshal(r.Record())
	if err != nil {
		return nil, errors.New(err).
			Component(componentSinks).
			Category(errors.CategorySinkDelivery).
			Context("operation", "encode_record").
			Context("source_id", r.SourceID).
			Build()
	}
	return data, nil
}

// deliveryError wraps a delivery failure of sink so it matches
// audiocore.ErrSinkDelivery.
func deliveryError(err error, sink string, r audiocore.Reading) *errors.ErrorBuilder {
	return errors.New(err).
		Component(componentSinks).
		Category(errors.CategorySinkDelivery).
		Context("sink", sink).
		Context("source_id", r.SourceID).
		Context("tick", r.Tick)
}
