package hub

import "github.com/tphakala/dbstation/internal/errors"

const componentHub = "hub"

var (
	// ErrRegistrationNotFound is returned by Unregister for an unknown id.
	ErrRegistrationNotFound = errors.NewStd("sink registration not found")

	// ErrNotRunning is returned by Publish outside a run.
	ErrNotRunning = errors.NewStd("hub not running")

	// ErrAlreadyRunning is returned by Start during a run.
	ErrAlreadyRunning = errors.NewStd("hub already running")
)
