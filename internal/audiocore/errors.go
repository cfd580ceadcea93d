package audiocore

import (
	"github.com/tphakala/dbstation/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Error taxonomy. These sentinels match any enhanced error of the same
// category, so errors.Is(err, ErrSourceRead) holds for every read failure
// built with errors.CategorySourceRead regardless of the backend.
var (
	// ErrSourceRead is returned when a source cannot produce a frame.
	ErrSourceRead = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategorySourceRead).
			Build()

	// ErrTransformDomain marks a reading whose level was undefined.
	ErrTransformDomain = errors.New(nil).
				Component(ComponentAudioCore).
				Category(errors.CategoryTransformDomain).
				Build()

	// ErrSinkDelivery is returned when a sink fails to accept a reading.
	ErrSinkDelivery = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategorySinkDelivery).
			Build()

	// ErrLifecycle is returned when start or stop is called in the wrong state.
	ErrLifecycle = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryLifecycle).
			Build()

	// ErrSourceOpen is returned when a capture stream cannot be opened.
	ErrSourceOpen = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Build()
)

// Precise conditions within the taxonomy.
var (
	// ErrNothingToStop is returned by Stop when the pipeline is idle.
	ErrNothingToStop = errors.NewStd("nothing to stop")

	// ErrAlreadyRunning is returned by Start when the pipeline is not idle.
	ErrAlreadyRunning = errors.NewStd("pipeline already running")

	// ErrSourceClosed is returned when reading from a closed source.
	ErrSourceClosed = errors.NewStd("source closed")

	// ErrNoSources is returned when a pipeline is started without sources.
	ErrNoSources = errors.NewStd("no sources configured")
)

// lifecycleError wraps a precise lifecycle condition with the lifecycle category.
func lifecycleError(err error, state State, operation string) error {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryLifecycle).
		Context("state", state.String()).
		Context("operation", operation).
		Build()
}
