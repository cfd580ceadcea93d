package sources

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/audiocore/sources/malgo"
	"github.com/tphakala/dbstation/internal/audiocore/sources/portaudio"
	"github.com/tphakala/dbstation/internal/errors"
)

// DefaultCatalogTTL is how long a device listing is reused.
const DefaultCatalogTTL = 30 * time.Second

// Catalog lists input devices per backend and caches the result. Expired
// listings are refreshed on the next lookup.
type Catalog struct {
	listers map[string]audiocore.DeviceLister
	cache   *cache.Cache
}

// NewCatalog creates a catalog over listers keyed by backend name.
func NewCatalog(listers map[string]audiocore.DeviceLister, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &Catalog{
		listers: listers,
		cache:   cache.New(ttl, 0),
	}
}

// NewDefaultCatalog creates a catalog over the hardware backends.
func NewDefaultCatalog() *Catalog {
	return NewCatalog(map[string]audiocore.DeviceLister{
		TypeMalgo:     malgo.Lister{},
		TypePortAudio: portaudio.Lister{},
	}, DefaultCatalogTTL)
}

// Backends returns the backend names in sorted order.
func (c *Catalog) Backends() []string {
	return slices.Sorted(maps.Keys(c.listers))
}

// ListInputSources returns every device of backend. An empty backend means
// DefaultType.
func (c *Catalog) ListInputSources(ctx context.Context, backend string) ([]audiocore.DeviceInfo, error) {
	if backend == "" {
		backend = DefaultType
	}
	if cached, ok := c.cache.Get(backend); ok {
		if devices, ok := cached.([]audiocore.DeviceInfo); ok {
			return slices.Clone(devices), nil
		}
	}

	lister, ok := c.listers[backend]
	if !ok {
		return nil, errors.Newf("no device lister for backend %q", backend).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryNotFound).
			Context("backend", backend).
			Build()
	}

	devices, err := lister.ListInputSources(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(backend, devices)
	return slices.Clone(devices), nil
}

// UsableInputs returns the devices of backend that can serve as microphones.
func (c *Catalog) UsableInputs(ctx context.Context, backend string) ([]audiocore.DeviceInfo, error) {
	devices, err := c.ListInputSources(ctx, backend)
	if err != nil {
		return nil, err
	}
	return audiocore.UsableInputs(devices), nil
}

// Invalidate drops every cached listing.
func (c *Catalog) Invalidate() {
	c.cache.Flush()
}
