// Package buildinfo holds build-time metadata that is not part of the user
// configuration. Values are injected with -ldflags:
//
//	go build -ldflags "-X github.com/tphakala/dbstation/internal/buildinfo.version=v1.2.0 \
//	  -X github.com/tphakala/dbstation/internal/buildinfo.buildDate=2024-05-01T12:00:00Z"
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

var (
	version   string
	buildDate string
)

// Info is the build metadata of the running binary.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
}

// NewInfo creates an Info, replacing empty values with UnknownValue.
func NewInfo(version, buildDate string) Info {
	if version == "" {
		version = UnknownValue
	}
	if buildDate == "" {
		buildDate = UnknownValue
	}
	return Info{Version: version, BuildDate: buildDate}
}

// Current returns the metadata injected at build time.
func Current() Info {
	return NewInfo(version, buildDate)
}

// Release is the release name reported with telemetry events.
func (i Info) Release() string {
	return "dbstation@" + i.Version
}

func (i Info) String() string {
	return fmt.Sprintf("%s (built %s)", i.Version, i.BuildDate)
}
