package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		version   string
		buildDate string
		want      Info
	}{
		{"both set", "v1.2.0", "2024-05-01", Info{Version: "v1.2.0", BuildDate: "2024-05-01"}},
		{"empty version", "", "2024-05-01", Info{Version: UnknownValue, BuildDate: "2024-05-01"}},
		{"nothing injected", "", "", Info{Version: UnknownValue, BuildDate: UnknownValue}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewInfo(tt.version, tt.buildDate))
		})
	}
}

func TestInfoFormatting(t *testing.T) {
	t.Parallel()

	info := NewInfo("v1.2.0", "2024-05-01")
	assert.Equal(t, "dbstation@v1.2.0", info.Release())
	assert.Equal(t, "v1.2.0 (built 2024-05-01)", info.String())
}

func TestCurrentWithoutLdflags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Info{Version: UnknownValue, BuildDate: UnknownValue}, Current())
}
