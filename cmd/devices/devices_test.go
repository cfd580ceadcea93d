package devices

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/audiocore/sources"
)

type staticLister []audiocore.DeviceInfo

func (l staticLister) ListInputSources(context.Context) ([]audiocore.DeviceInfo, error) {
	return l, nil
}

func testCatalog() *sources.Catalog {
	return sources.NewCatalog(map[string]audiocore.DeviceLister{
		sources.TypePortAudio: staticLister{
			{ID: "0", Name: "USB Audio", MaxInputChannels: 2, HostAPI: 0, HostAPIName: "ALSA", DefaultInput: true},
			{ID: "1", Name: "HDMI", MaxInputChannels: 0, HostAPI: 0, HostAPIName: "ALSA"},
			{ID: "2", Name: "system", MaxInputChannels: 2, HostAPI: 1, HostAPIName: "JACK Audio Connection Kit"},
		},
		sources.TypeMalgo: staticLister{},
	}, time.Minute)
}

func TestListUsable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, List(context.Background(), &out, testCatalog(), sources.TypePortAudio, false))

	text := out.String()
	assert.Contains(t, text, "USB Audio")
	assert.Contains(t, text, "ALSA")
	assert.NotContains(t, text, "HDMI")
	assert.NotContains(t, text, "JACK")
}

func TestListAll(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, List(context.Background(), &out, testCatalog(), sources.TypePortAudio, true))

	text := out.String()
	assert.Contains(t, text, "HDMI")
	assert.Contains(t, text, "JACK Audio Connection Kit")
}

func TestListEmptyAndUnknown(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, List(context.Background(), &out, testCatalog(), sources.TypeMalgo, false))
	assert.Equal(t, "No input devices found\n", out.String())

	assert.Error(t, List(context.Background(), &out, testCatalog(), "oss", false))
}
