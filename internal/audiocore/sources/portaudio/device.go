package portaudio

import (
	"context"

	"github.com/gordonklaus/portaudio"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

// Lister enumerates PortAudio devices. HostAPI is the position of the
// device's host API in portaudio.HostApis.
type Lister struct{}

// ListInputSources implements audiocore.DeviceLister. PortAudio is
// initialized for the duration of the call.
func (Lister) ListInputSources(context.Context) ([]audiocore.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, listError(err, "initialize")
	}
	defer func() { _ = portaudio.Terminate() }()

	apis, err := portaudio.HostApis()
	if err != nil {
		return nil, listError(err, "host_apis")
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, listError(err, "devices")
	}

	defaultIndex := -1
	if d, err := portaudio.DefaultInputDevice(); err == nil && d != nil {
		defaultIndex = d.Index
	}
	return toDeviceInfos(devices, apis, defaultIndex), nil
}

func toDeviceInfos(devices []*portaudio.DeviceInfo, apis []*portaudio.HostApiInfo, defaultIndex int) []audiocore.DeviceInfo {
	infos := make([]audiocore.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		info := audiocore.DeviceInfo{
			ID:               d.Index,
			Name:             d.Name,
			MaxInputChannels: d.MaxInputChannels,
			HostAPI:          -1,
			DefaultInput:     d.Index == defaultIndex,
		}
		if d.HostApi != nil {
			info.HostAPIName = d.HostApi.Name
			for i, api := range apis {
				if api == d.HostApi || (api.Type == d.HostApi.Type && api.Name == d.HostApi.Name) {
					info.HostAPI = i
					break
				}
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func listError(err error, operation string) error {
	return errors.New(err).
		Component(componentPortAudio).
		Category(errors.CategoryAudioSource).
		Context("operation", operation).
		Build()
}
