package malgo

import (
	"context"
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
)

// Lister enumerates miniaudio capture devices. miniaudio exposes a single
// backend per platform, so every device reports HostAPI 0.
type Lister struct{}

// ListInputSources implements audiocore.DeviceLister.
func (Lister) ListInputSources(context.Context) ([]audiocore.DeviceInfo, error) {
	mctx, err := initContext(logging.ForService(componentMalgo))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	return toDeviceInfos(infos), nil
}

func toDeviceInfos(infos []malgo.DeviceInfo) []audiocore.DeviceInfo {
	devices := make([]audiocore.DeviceInfo, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if isNullDevice(name) {
			continue
		}
		devices = append(devices, audiocore.DeviceInfo{
			ID:               i,
			Name:             name,
			MaxInputChannels: 1,
			HostAPI:          audiocore.PrimaryHostAPI,
			HostAPIName:      backendName(),
			DefaultInput:     infos[i].IsDefault == 1,
		})
	}
	return devices
}

func backendName() string {
	switch runtime.GOOS {
	case "linux":
		return "alsa"
	case "windows":
		return "wasapi"
	case "darwin":
		return "coreaudio"
	default:
		return "null"
	}
}

// isNullDevice reports the ALSA null sink that miniaudio lists as a capture device.
func isNullDevice(name string) bool {
	return strings.Contains(name, "Discard all samples")
}

// SelectDevice finds the capture device matching name. Matching tries the
// exact name, then the decoded device ID, then a name substring.
func SelectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}

	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}

	for i := range devices {
		if decoded, err := hexToASCII(devices[i].ID.String()); err == nil && decoded == name {
			return &devices[i], nil
		}
	}

	for i := range devices {
		if strings.Contains(devices[i].Name(), name) {
			return &devices[i], nil
		}
	}

	return nil, errors.Newf("no capture device matches %q", name).
		Component(componentMalgo).
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// hexToASCII decodes a miniaudio device ID, which ALSA reports as hex encoded ASCII.
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
