package audiocore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SentinelDecibels is reported when the loudness of a frame is undefined.
const SentinelDecibels = 0.0

// ToDecibels returns 20*log10 of the RMS of samples, the level relative to one
// LSB of a 16-bit stream.
//
// An empty or silent frame has no defined level. In that case, and whenever an
// intermediate value is not finite, SentinelDecibels is returned together with
// an error wrapping ErrTransformDomain. Callers should treat that error as a
// warning: the returned value is still a valid reading.
func ToDecibels(samples []int16) (float64, error) {
	if len(samples) == 0 {
		return SentinelDecibels, fmt.Errorf("%w: empty frame", ErrTransformDomain)
	}

	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}

	rms := math.Sqrt(math.Abs(sumSquares / float64(len(samples))))
	if rms == 0 {
		return SentinelDecibels, fmt.Errorf("%w: silent frame", ErrTransformDomain)
	}

	db := 20 * math.Log10(rms)
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return SentinelDecibels, fmt.Errorf("%w: non-finite level %v", ErrTransformDomain, db)
	}

	return db, nil
}

// BytesToSamples decodes little-endian signed 16-bit PCM. A trailing odd byte
// is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
