// Package metrics provides the Prometheus collectors of dbstation.
package metrics

// Namespace prefixes every metric name.
const Namespace = "dbstation"

// Delivery status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12

	// LevelBucketStart is the lowest sound level bucket in dB.
	LevelBucketStart = 0.0
	// LevelBucketWidth is the width of each sound level bucket in dB.
	LevelBucketWidth = 10.0
	// LevelBucketCount covers 0 to 90 dB, full scale of 16-bit audio.
	LevelBucketCount = 10
)
