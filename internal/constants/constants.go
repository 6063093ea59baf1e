// Package constants provides shared constants used across the codebase.
package constants

import "time"

// HTTP limits
const (
	// MaxFrameSize is the largest camera frame accepted for identification or enrollment (10MB)
	MaxFrameSize = 10 << 20

	// MaxJSONBodySize bounds JSON request bodies, which may carry a raw embedding
	MaxJSONBodySize = 1 << 20

	// RequestTimeout is applied to every API request
	RequestTimeout = 30 * time.Second
)

// Kiosk session constants
const (
	// KioskSessionTTL is how long an idle kiosk session is kept before it is dropped
	KioskSessionTTL = 10 * time.Minute

	// KioskSessionSweepInterval is how often idle kiosk sessions are removed
	KioskSessionSweepInterval = time.Minute
)

// Stats constants
const (
	// StatsCacheTTL is how long the admin statistics are cached
	StatsCacheTTL = 30 * time.Second
)

// Import constants
const (
	// DefaultImportConcurrency is the number of frames sent to the embedding service in parallel
	DefaultImportConcurrency = 4
)
