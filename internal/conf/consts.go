package conf

import "time"

const (
	// DefaultModelLoadTimeout bounds how long callers wait for the model.
	DefaultModelLoadTimeout = 30 * time.Second

	// DefaultConfidenceThreshold is the minimum confidence for a primary label.
	DefaultConfidenceThreshold = 0.60

	// DefaultStatsCacheTTL is how long a statistics snapshot is reused.
	DefaultStatsCacheTTL = 5 * time.Minute

	// DefaultMaxUploadMB caps API image uploads.
	DefaultMaxUploadMB = 20

	appDirName = "soilnet"
)
