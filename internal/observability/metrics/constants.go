package metrics

import "time"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Datastore operation label values.
const (
	OpSave    = "save"
	OpLoadAll = "load_all"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpGet     = "get"
)

// Pipeline stage label values.
const (
	StageDecode  = "decode"
	StageQuality = "quality"
	StageResize  = "resize"
)

// DefaultSlowQueryThreshold marks database statements worth a warning.
const DefaultSlowQueryThreshold = 200 * time.Millisecond
