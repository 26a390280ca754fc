package fileserve

import "time"

// Response sources.
const (
	SourceCache    = "cache"
	SourceLoad     = "load"
	SourceRejected = "rejected"
)

// Load outcomes.
const (
	OutcomeCached   = "cached"
	OutcomeDirect   = "direct"
	OutcomeHead     = "head"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics receives file serving events. A nil Metrics disables collection.
type Metrics interface {
	// RecordServe records how a request was dispatched.
	RecordServe(method, source string)

	// ObserveLoad records a finished load task.
	ObserveLoad(outcome string, bytes int64, duration time.Duration)
}
