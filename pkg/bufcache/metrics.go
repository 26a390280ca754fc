package bufcache

// Metrics receives cache events. Implementations must be safe for
// concurrent use. A nil Metrics disables collection.
type Metrics interface {
	// ObserveLookup records a lookup; hit is true for an enabled entry.
	ObserveLookup(hit bool)

	// RecordReservation records the outcome of a Reserve call.
	RecordReservation(ok bool)

	// RecordEviction records an entry leaving the cache.
	RecordEviction(reason string, bytes uint64)

	// RecordUsage records current entry count and bytes held in slices.
	RecordUsage(entries int, usedBytes uint64)
}
