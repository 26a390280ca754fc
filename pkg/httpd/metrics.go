package httpd

import "time"

// Metrics records connection lifecycle and request events. A nil Metrics
// disables collection.
type Metrics interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)

	// RecordRequest records a finished exchange.
	RecordRequest(method string, status int, bytes int64, duration time.Duration)
}
