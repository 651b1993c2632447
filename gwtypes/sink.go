package gwtypes

import (
	"context"
	"time"
)

// RequestLog is emitted on every exit path of the orchestrator's pipeline
// (success, retryable failure, surfaced failure). Persistence is an
// external collaborator; the core only produces these records and hands
// them to a Sink.
type RequestLog struct {
	TraceID    string    `json:"trace_id"`
	Dialect    string    `json:"dialect"`
	Model      string    `json:"model"`
	Credential string    `json:"credential"` // redacted, see RedactCredential
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code"`
	LatencyMS  int64     `json:"latency_ms"`
	Streamed   bool      `json:"streamed"`
	Timestamp  time.Time `json:"timestamp"`
	// RequestBody is persisted by sinks when set. The orchestrator never sets
	// it, and it does not read Config.Sink.ErrorLogRecordRequestBody.
	RequestBody string `json:"request_body,omitempty"`
}

// ErrorLog is emitted in addition to RequestLog whenever a request fails.
type ErrorLog struct {
	TraceID     string    `json:"trace_id"`
	Dialect     string    `json:"dialect"`
	Model       string    `json:"model"`
	Credential  string    `json:"credential"`
	StatusCode  int       `json:"status_code"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	RequestBody string    `json:"request_body,omitempty"`
}

// Sink is the opaque persistence collaborator for request/error records.
// The core never assumes a concrete backing store.
type Sink interface {
	RecordRequest(ctx context.Context, log RequestLog) error
	RecordError(ctx context.Context, log ErrorLog) error
}

// RedactCredential keeps only the first six and last six characters of a
// credential; every logged record carries the redacted form, never the raw
// credential.
func RedactCredential(cred string) string {
	const keep = 6
	if len(cred) <= keep*2 {
		return "******"
	}
	return cred[:keep] + "..." + cred[len(cred)-keep:]
}
