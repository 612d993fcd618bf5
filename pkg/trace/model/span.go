package model

// Span is the immutable unit of ingestion. Timestamps and durations are in
// microseconds since epoch. TraceID is a 16 character (64-bit) or 32 character
// (128-bit) lowercase hex string.
type Span struct {
	TraceID        string            `json:"trace_id"`
	ID             string            `json:"id"`
	ParentID       string            `json:"parent_id,omitempty"`
	Name           string            `json:"name,omitempty"`
	Timestamp      *int64            `json:"timestamp,omitempty"`
	Duration       *int64            `json:"duration,omitempty"`
	LocalEndpoint  *Endpoint         `json:"local_endpoint,omitempty"`
	RemoteEndpoint *Endpoint         `json:"remote_endpoint,omitempty"`
	Annotations    []Annotation      `json:"annotations,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Shared         *bool             `json:"shared,omitempty"`
}

type Annotation struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

type Endpoint struct {
	ServiceName string `json:"service_name,omitempty"`
	IPv4        string `json:"ipv4,omitempty"`
	IPv6        string `json:"ipv6,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// TagFilter is one requested tag predicate of an annotation query. An empty
// Value matches any span carrying the key.
type TagFilter struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// TraceIDTimestamp is one entry of the trace_by_service_span index: a
// candidate trace id and the millisecond timestamp recovered from its
// time-ordered row key.
type TraceIDTimestamp struct {
	TraceID         string `json:"trace_id"`
	TimestampMillis int64  `json:"timestamp_millis"`
}

const traceID128Len = 32

func (s Span) LocalServiceName() string {
	if s.LocalEndpoint == nil {
		return ""
	}
	return s.LocalEndpoint.ServiceName
}

func (s Span) RemoteServiceName() string {
	if s.RemoteEndpoint == nil {
		return ""
	}
	return s.RemoteEndpoint.ServiceName
}

// IsTraceID128 reports whether the trace id carries high bits, i.e. it
// originated from a 128-bit instrumented tracer.
func IsTraceID128(traceID string) bool {
	return len(traceID) == traceID128Len
}

// LowerTraceID64 returns the lower 64 bits of a 128-bit trace id, i.e. its
// trailing 16 hex characters. Shorter ids are returned unchanged.
func LowerTraceID64(traceID string) string {
	if !IsTraceID128(traceID) {
		return traceID
	}
	return traceID[16:]
}
