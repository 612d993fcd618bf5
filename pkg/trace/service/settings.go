package service

import "time"

const (
	// DefaultDedupTTL is how long a written (service, span) pair suppresses
	// identical catalog writes.
	DefaultDedupTTL = time.Hour
	// DefaultBucketWindow is the time span covered by one bucket of the
	// trace_by_service_span index.
	DefaultBucketWindow = 24 * time.Hour
	// DefaultLongestValueToIndex bounds the tag values admitted into
	// annotation_query. Not every tag is a lookup key: indexing something
	// like a full SQL statement would add a potentially kilobyte partition
	// key to the span table.
	DefaultLongestValueToIndex = 256
)

// Settings carries the tunables shared by the write and read paths. The
// bucket window in particular must match on both sides or index entries
// become unreachable.
type Settings struct {
	StrictTraceID       bool
	DedupTTL            time.Duration
	BucketWindow        time.Duration
	LongestValueToIndex int
}

func DefaultSettings() Settings {
	return Settings{
		StrictTraceID:       false,
		DedupTTL:            DefaultDedupTTL,
		BucketWindow:        DefaultBucketWindow,
		LongestValueToIndex: DefaultLongestValueToIndex,
	}
}

func (s Settings) bucketWindowSeconds() int64 {
	seconds := int64(s.BucketWindow / time.Second)
	if seconds <= 0 {
		return int64(DefaultBucketWindow / time.Second)
	}
	return seconds
}
