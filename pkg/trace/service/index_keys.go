package service

import (
	"sort"

	"github.com/tracelet/spanstore/pkg/trace/model"
)

// annotationKeys returns the lookup keys indexed for a span under
// annotation_query: every annotation value, and for each tag whose value is
// short enough to index, the bare key plus "key:value". The colon form lets
// an annotation query match on key alone or on the exact pair. Duplicates are
// collapsed; order is deterministic (annotations in span order, then tags in
// key order) so the derived string is reproducible.
func annotationKeys(span model.Span, longestValueToIndex int) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	for _, annotation := range span.Annotations {
		add(annotation.Value)
	}

	tagKeys := make([]string, 0, len(span.Tags))
	for key := range span.Tags {
		tagKeys = append(tagKeys, key)
	}
	sort.Strings(tagKeys)
	for _, key := range tagKeys {
		if len(span.Tags[key]) > longestValueToIndex {
			continue
		}
		add(key)
		add(key + ":" + span.Tags[key])
	}
	return keys
}

// annotationKeysForQuery converts requested tag filters into lookup keys: an
// empty value searches by key alone, otherwise by the exact "key:value" pair.
// First-seen order is preserved and duplicates collapsed.
func annotationKeysForQuery(queryTags []model.TagFilter) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, filter := range queryTags {
		key := filter.Key
		if filter.Value != "" {
			key = filter.Key + ":" + filter.Value
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// durationIndexBucket maps a microsecond timestamp onto a bucket of the
// trace_by_service_span index. Write and read paths must agree on this or
// index entries become unreachable.
func durationIndexBucket(tsMicros int64, bucketWindowSeconds int64) int {
	return int((tsMicros / bucketWindowSeconds) / 1_000_000)
}
