package service

import (
	"math/rand"
	"time"

	"github.com/gocql/gocql"
)

const (
	insertSpanStatement = `INSERT INTO span ` +
		`(trace_id, ts_uuid, id, ts, span, parent_id, duration, l_ep, l_service, r_ep, annotations, tags, shared, annotation_query) ` +
		`VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertTraceServiceSpanNameStatement = `INSERT INTO trace_by_service_span ` +
		`(service, span, bucket, ts, trace_id, duration) VALUES (?, ?, ?, ?, ?, ?)`

	insertServiceSpanNameStatement = `INSERT INTO span_by_service (service, span) VALUES (?, ?)`

	// The duration-bounded select is kept structurally separate from the
	// plain one: binding an unset duration column is rejected by the store.
	selectTraceIDsByServiceSpanStatement = `SELECT trace_id, ts FROM trace_by_service_span ` +
		`WHERE service = ? AND span = ? AND bucket = ? AND ts >= ? AND ts <= ? LIMIT ?`

	selectTraceIDsByServiceSpanDurationStatement = `SELECT trace_id, ts FROM trace_by_service_span ` +
		`WHERE service = ? AND span = ? AND bucket = ? AND ts >= ? AND ts <= ? ` +
		`AND duration >= ? AND duration <= ? LIMIT ?`

	selectSpansByTraceIDStatement = `SELECT trace_id, id, ts, span, parent_id, duration, ` +
		`l_ep, r_ep, annotations, tags, shared FROM span WHERE trace_id = ?`
)

// annotationUDT and endpointUDT mirror the store's user defined types; gocql
// marshals them by cql tag.
type annotationUDT struct {
	Ts int64  `cql:"ts"`
	V  string `cql:"v"`
}

type endpointUDT struct {
	Service string `cql:"service"`
	IPv4    string `cql:"ipv4"`
	IPv6    string `cql:"ipv6"`
	Port    int    `cql:"port"`
}

// newTimeUUID builds the per-row unique key: the millisecond-floored time
// bits of the given microsecond timestamp, with randomized low-order bytes so
// rows written in the same millisecond never collide.
func newTimeUUID(tsMicros int64) gocql.UUID {
	u := gocql.UUIDFromTime(time.UnixMilli(tsMicros / 1000).UTC())
	var low [8]byte
	rand.Read(low[:])
	copy(u[8:], low[:])
	u[8] = (u[8] & 0x3f) | 0x80 // keep the RFC 4122 variant bits
	return u
}
