package service

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/tracelet/spanstore/pkg/cassandra/client"
	"github.com/tracelet/spanstore/pkg/trace/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TimeRange bounds a lookup in microseconds since epoch, inclusive.
type TimeRange struct {
	StartMicros int64
	EndMicros   int64
}

// TraceQueryService answers "which traces had span X on service Y in time
// range Z, with duration in range D" against the trace_by_service_span index.
type TraceQueryService struct {
	session  client.Session
	settings Settings
	logger   *zap.Logger
}

func NewTraceQueryService(
	session client.Session,
	settings Settings,
	logger *zap.Logger,
) *TraceQueryService {
	return &TraceQueryService{
		session:  session,
		settings: settings,
		logger:   logger,
	}
}

// TraceIDsByServiceSpan enumerates the index buckets covered by timeRange and
// accumulates (trace id, timestamp) entries across them, newest bucket first.
// Duration bounds are in microseconds and converted to the index's
// millisecond duration column; an absent max defaults to unbounded-high.
//
// Entries are NOT deduplicated by trace id: the per-bucket row key is not
// trace-id-unique, and the empty-span-name dual writes can surface the same
// trace twice. Collapsing duplicates newest-timestamp-wins is the caller's
// responsibility.
func (tqs *TraceQueryService) TraceIDsByServiceSpan(
	ctx context.Context,
	serviceName string,
	spanName string,
	minDurationMicros *int64,
	maxDurationMicros *int64,
	timeRange TimeRange,
	limit int,
) ([]model.TraceIDTimestamp, error) {
	if timeRange.EndMicros < timeRange.StartMicros {
		return nil, fmt.Errorf(
			"end of time range %d is before its start %d", timeRange.EndMicros, timeRange.StartMicros,
		)
	}

	var startDurationMillis, endDurationMillis int64
	if minDurationMicros != nil {
		startDurationMillis = *minDurationMicros / 1000
		endDurationMillis = math.MaxInt64
		if maxDurationMicros != nil {
			endDurationMillis = *maxDurationMicros / 1000
		}
	}

	windowSeconds := tqs.settings.bucketWindowSeconds()
	startBucket := durationIndexBucket(timeRange.StartMicros, windowSeconds)
	endBucket := durationIndexBucket(timeRange.EndMicros, windowSeconds)
	startUUID := gocql.MinTimeUUID(time.UnixMicro(timeRange.StartMicros).UTC())
	endUUID := gocql.MaxTimeUUID(time.UnixMicro(timeRange.EndMicros).UTC())

	resultsByBucket := make([][]model.TraceIDTimestamp, endBucket-startBucket+1)
	var mu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	for bucket := endBucket; bucket >= startBucket; bucket-- {
		bucket := bucket
		g.Go(func() error {
			entries, err := tqs.selectTraceIDsFromBucket(
				groupCtx, serviceName, spanName, bucket,
				minDurationMicros != nil, startDurationMillis, endDurationMillis,
				startUUID, endUUID, limit,
			)
			if err != nil {
				return err
			}
			mu.Lock()
			resultsByBucket[bucket-startBucket] = entries
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tqs.logger.Error(
			"Error querying trace_by_service_span",
			zap.String("service", serviceName),
			zap.String("span", spanName),
			zap.Error(err),
		)
		return nil, err
	}

	var accumulated []model.TraceIDTimestamp
	for i := len(resultsByBucket) - 1; i >= 0; i-- {
		accumulated = append(accumulated, resultsByBucket[i]...)
	}
	return accumulated, nil
}

func (tqs *TraceQueryService) selectTraceIDsFromBucket(
	ctx context.Context,
	serviceName string,
	spanName string,
	bucket int,
	durationBounded bool,
	startDurationMillis int64,
	endDurationMillis int64,
	startUUID gocql.UUID,
	endUUID gocql.UUID,
	limit int,
) ([]model.TraceIDTimestamp, error) {
	var query client.Query
	if durationBounded {
		query = tqs.session.Query(
			selectTraceIDsByServiceSpanDurationStatement,
			serviceName, spanName, bucket, startUUID, endUUID,
			startDurationMillis, endDurationMillis, limit,
		)
	} else {
		query = tqs.session.Query(
			selectTraceIDsByServiceSpanStatement,
			serviceName, spanName, bucket, startUUID, endUUID, limit,
		)
	}

	iter := query.WithContext(ctx).Iter()
	var entries []model.TraceIDTimestamp
	var traceID string
	var ts gocql.UUID
	for iter.Scan(&traceID, &ts) {
		entries = append(entries, model.TraceIDTimestamp{
			TraceID:         traceID,
			TimestampMillis: ts.Time().UnixMilli(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("error reading trace_by_service_span bucket %d: %w", bucket, err)
	}
	return entries, nil
}

// SpansByTraceID reads the primary rows of one trace id. A 64-bit id finds
// shadow rows written under non-strict mode as well as genuinely 64-bit
// traces; either way the returned spans report the stored (possibly
// truncated) id, with no 128-bit structure attached.
func (tqs *TraceQueryService) SpansByTraceID(
	ctx context.Context,
	traceID string,
) ([]model.Span, error) {
	iter := tqs.session.Query(selectSpansByTraceIDStatement, traceID).WithContext(ctx).Iter()

	var spans []model.Span
	var (
		rowTraceID     string
		id             string
		ts             int64
		spanName       string
		parentID       string
		duration       int64
		localEndpoint  endpointUDT
		remoteEndpoint endpointUDT
		annotations    []annotationUDT
		tags           map[string]string
		shared         bool
	)
	for iter.Scan(
		&rowTraceID, &id, &ts, &spanName, &parentID, &duration,
		&localEndpoint, &remoteEndpoint, &annotations, &tags, &shared,
	) {
		span := model.Span{
			TraceID:  rowTraceID,
			ID:       id,
			ParentID: parentID,
			Name:     spanName,
			Tags:     tags,
		}
		if ts != 0 {
			timestamp := ts
			span.Timestamp = &timestamp
		}
		if duration != 0 {
			durationMicros := duration
			span.Duration = &durationMicros
		}
		if localEndpoint != (endpointUDT{}) {
			span.LocalEndpoint = endpointToModel(localEndpoint)
		}
		if remoteEndpoint != (endpointUDT{}) {
			span.RemoteEndpoint = endpointToModel(remoteEndpoint)
		}
		if shared {
			sharedValue := shared
			span.Shared = &sharedValue
		}
		for _, annotation := range annotations {
			span.Annotations = append(span.Annotations, model.Annotation{
				Timestamp: annotation.Ts,
				Value:     annotation.V,
			})
		}
		spans = append(spans, span)

		annotations = nil
		tags = nil
		localEndpoint = endpointUDT{}
		remoteEndpoint = endpointUDT{}
		ts, duration, shared = 0, 0, false
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("error reading spans of trace %s: %w", traceID, err)
	}
	return spans, nil
}

func endpointToModel(endpoint endpointUDT) *model.Endpoint {
	return &model.Endpoint{
		ServiceName: endpoint.Service,
		IPv4:        endpoint.IPv4,
		IPv6:        endpoint.IPv6,
		Port:        endpoint.Port,
	}
}

// SortTraceIDsByDescTimestamp orders a trace id -> representative timestamp
// mapping by descending recency. Timestamps collide, so each sort key is the
// timestamp scaled up with random low-order digits appended, breaking exact
// ties without biasing toward map iteration order. Presentation convenience
// only; no storage ordering is implied.
func SortTraceIDsByDescTimestamp(timestampsByTraceID map[string]int64) []string {
	offset := big.NewInt(math.MaxInt32)
	type sortableTraceID struct {
		key     *big.Int
		traceID string
	}
	sortable := make([]sortableTraceID, 0, len(timestampsByTraceID))
	for traceID, timestamp := range timestampsByTraceID {
		key := new(big.Int).Mul(big.NewInt(timestamp), offset)
		key.Add(key, big.NewInt(int64(rand.Int31())))
		sortable = append(sortable, sortableTraceID{key: key, traceID: traceID})
	}
	sort.Slice(sortable, func(i, j int) bool {
		return sortable[i].key.Cmp(sortable[j].key) > 0
	})
	traceIDs := make([]string, len(sortable))
	for i, entry := range sortable {
		traceIDs[i] = entry.traceID
	}
	return traceIDs
}
