package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tracelet/spanstore/pkg/cassandra/client"
	"github.com/tracelet/spanstore/pkg/trace/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SpanConsumer accepts batches of spans for storage and indexing.
type SpanConsumer interface {
	// Accept fans one batch out into many independent row writes, last count
	// 2 * len(spans) and up: the primary span row (twice under non-strict
	// 128-bit trace ids), up to two trace_by_service_span index rows, and
	// deduplicated span_by_service catalog rows. It returns once every
	// fanned-out write has completed; a failed primary write fails the whole
	// batch, which most callers log and drop.
	Accept(ctx context.Context, spans []model.Span) error
}

type SpanConsumerService struct {
	session       client.Session
	dedupExecutor *DeduplicatingExecutor
	settings      Settings
	now           func() time.Time
	logger        *zap.Logger
}

func NewSpanConsumerService(
	session client.Session,
	dedupExecutor *DeduplicatingExecutor,
	settings Settings,
	logger *zap.Logger,
) *SpanConsumerService {
	return &SpanConsumerService{
		session:       session,
		dedupExecutor: dedupExecutor,
		settings:      settings,
		now:           time.Now,
		logger:        logger,
	}
}

func (scs *SpanConsumerService) Accept(ctx context.Context, spans []model.Span) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for _, span := range spans {
		span := span
		// indexing occurs by timestamp, so derive one if not present
		timestamp := scs.effectiveTimestamp(span)

		g.Go(func() error {
			return scs.storeSpan(groupCtx, span, timestamp)
		})

		localServiceName := span.LocalServiceName()
		spanName := span.Name
		if localServiceName != "" {
			// store the index row twice, once with the span name and once
			// with empty string, so a trace is discoverable by service alone
			g.Go(func() error {
				scs.storeTraceServiceSpanName(
					groupCtx, localServiceName, spanName, timestamp, span.Duration, span.TraceID,
				)
				return nil
			})
			if spanName != "" {
				g.Go(func() error {
					scs.storeTraceServiceSpanName(
						groupCtx, localServiceName, "", timestamp, span.Duration, span.TraceID,
					)
					return nil
				})
			}
			scs.storeServiceSpanName(groupCtx, localServiceName, spanName)
		}
		if remoteServiceName := span.RemoteServiceName(); remoteServiceName != "" {
			// allows service listings to include remote service names
			scs.storeServiceSpanName(groupCtx, remoteServiceName, spanName)
		}
	}
	return g.Wait()
}

// effectiveTimestamp places a span in time for indexing: its own timestamp if
// present, else its first annotation with a positive timestamp, else the wall
// clock. The guess is never written back into the span's ts column.
func (scs *SpanConsumerService) effectiveTimestamp(span model.Span) int64 {
	if span.Timestamp != nil {
		return *span.Timestamp
	}
	for _, annotation := range span.Annotations {
		if annotation.Timestamp > 0 {
			return annotation.Timestamp
		}
	}
	return scs.now().UnixMicro()
}

// storeSpan writes the primary row, and under a non-strict 128-bit trace id
// also writes the identical row keyed by the id's lower 64 bits, at the same
// timestamp. The shadow write is a plain row write: the index fan-out in
// Accept is keyed by service and span identity, not trace id, and must not
// re-trigger.
func (scs *SpanConsumerService) storeSpan(ctx context.Context, span model.Span, tsMicros int64) error {
	args, err := scs.buildSpanInsert(span, span.TraceID, tsMicros)
	if err != nil {
		// a pathological span must not sink the rest of the batch
		scs.logger.Error("Failed to build span row, skipping", zap.Error(err))
		return nil
	}
	if err := scs.session.Query(insertSpanStatement, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("error inserting span row: %w", err)
	}

	if !scs.settings.StrictTraceID && model.IsTraceID128(span.TraceID) {
		args, err := scs.buildSpanInsert(span, model.LowerTraceID64(span.TraceID), tsMicros)
		if err != nil {
			scs.logger.Error("Failed to build 64-bit span row, skipping", zap.Error(err))
			return nil
		}
		if err := scs.session.Query(insertSpanStatement, args...).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("error inserting 64-bit span row: %w", err)
		}
	}
	return nil
}

func (scs *SpanConsumerService) buildSpanInsert(
	span model.Span,
	traceID string,
	tsMicros int64,
) ([]interface{}, error) {
	if len(traceID) != 16 && len(traceID) != 32 {
		return nil, fmt.Errorf("trace id %q is neither 16 nor 32 characters", traceID)
	}
	if span.ID == "" {
		return nil, fmt.Errorf("span in trace %s has no id", traceID)
	}

	annotations := make([]annotationUDT, len(span.Annotations))
	for i, annotation := range span.Annotations {
		annotations[i] = annotationUDT{Ts: annotation.Timestamp, V: annotation.Value}
	}

	var parentID interface{}
	if span.ParentID != "" {
		parentID = span.ParentID
	}
	var localEndpoint, remoteEndpoint interface{}
	var localService interface{}
	if span.LocalEndpoint != nil {
		localEndpoint = endpointFromModel(*span.LocalEndpoint)
		localService = span.LocalEndpoint.ServiceName
	}
	if span.RemoteEndpoint != nil {
		remoteEndpoint = endpointFromModel(*span.RemoteEndpoint)
	}

	annotationQuery := strings.Join(annotationKeys(span, scs.settings.LongestValueToIndex), ",")

	return []interface{}{
		traceID,
		newTimeUUID(tsMicros),
		span.ID,
		span.Timestamp,
		span.Name,
		parentID,
		span.Duration,
		localEndpoint,
		localService,
		remoteEndpoint,
		annotations,
		span.Tags,
		span.Shared,
		annotationQuery,
	}, nil
}

// storeTraceServiceSpanName writes one trace_by_service_span index row. The
// row is best-effort: a failure degrades discoverability, not durability, so
// it is logged and dropped rather than surfaced to the batch.
func (scs *SpanConsumerService) storeTraceServiceSpanName(
	ctx context.Context,
	serviceName string,
	spanName string,
	tsMicros int64,
	duration *int64,
	traceID string,
) {
	bucket := durationIndexBucket(tsMicros, scs.settings.bucketWindowSeconds())
	err := scs.session.Query(
		insertTraceServiceSpanNameStatement,
		serviceName,
		spanName,
		bucket,
		newTimeUUID(tsMicros),
		traceID,
		duration,
	).WithContext(ctx).Exec()
	if err != nil {
		scs.logger.Error(
			"Failed to write trace_by_service_span row",
			zap.String("service", serviceName),
			zap.String("span", spanName),
			zap.Error(err),
		)
	}
}

// storeServiceSpanName offers one span_by_service catalog row to the dedup
// gate. The value of the row never changes, so re-writes within the TTL are
// suppressed.
func (scs *SpanConsumerService) storeServiceSpanName(
	ctx context.Context,
	serviceName string,
	spanName string,
) {
	scs.dedupExecutor.MaybeExecuteAsync(
		ctx,
		insertServiceSpanNameStatement,
		DedupKey(serviceName, spanName),
		serviceName,
		spanName,
	)
}

func endpointFromModel(endpoint model.Endpoint) endpointUDT {
	return endpointUDT{
		Service: endpoint.ServiceName,
		IPv4:    endpoint.IPv4,
		IPv6:    endpoint.IPv6,
		Port:    endpoint.Port,
	}
}
