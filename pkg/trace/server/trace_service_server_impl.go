package server

import (
	"context"
	"encoding/hex"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"

	"github.com/tracelet/spanstore/pkg/trace/model"
	"github.com/tracelet/spanstore/pkg/trace/service"
)

const peerServiceAttribute = "peer.service"

type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	logger   *zap.Logger
	consumer service.SpanConsumer
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	consumer service.SpanConsumer,
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		logger:   logger,
		consumer: consumer,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == "" {
			tss.logger.Warn("Service name not found in resource span")
		}

		typedSpans := getTypedSpans(resourceSpan, serviceName)
		if err := tss.consumer.Accept(ctx, typedSpans); err != nil {
			// index rows are re-derivable from a re-delivered batch
			tss.logger.Error("Failed to store span batch", zap.Error(err))
		}
	}

	return &protoTrace.ExportTraceServiceResponse{}, nil
}

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	var serviceName string
	for _, attr := range resourceSpan.Resource.Attributes {
		if attr.Key == "service.name" {
			serviceName = attr.Value.GetStringValue()
		}
	}
	return serviceName
}

func getTypedSpans(resourceSpan *v1.ResourceSpans, serviceName string) []model.Span {
	var typedSpans []model.Span
	for _, scopeSpan := range resourceSpan.ScopeSpans {
		for _, span := range scopeSpan.Spans {
			typedSpans = append(typedSpans, getTypedSpan(span, serviceName))
		}
	}
	return typedSpans
}

func getTypedSpan(span *v1.Span, serviceName string) model.Span {
	timestamp := int64(span.StartTimeUnixNano / 1000)
	spanID := hex.EncodeToString(span.SpanId)
	parentSpanID := hex.EncodeToString(span.ParentSpanId)
	traceID := hex.EncodeToString(span.TraceId)
	tags := getTags(span)
	annotations := getAnnotations(span)

	typedSpan := model.Span{
		TraceID:     traceID,
		ID:          spanID,
		ParentID:    parentSpanID,
		Name:        span.Name,
		Timestamp:   &timestamp,
		Tags:        tags,
		Annotations: annotations,
	}
	// unsigned nanos wrap if a malformed span ends before it starts; such a
	// span carries no usable duration
	if span.EndTimeUnixNano > span.StartTimeUnixNano {
		duration := int64((span.EndTimeUnixNano - span.StartTimeUnixNano) / 1000)
		typedSpan.Duration = &duration
	}
	if serviceName != "" {
		typedSpan.LocalEndpoint = &model.Endpoint{ServiceName: serviceName}
	}
	if peerService, ok := tags[peerServiceAttribute]; ok {
		typedSpan.RemoteEndpoint = &model.Endpoint{ServiceName: peerService}
	}
	return typedSpan
}

func getAnnotations(span *v1.Span) []model.Annotation {
	annotations := make([]model.Annotation, len(span.Events))
	for i, event := range span.Events {
		annotations[i] = model.Annotation{
			Timestamp: int64(event.TimeUnixNano / 1000),
			Value:     event.Name,
		}
	}
	return annotations
}

func getTags(span *v1.Span) map[string]string {
	tags := make(map[string]string)
	for _, attribute := range span.Attributes {
		tags[attribute.Key] = attribute.Value.GetStringValue()
	}
	return tags
}
