package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceIDHelpers(t *testing.T) {
	t.Run("Recognizes 128-bit trace ids by length", func(t *testing.T) {
		assert.True(t, IsTraceID128("00000000000000010000000000000002"))
		assert.False(t, IsTraceID128("0000000000000002"))
	})

	t.Run("Takes the trailing 16 characters as the lower 64 bits", func(t *testing.T) {
		assert.Equal(t, "0000000000000002", LowerTraceID64("00000000000000010000000000000002"))
	})

	t.Run("Leaves a 64-bit id unchanged", func(t *testing.T) {
		assert.Equal(t, "0000000000000002", LowerTraceID64("0000000000000002"))
	})
}

func TestSpanServiceNames(t *testing.T) {
	t.Run("Reads service names from the endpoints", func(t *testing.T) {
		span := Span{
			LocalEndpoint:  &Endpoint{ServiceName: "frontend"},
			RemoteEndpoint: &Endpoint{ServiceName: "backend"},
		}
		assert.Equal(t, "frontend", span.LocalServiceName())
		assert.Equal(t, "backend", span.RemoteServiceName())
	})

	t.Run("Returns empty when an endpoint is absent", func(t *testing.T) {
		span := Span{}
		assert.Equal(t, "", span.LocalServiceName())
		assert.Equal(t, "", span.RemoteServiceName())
	})
}
