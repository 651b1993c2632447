package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceID_RoundTrips(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc-123")
	got, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", got)
}

func TestTraceID_AbsentReturnsFalse(t *testing.T) {
	_, ok := TraceID(context.Background())
	assert.False(t, ok)
}

func TestTraceID_EmptyStringTreatedAsAbsent(t *testing.T) {
	ctx := WithTraceID(context.Background(), "")
	_, ok := TraceID(ctx)
	assert.False(t, ok)
}
