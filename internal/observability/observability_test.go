package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/block/storefront/internal/log"
)

func TestExportOTELFlag(t *testing.T) {
	for _, test := range []struct {
		value    string
		expected bool
	}{
		{"", false},
		{"false", false},
		{"NO", false},
		{"0", false},
		{"true", true},
		{"http://localhost:4317", true},
	} {
		t.Run(test.value, func(t *testing.T) {
			var flag ExportOTELFlag
			assert.NoError(t, flag.UnmarshalText([]byte(test.value)))
			assert.Equal(t, test.expected, bool(flag))
		})
	}
}

func TestSuccessOrFailureStatus(t *testing.T) {
	assert.Equal(t, SuccessStatus, SuccessOrFailureStatus(true))
	assert.Equal(t, FailureStatus, SuccessOrFailureStatus(false))
}

func TestInitDisabled(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	shutdown, err := Init(ctx, "storefront", "dev", Config{})
	assert.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
}

func TestNoopInstrumentsDoNotPanic(t *testing.T) {
	ctx := context.Background()
	GraphQL.Request(ctx, "query", "Cart", time.Now(), "")
	GraphQL.Request(ctx, "mutation", "AddToCart", time.Now(), "network")
	GraphQL.Retry(ctx, "Cart")

	spanCtx, end := StartOperation(ctx, "query", "Cart")
	assert.NotZero(t, spanCtx)
	end(errors.New("boom"))
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
