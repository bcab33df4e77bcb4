package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", map[string]string{})
	require.ErrorContains(t, err, "not configured")
}

func TestNewMessageMarshalsPayload(t *testing.T) {
	t.Parallel()

	msg, err := newMessage(context.Background(), map[string]any{"job_id": "j1", "records": 3})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Equal(t, "j1", got["job_id"])
	require.EqualValues(t, 3, got["records"])
	require.NotNil(t, msg.Attributes)
}

func TestNewMessageRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	_, err := newMessage(context.Background(), make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestAttributeCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	carrier := &attributeCarrier{attrs: map[string]string{}}
	prop := propagation.TraceContext{}
	prop.Inject(ctx, carrier)
	require.Contains(t, carrier.Keys(), "traceparent")

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
	require.Equal(t, traceID, extracted.TraceID())
}
