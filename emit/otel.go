package emit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a single OpenTelemetry span: the span
// name is event.Msg, standard fields and Meta become attributes, and the
// span is ended immediately since an Event describes a point in time, not
// an open-ended operation.
type OTelEmitter struct {
	tracer trace.Tracer
}

func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	o.populate(span, event)
	span.End()
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.populate(span, event)
		span.End()
	}
	return nil
}

func (o *OTelEmitter) populate(span trace.Span, event Event) {
	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)

	// A phase_failed event always carries Meta["error"]; a workflow-level
	// event can describe a failure purely through its Msg suffix, so check
	// both before deciding the span succeeded.
	if errMsg, failed := failureReason(event); failed {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

func failureReason(event Event) (string, bool) {
	if errMsg, ok := event.Meta["error"].(string); ok {
		return errMsg, true
	}
	if strings.HasSuffix(event.Msg, "_failed") {
		return event.Msg, true
	}
	return "", false
}

// Flush force-flushes the global tracer provider if it supports it (the SDK
// provider does; the no-op provider doesn't).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("orchestrator.workflow_id", event.WorkflowID),
		attribute.Int("orchestrator.step", event.Step),
		attribute.String("orchestrator.phase_id", event.PhaseID),
	)
}

// addMetadataAttributes maps known Meta keys to namespaced span attributes
// (duration_ms, checkpoint compression stats, retry attempt) and falls back
// to the bare key, stringified, for anything else.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "duration_ms":
			attrKey = "orchestrator.phase.duration_ms"
		case "compressed_size":
			attrKey = "orchestrator.checkpoint.compressed_size"
		case "uncompressed_size":
			attrKey = "orchestrator.checkpoint.uncompressed_size"
		case "ratio":
			attrKey = "orchestrator.checkpoint.ratio"
		case "artifact_count":
			attrKey = "orchestrator.phase.artifact_count"
		case "attempt":
			attrKey = "orchestrator.attempt"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}

var _ Emitter = (*OTelEmitter)(nil)
