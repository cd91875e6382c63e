package observability

import (
	"context"

	"sqpr-engine/internal/common/logger"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logProcessor writes every ended span as one debug log line.
type logProcessor struct {
	logger logger.Logger
}

func newLogProcessor(log logger.Logger) *logProcessor {
	return &logProcessor{logger: log}
}

func (p *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := map[string]interface{}{
		"span":       s.Name(),
		"traceId":    s.SpanContext().TraceID().String(),
		"spanId":     s.SpanContext().SpanID().String(),
		"durationMs": s.EndTime().Sub(s.StartTime()).Milliseconds(),
	}
	if s.Parent().IsValid() {
		fields["parentSpanId"] = s.Parent().SpanID().String()
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	if s.Status().Code == codes.Error {
		fields["status"] = s.Status().Description
		p.logger.Warn("span ended with error", fields)
		return
	}
	p.logger.Debug("span ended", fields)
}

func (p *logProcessor) Shutdown(context.Context) error   { return nil }
func (p *logProcessor) ForceFlush(context.Context) error { return nil }
