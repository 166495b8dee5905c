package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/slotmeter/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "slotmeter/http"

// GinMiddleware opens a server span per request. Spans are named after the
// matched route and carry the resource or session the request targets.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestIDBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(append(
			[]attribute.KeyValue{
				attribute.String("http.method", method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			},
			targetAttributes(c)...,
		)...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			span.RecordError(SafeError(lastErr.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func withRequestIDBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func targetAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	resourceID := c.Param("resource_id")
	if resourceID == "" && strings.HasPrefix(c.FullPath(), "/api/resources/") {
		resourceID = c.Param("id")
	}
	if resourceID == "" {
		resourceID = c.GetString("resource_id")
	}
	if resourceID != "" {
		attrs = append(attrs, attribute.String("slotmeter.resource_id", resourceID))
	}

	sessionID := c.Param("session_id")
	if sessionID == "" && strings.HasPrefix(c.FullPath(), "/api/usage-sessions/id/") {
		sessionID = c.Param("id")
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("slotmeter.session_id", sessionID))
	}
	return attrs
}
