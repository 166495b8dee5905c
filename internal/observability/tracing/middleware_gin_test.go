package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareNamesSpanAfterRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/billing/session/:session_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/resources/:id", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/billing/session/9", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/resources/4", nil))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	if got := spans[0].Name(); got != "HTTP GET /api/billing/session/:session_id" {
		t.Fatalf("unexpected span name %q", got)
	}
	if !hasAttribute(spans[0].Attributes(), attribute.String("slotmeter.session_id", "9")) {
		t.Fatalf("expected session id attribute, got %v", spans[0].Attributes())
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatalf("expected non-error status for 200")
	}

	if !hasAttribute(spans[1].Attributes(), attribute.String("slotmeter.resource_id", "4")) {
		t.Fatalf("expected resource id attribute, got %v", spans[1].Attributes())
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("expected error status for 500")
	}
}

func hasAttribute(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}
