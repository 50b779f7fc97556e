package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yungbote/aggsync/internal/observability"
	"github.com/yungbote/aggsync/internal/platform/ctxutil"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

func TestAttachTraceContextEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen ctxutil.Request
	r.GET("/x", func(c *gin.Context) {
		seen, _ = ctxutil.RequestFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("X-Trace-Id", "upstream-trace")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-1" {
		t.Fatalf("request id header: want=req-1 got=%q", got)
	}
	if got := rec.Header().Get("X-Trace-Id"); got != "upstream-trace" {
		t.Fatalf("without a span the header trace id is kept, got=%q", got)
	}
	if seen.RequestID != "req-1" || seen.TraceID != "upstream-trace" {
		t.Fatalf("request not attached: %+v", seen)
	}
}

func TestAttachTraceContextPrefersSpanAndTagsIt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := gin.New()
	r.Use(otelgin.Middleware("aggsync-test", otelgin.WithTracerProvider(tp)), AttachTraceContext())
	r.GET("/api/aggregates/:name/verify", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/aggregates/poll.total_score/verify", nil)
	req.Header.Set("X-Request-Id", "req-2")
	req.Header.Set("X-Trace-Id", "ignored")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	ended := spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("spans: want=1 got=%d", len(ended))
	}
	if got := rec.Header().Get("X-Trace-Id"); got != ended[0].SpanContext().TraceID().String() {
		t.Fatalf("trace id header should come from the span, got=%q", got)
	}
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["request.id"] != "req-2" || attrs["aggregate.definition"] != "poll.total_score" {
		t.Fatalf("span attributes: %v", attrs)
	}
}

func TestMetricsMiddlewareRecordsRouteAndDefinition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics()
	r := gin.New()
	r.Use(Metrics(m), RequestLogger(logger.Nop()))
	r.GET("/api/aggregates/:name/verify", func(c *gin.Context) {
		if c.Param("name") == "nope" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/api/aggregates/poll.total_score/verify", "/api/aggregates/nope/verify", "/metrics", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := out.Body.String()
	for _, want := range []string{
		`aggsync_api_requests_total{method="GET",route="/api/aggregates/:name/verify",status="200"} 1`,
		`aggsync_api_requests_total{method="GET",route="unmatched",status="404"} 1`,
		`aggsync_api_aggregate_requests_total{definition="poll.total_score",status="200"} 1`,
		`aggsync_api_aggregate_requests_total{definition="unknown",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in exposition:\n%s", want, body)
		}
	}
	if strings.Contains(body, `route="/metrics"`) {
		t.Fatalf("scrapes must not be counted:\n%s", body)
	}
	if strings.Contains(body, `definition="nope"`) {
		t.Fatalf("unresolved names must not become labels:\n%s", body)
	}
}
