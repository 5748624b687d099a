package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/kailas-cloud/sitesearch/internal/logger"
)

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/opensearch", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "internal_error" {
		t.Errorf("body = %v", body)
	}
}

func TestWideEventMiddleware(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	core, logs := observer.New(zap.InfoLevel)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logpkg.FromContext(r.Context()).Info("inner")
		w.WriteHeader(http.StatusTeapot)
	})
	h := chiMiddleware.RequestID(wideEventMiddleware(zap.New(core))(inner))

	req := httptest.NewRequest(http.MethodGet, "/opensearch?q=war", http.NoBody)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(context.Background()))

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if in := logs.FilterMessage("inner").All(); len(in) != 1 || in[0].ContextMap()["request_id"] == "" {
		t.Errorf("request logger not in context: %v", in)
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d http_request lines", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["query"] != "war" {
		t.Errorf("fields = %v", fields)
	}
	if fields["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", fields["trace_id"])
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "GET /opensearch" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].Parent().SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent = %s", spans[0].Parent().SpanID())
	}
}
