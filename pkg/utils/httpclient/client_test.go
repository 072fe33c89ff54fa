package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestPostJSONPropagatesTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var traceparent, auth, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "embed")
	defer span.End()

	var out struct {
		OK bool `json:"ok"`
	}
	c := NewClient(5*time.Second, 0)
	err := c.PostJSON(ctx, srv.URL, map[string]string{"Authorization": "Bearer k"}, map[string]string{"model": "bge-m3"}, &out)
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.Len(t, traceparent, 55)
	assert.Equal(t, "Bearer k", auth)
	assert.JSONEq(t, `{"model":"bge-m3"}`, body)
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	var out map[string]int
	c := NewClient(5*time.Second, 3).WithBackoff(time.Millisecond)
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, nil, map[string]int{"n": 7}, &out))

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 7, out["n"])
}

func TestDoJSONClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 3).WithBackoff(time.Millisecond)
	err := c.PostJSON(context.Background(), srv.URL, nil, struct{}{}, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "bad model")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDoRequestStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(5*time.Second, 5).WithBackoff(time.Hour)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.PostJSON(ctx, srv.URL, nil, struct{}{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
