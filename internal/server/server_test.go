package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/answer"
	"github.com/xkilldash9x/answerbook/internal/browser"
	"github.com/xkilldash9x/answerbook/internal/config"
)

type fakeAnswerer struct {
	mu      sync.Mutex
	mode    answer.Mode
	payload schemas.Payload
	err     error
	seen    []answer.Mode
}

func (f *fakeAnswerer) Answer(_ context.Context, mode answer.Mode) (schemas.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, mode)
	if !mode.Valid() {
		return schemas.Payload{Text: answer.InvalidMode}, nil
	}
	return f.payload, f.err
}

func (f *fakeAnswerer) DefaultMode() answer.Mode { return f.mode }

func noLimit() config.ServerConfig {
	return config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleAnswer(t *testing.T) {
	text := &schemas.TextResult{EnglishText: "hello", ChineseText: "你好"}

	t.Run("image payload keeps its content type", func(t *testing.T) {
		f := &fakeAnswerer{mode: answer.ModeImage, payload: schemas.Payload{Image: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}}
		rec := get(t, New(noLimit(), f, zaptest.NewLogger(t)).Router(), "/answer")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "2", rec.Header().Get("Content-Length"))
		assert.Equal(t, []byte{0xff, 0xd8}, rec.Body.Bytes())
		assert.Equal(t, []answer.Mode{answer.ModeImage}, f.seen)
	})

	t.Run("mode query accepts aliases", func(t *testing.T) {
		f := &fakeAnswerer{mode: answer.ModeImage, payload: schemas.Payload{Text: "HELLO\n你 好 ", Answer: text}}
		rec := get(t, New(noLimit(), f, nil).Router(), "/answer?mode="+url.QueryEscape("中英文(大写)文本模式(带空格)"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "HELLO\n你 好 ", rec.Body.String())
		assert.Equal(t, []answer.Mode{answer.ModeBilingualUpperSpaced}, f.seen)
	})

	t.Run("unknown mode answers with the sentinel", func(t *testing.T) {
		f := &fakeAnswerer{mode: answer.ModeImage}
		rec := get(t, New(noLimit(), f, nil).Router(), "/answer?mode=sepia")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, answer.InvalidMode, rec.Body.String())
	})

	t.Run("json format exposes the classified text", func(t *testing.T) {
		f := &fakeAnswerer{mode: answer.ModeEnglish, payload: schemas.Payload{Text: "hello", Answer: text}}
		rec := get(t, New(noLimit(), f, nil).Router(), "/answer?format=json")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t,
			`{"mode":"english","text":"hello","answer":{"chineseText":"你好","englishText":"hello"}}`,
			rec.Body.String())
	})

	t.Run("failures map to explicit status codes", func(t *testing.T) {
		tests := []struct {
			err  error
			want int
		}{
			{answer.ErrElementNotFound, http.StatusBadGateway},
			{&answer.NavigationError{URL: "u", Attempts: 3, Err: errors.New("reset")}, http.StatusBadGateway},
			{fmt.Errorf("failed to open page: %w", browser.ErrNotStarted), http.StatusServiceUnavailable},
			{fmt.Errorf("%w: slow", answer.ErrResultTimeout), http.StatusGatewayTimeout},
		}
		for _, tt := range tests {
			core, logs := observer.New(zap.WarnLevel)
			f := &fakeAnswerer{mode: answer.ModeImage, err: tt.err}
			rec := get(t, New(noLimit(), f, zap.New(core)).Router(), "/answer")

			assert.Equal(t, tt.want, rec.Code, tt.err.Error())
			assert.NotContains(t, rec.Body.String(), tt.err.Error(), "details stay in operator logs")
			assert.Equal(t, 1, logs.FilterMessage("Answer request failed").Len())
		}
	})
}

func TestRateLimit(t *testing.T) {
	cfg := noLimit()
	cfg.RateLimit = 0.001
	cfg.Burst = 2
	f := &fakeAnswerer{mode: answer.ModeEnglish, payload: schemas.Payload{Text: "hi"}}
	h := New(cfg, f, nil).Router()

	assert.Equal(t, http.StatusOK, get(t, h, "/answer").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/answer").Code)
	rec := get(t, h, "/answer")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "health checks are not rate limited")
	assert.Len(t, f.seen, 2)
}

func TestHealthAndMetrics(t *testing.T) {
	ready := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("answerbook_pages_open 0\n"))
	})
	h := New(noLimit(), &fakeAnswerer{}, nil,
		WithReadiness(func() bool { return ready }),
		WithMetricsHandler(metrics),
	).Router()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
	ready = true
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Contains(t, get(t, h, "/metrics").Body.String(), "answerbook_pages_open")

	noMetrics := New(noLimit(), &fakeAnswerer{}, nil).Router()
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics, "/metrics").Code)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := &fakeAnswerer{mode: answer.ModeEnglish, payload: schemas.Payload{Text: "hi"}}
	get(t, New(noLimit(), f, zap.New(core)).Router(), "/answer")

	entries := logs.FilterMessage("Request served").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/answer", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeAnswerer{mode: answer.ModeEnglish, payload: schemas.Payload{Text: "hi"}}
	srv := New(noLimit(), f, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()
	resp, err := client.Get("http://" + ln.Addr().String() + "/answer")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := noLimit()
	cfg.Addr = ln.Addr().String()
	err = New(cfg, &fakeAnswerer{}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}
