package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"story_feedback_collector/logging"
	"story_feedback_collector/review"
)

func TestIPLimiterAllow(t *testing.T) {
	l := newIPLimiter(1, 2)
	now := time.Now()

	assert.True(t, l.allow("10.0.0.1", now))
	assert.True(t, l.allow("10.0.0.1", now))
	assert.False(t, l.allow("10.0.0.1", now))
	assert.True(t, l.allow("10.0.0.2", now))
	assert.True(t, l.allow("10.0.0.1", now.Add(time.Second)))
}

func TestIPLimiterDisabled(t *testing.T) {
	assert.Nil(t, newIPLimiter(0, 5))

	var l *ipLimiter
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	w := httptest.NewRecorder()
	l.middleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestAnalyzeRateLimited(t *testing.T) {
	reviewer, err := review.NewReviewer(review.MockLLM{}, configuredPrompts, review.Options{})
	require.NoError(t, err)
	srv, err := New(Deps{
		Reviewer:  reviewer,
		Appender:  &fakeAppender{},
		RateLimit: RateLimit{RPS: 0.001, Burst: 1},
	})
	require.NoError(t, err)
	handler := srv.Routes()

	body := `{"apiKey":"k","userStory":"s","definitionOfDone":"d"}`
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.7:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.JSONEq(t, `{"success":false,"message":"Too many requests, please try again later."}`, w.Body.String())
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAnalyzeRateLimitIgnoresForwardedHeaders(t *testing.T) {
	reviewer, err := review.NewReviewer(review.MockLLM{}, configuredPrompts, review.Options{})
	require.NoError(t, err)
	srv, err := New(Deps{
		Reviewer:  reviewer,
		Appender:  &fakeAppender{},
		RateLimit: RateLimit{RPS: 0.001, Burst: 1},
	})
	require.NoError(t, err)
	handler := srv.Routes()

	body := `{"apiKey":"k","userStory":"s","definitionOfDone":"d"}`
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.7:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.9.9.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.8.8.%d", i))
		req.Header.Set("True-Client-IP", fmt.Sprintf("10.7.7.%d", i))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := logging.New(zap.New(core))

	var sawTrace string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTrace, _ = logging.TraceID(r.Context())
		_, ok := logging.GetFromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	NewLoggingMiddleware(logger)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, sawTrace)
	assert.Equal(t, sawTrace, w.Header().Get("X-Trace-Id"))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.Equal(t, "/health", fields["path"])
	assert.Equal(t, sawTrace, fields["trace_id"])
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	assert.Equal(t, "203.0.113.9", clientKey(req))
	req.RemoteAddr = "weird"
	assert.Equal(t, "weird", clientKey(req))
}
