package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/basuigw/gemigate/dialect"
	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/keypool"
	"github.com/basuigw/gemigate/payload"
	"github.com/basuigw/gemigate/ratelimit"
	"github.com/basuigw/gemigate/retrypolicy"
	"github.com/basuigw/gemigate/streamopt"
	"github.com/basuigw/gemigate/transform"
	"github.com/basuigw/gemigate/upstream"
)

// fakeSink records every call in memory; safe for concurrent use since the
// orchestrator may invoke it from a streaming goroutine.
type fakeSink struct {
	mu       sync.Mutex
	requests []gwtypes.RequestLog
	errors   []gwtypes.ErrorLog
}

func (s *fakeSink) RecordRequest(_ context.Context, log gwtypes.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, log)
	return nil
}

func (s *fakeSink) RecordError(_ context.Context, log gwtypes.ErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, log)
	return nil
}

func (s *fakeSink) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

func newTestOrchestrator(t *testing.T, handler http.HandlerFunc) (*Orchestrator, *fakeSink, func()) {
	t.Helper()
	server := httptest.NewServer(handler)

	sink := &fakeSink{}
	o := &Orchestrator{
		Pool:          keypool.New([]string{"key-a", "key-b"}, 3, zap.NewNop()),
		Global:        ratelimit.NewGlobalLimiter(nil),
		PerKey:        ratelimit.NewPerKeyLimiter(nil),
		Upstream:      upstream.New(server.URL, 5*time.Second),
		Retry:         retrypolicy.New(1, nil, zap.NewNop()),
		Sink:          sink,
		PayloadConfig: payload.Config{},
		Logger:        zap.NewNop(),
	}
	return o, sink, server.Close
}

func nativeDialect(model string, stream bool, text string) dialect.Dialect {
	req := &gwtypes.GenerateContentRequest{
		Contents: []gwtypes.NativeContent{
			{Role: gwtypes.RoleUser, Parts: []gwtypes.NativePart{{Text: text}}},
		},
	}
	return dialect.NewNative(model, stream, req, transform.Options{}, streamopt.Config{})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestUnary_SuccessReturnsRenderedBody(t *testing.T) {
	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, gwtypes.GenerateContentResponse{
			Candidates: []gwtypes.Candidate{{
				Content:      gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: "hello there"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &gwtypes.UsageMetadata{TotalTokenCount: 12},
		})
	})
	defer closeServer()

	result, err := o.Unary(context.Background(), nativeDialect("gemini-2.0-flash", false, "hi"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Credential)

	body, ok := result.Body.(*gwtypes.GenerateContentResponse)
	require.True(t, ok)
	assert.Equal(t, "hello there", body.Candidates[0].Content.Parts[0].Text)

	assert.Equal(t, 1, sink.requestCount())
	assert.Equal(t, 0, sink.errorCount())
}

func TestUnary_ValidationErrorShortCircuitsBeforeCredentialAcquisition(t *testing.T) {
	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for an invalid request")
	})
	defer closeServer()

	d := dialect.NewNative("", false, nil, transform.Options{}, streamopt.Config{})
	_, err := o.Unary(context.Background(), d)
	require.Error(t, err)

	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeValidation, gwErr.Code)
	assert.Equal(t, 422, gwErr.HTTPStatus)
	assert.NotEmpty(t, gwErr.Details)

	assert.Equal(t, 1, sink.requestCount())
	assert.Equal(t, 1, sink.errorCount())
}

func TestUnary_AllKeysRateLimitedWhenPerKeyExhausted(t *testing.T) {
	o, _, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called once every credential is rate-limited")
	})
	defer closeServer()

	o.PerKey = ratelimit.NewPerKeyLimiter(map[string]ratelimit.KeyLimits{
		"gemini-2.0-flash": {RPM: 1},
	})
	require.NoError(t, o.PerKey.CheckAndReserve("gemini-2.0-flash", "key-a", 1))
	require.NoError(t, o.PerKey.CheckAndReserve("gemini-2.0-flash", "key-b", 1))

	_, err := o.Unary(context.Background(), nativeDialect("gemini-2.0-flash", false, "hi"))
	require.Error(t, err)
	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeAllKeysRateLimited, gwErr.Code)
}

func TestUnary_RequestTooLargeReleasesPerKeyReservation(t *testing.T) {
	o, _, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for an oversized request")
	})
	defer closeServer()

	o.Global = ratelimit.NewGlobalLimiter(map[string]ratelimit.ModelLimit{
		"gemini-2.0-flash": {Limit: 1, Window: time.Minute},
	})
	o.PerKey = ratelimit.NewPerKeyLimiter(map[string]ratelimit.KeyLimits{
		"gemini-2.0-flash": {RPM: 1},
	})

	longText := ""
	for i := 0; i < 100; i++ {
		longText += "filler "
	}

	_, err := o.Unary(context.Background(), nativeDialect("gemini-2.0-flash", false, longText))
	require.Error(t, err)
	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeRequestTooLarge, gwErr.Code)

	// The per-key reservation made before the global check failed must be
	// released; a follow-up small request against the same key budget
	// should still be admitted.
	require.NoError(t, o.PerKey.CheckAndReserve("gemini-2.0-flash", "key-a", 1))
}

func TestUnary_RetryableUpstreamFailureRotatesCredential(t *testing.T) {
	var mu sync.Mutex
	var keysSeen []string

	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keysSeen = append(keysSeen, r.Header.Get("x-goog-api-key"))
		attempt := len(keysSeen)
		mu.Unlock()

		if attempt == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		writeJSON(w, http.StatusOK, gwtypes.GenerateContentResponse{
			Candidates: []gwtypes.Candidate{{
				Content:      gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: "ok"}}},
				FinishReason: "STOP",
			}},
		})
	})
	defer closeServer()
	o.Retry = retrypolicy.New(2, nil, zap.NewNop())

	result, err := o.Unary(context.Background(), nativeDialect("gemini-2.0-flash", false, "hi"))
	require.NoError(t, err)
	require.NotNil(t, result)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keysSeen, 2)
	assert.NotEqual(t, keysSeen[0], keysSeen[1])
	assert.Equal(t, 1, sink.requestCount())
}

func TestStream_SuccessEmitsChunksThenTerminator(t *testing.T) {
	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		chunk1, _ := json.Marshal(gwtypes.GenerateContentResponse{
			Candidates: []gwtypes.Candidate{{Content: gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: "hel"}}}}},
		})
		chunk2, _ := json.Marshal(gwtypes.GenerateContentResponse{
			Candidates: []gwtypes.Candidate{{Content: gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: "lo"}}}, FinishReason: "STOP"}},
			UsageMetadata: &gwtypes.UsageMetadata{TotalTokenCount: 5},
		})
		_, _ = w.Write([]byte("data: " + string(chunk1) + "\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: " + string(chunk2) + "\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	})
	defer closeServer()

	frames, err := o.Stream(context.Background(), nativeDialect("gemini-2.0-flash", true, "hi"))
	require.NoError(t, err)

	var collected []Frame
	for f := range frames {
		collected = append(collected, f)
	}

	require.Len(t, collected, 3)
	for _, f := range collected {
		require.NoError(t, f.Err)
	}
	assert.Equal(t, "data: [DONE]\n\n", collected[len(collected)-1].Data)
	assert.Equal(t, 1, sink.requestCount())
	assert.Equal(t, 0, sink.errorCount())
}

func TestStream_ValidationErrorEmitsNoFrameBeforeReturning(t *testing.T) {
	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for an invalid streaming request")
	})
	defer closeServer()

	d := dialect.NewNative("", true, nil, transform.Options{}, streamopt.Config{})
	_, err := o.Stream(context.Background(), d)
	require.Error(t, err)
	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeValidation, gwErr.Code)
	assert.Equal(t, 1, sink.errorCount())
}

// A connection that ends after emitting at least one chunk, but with no
// malformed-chunk or transport error, is a normal end-of-stream: the
// scanner sees a clean EOF, not an error, so the stream settles as a
// success with a single upstream call.
func TestStream_CleanEOFAfterPartialEmissionSettlesAsSuccess(t *testing.T) {
	var calls int
	var mu sync.Mutex

	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		chunk, _ := json.Marshal(gwtypes.GenerateContentResponse{
			Candidates: []gwtypes.Candidate{{Content: gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: "partial"}}}}},
		})
		_, _ = w.Write([]byte("data: " + string(chunk) + "\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	})
	defer closeServer()
	o.Retry = retrypolicy.New(3, nil, zap.NewNop())

	frames, err := o.Stream(context.Background(), nativeDialect("gemini-2.0-flash", true, "hi"))
	require.NoError(t, err)

	var collected []Frame
	for f := range frames {
		collected = append(collected, f)
	}
	require.Len(t, collected, 2)
	assert.Equal(t, "data: [DONE]\n\n", collected[1].Data)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, sink.requestCount())
}

// A malformed chunk is a genuine mid-stream failure; once any chunk has
// already reached the client, the orchestrator does not retry the whole
// stream over again with a rotated credential (see DESIGN.md).
func TestStream_MalformedChunkAfterEmissionIsNotRetried(t *testing.T) {
	var calls int
	var mu sync.Mutex

	o, sink, closeServer := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		chunk, _ := json.Marshal(gwtypes.GenerateContentResponse{
			Candidates: []gwtypes.Candidate{{Content: gwtypes.NativeContent{Parts: []gwtypes.NativePart{{Text: "partial"}}}}},
		})
		_, _ = w.Write([]byte("data: " + string(chunk) + "\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: {not-json}\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	})
	defer closeServer()
	o.Retry = retrypolicy.New(3, nil, zap.NewNop())

	frames, err := o.Stream(context.Background(), nativeDialect("gemini-2.0-flash", true, "hi"))
	require.NoError(t, err)

	var collected []Frame
	for f := range frames {
		collected = append(collected, f)
	}
	require.NotEmpty(t, collected)
	last := collected[len(collected)-1]
	require.Error(t, last.Err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "a mid-stream failure after any chunk was emitted must not be retried")
	assert.Equal(t, 1, sink.errorCount())
}
