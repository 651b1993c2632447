package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
)

func TestGenerateContent_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hi"}]}}],"usageMetadata":{"totalTokenCount":5}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	resp, err := c.GenerateContent(context.Background(), "gemini-2.0-flash", "secret-key", &gwtypes.GenerateContentRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "hi", resp.Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, 5, resp.UsageMetadata.TotalTokenCount)
}

func TestGenerateContent_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"rate limit hit","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.GenerateContent(context.Background(), "gemini-2.0-flash", "key", &gwtypes.GenerateContentRequest{})
	require.Error(t, err)

	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeRateLimitExceeded, gwErr.Code)
	assert.True(t, gwErr.Retryable)
}

func TestGenerateContent_QuotaExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exhausted for this project","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.GenerateContent(context.Background(), "gemini-2.0-flash", "key", &gwtypes.GenerateContentRequest{})
	require.Error(t, err)

	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeQuotaExceeded, gwErr.Code)
	assert.False(t, gwErr.Retryable)
	assert.True(t, gwErr.KeepReservation)
}

func TestGenerateContent_ServerError_Retryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream exploded`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.GenerateContent(context.Background(), "gemini-2.0-flash", "key", &gwtypes.GenerateContentRequest{})
	require.Error(t, err)

	var gwErr *gwerrors.Error
	require.True(t, gwerrors.As(err, &gwErr))
	assert.Equal(t, gwerrors.CodeUpstreamError, gwErr.Code)
	assert.True(t, gwErr.Retryable)
	assert.Contains(t, gwErr.Message, "upstream exploded")
}

func TestStreamGenerateContent_YieldsFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, chunk := range []string{
			`{"candidates":[{"content":{"parts":[{"text":"he"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"llo"}]}}]}`,
		} {
			w.Write([]byte("data: " + chunk + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	ch, err := c.StreamGenerateContent(context.Background(), "gemini-2.0-flash", "key", &gwtypes.GenerateContentRequest{})
	require.NoError(t, err)

	var texts []string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		texts = append(texts, chunk.Response.Candidates[0].Content.Parts[0].Text)
	}
	assert.Equal(t, []string{"he", "llo"}, texts)
}

func TestReadErrorMessage_FallsBackToRawBody(t *testing.T) {
	got := readErrorMessage(strings.NewReader("not json at all"))
	assert.Equal(t, "not json at all", got)
}
