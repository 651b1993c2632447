// Package upstream implements the thin HTTP client (C5) that speaks the
// native wire shape to the single configured upstream provider: the
// x-goog-api-key header and :generateContent / :streamGenerateContent
// endpoint suffixes, plus status-to-error mapping and error-body parsing,
// narrowed from a multi-provider abstraction down to the single upstream
// this gateway fronts.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/basuigw/gemigate/gwerrors"
	"github.com/basuigw/gemigate/gwtypes"
	"github.com/basuigw/gemigate/tlsutil"
)

// Client is a single HTTP client bound to one upstream base URL. Credential
// is supplied per-call so the same client instance serves the whole key
// pool.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New builds a Client. timeout <= 0 falls back to 60s, matching the
// teacher's provider default. The underlying transport is hardened via
// tlsutil (TLS 1.2+, AEAD-only ciphers) since this client carries
// customer credentials on every outbound request.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: tlsutil.SecureHTTPClient(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) buildRequest(ctx context.Context, method, path, apiKey string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInternal, "failed to build upstream request").WithCause(err)
	}
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// GenerateContent performs a unary generateContent call.
func (c *Client) GenerateContent(ctx context.Context, model, apiKey string, req *gwtypes.GenerateContentRequest) (*gwtypes.GenerateContentResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInvalidRequest, "failed to encode request").WithCause(err)
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", model)
	httpReq, err := c.buildRequest(ctx, http.MethodPost, path, apiKey, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var out gwtypes.GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerrors.New(gwerrors.CodeUpstreamError, "failed to decode upstream response").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)
	}
	return &out, nil
}

// StreamChunk is one unit read off an SSE streaming response: a
// decoded GenerateContentResponse fragment, or a terminal error.
type StreamChunk struct {
	Response *gwtypes.GenerateContentResponse
	Err      error
}

// StreamGenerateContent performs a streamGenerateContent call and returns a
// channel of decoded fragments. The channel is closed when the stream ends,
// whether normally or due to an error (the last value sent carries Err).
func (c *Client) StreamGenerateContent(ctx context.Context, model, apiKey string, req *gwtypes.GenerateContentRequest) (<-chan StreamChunk, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInvalidRequest, "failed to encode request").WithCause(err)
	}

	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", model)
	httpReq, err := c.buildRequest(ctx, http.MethodPost, path, apiKey, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	ch := make(chan StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" || data == "[DONE]" {
				continue
			}

			var fragment gwtypes.GenerateContentResponse
			if err := json.Unmarshal([]byte(data), &fragment); err != nil {
				select {
				case ch <- StreamChunk{Err: gwerrors.New(gwerrors.CodeUpstreamError, "malformed stream chunk").
					WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- StreamChunk{Response: &fragment}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Err: gwerrors.New(gwerrors.CodeUpstreamError, "stream read failed").
				WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// CountTokens performs a countTokens call.
func (c *Client) CountTokens(ctx context.Context, model, apiKey string, req *gwtypes.CountTokensRequest) (*gwtypes.CountTokensResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInvalidRequest, "failed to encode request").WithCause(err)
	}
	path := fmt.Sprintf("/v1beta/models/%s:countTokens", model)
	httpReq, err := c.buildRequest(ctx, http.MethodPost, path, apiKey, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	var out gwtypes.CountTokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerrors.New(gwerrors.CodeUpstreamError, "failed to decode upstream response").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)
	}
	return &out, nil
}

// EmbedContent performs a single embedContent call.
func (c *Client) EmbedContent(ctx context.Context, model, apiKey string, req *gwtypes.EmbedContentRequest) (*gwtypes.EmbedContentResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInvalidRequest, "failed to encode request").WithCause(err)
	}
	path := fmt.Sprintf("/v1beta/models/%s:embedContent", model)
	httpReq, err := c.buildRequest(ctx, http.MethodPost, path, apiKey, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	var out gwtypes.EmbedContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerrors.New(gwerrors.CodeUpstreamError, "failed to decode upstream response").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)
	}
	return &out, nil
}

// BatchEmbedContents performs a batchEmbedContents call.
func (c *Client) BatchEmbedContents(ctx context.Context, model, apiKey string, req *gwtypes.BatchEmbedContentsRequest) (*gwtypes.BatchEmbedContentsResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInvalidRequest, "failed to encode request").WithCause(err)
	}
	path := fmt.Sprintf("/v1beta/models/%s:batchEmbedContents", model)
	httpReq, err := c.buildRequest(ctx, http.MethodPost, path, apiKey, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	var out gwtypes.BatchEmbedContentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerrors.New(gwerrors.CodeUpstreamError, "failed to decode upstream response").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)
	}
	return &out, nil
}

// ListModels fetches the upstream's model catalog.
func (c *Client) ListModels(ctx context.Context, apiKey string) (*gwtypes.ListModelsResponse, error) {
	httpReq, err := c.buildRequest(ctx, http.MethodGet, "/v1beta/models", apiKey, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	var out gwtypes.ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerrors.New(gwerrors.CodeUpstreamError, "failed to decode upstream response").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithCause(err)
	}
	return &out, nil
}

func mapTransportError(err error) error {
	return gwerrors.New(gwerrors.CodeUpstreamTimeout, "upstream request failed").
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithCause(err)
}

// readErrorMessage parses the upstream's error envelope, falling back to
// the raw body.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read upstream error response"
	}

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Status != "" {
			return fmt.Sprintf("%s (status: %s)", envelope.Error.Message, envelope.Error.Status)
		}
		return envelope.Error.Message
	}
	return string(data)
}

// mapHTTPError classifies an upstream HTTP failure by status code into this
// gateway's error taxonomy, carrying the quota-exhausted/retryable
// distinction through to KeepReservation.
func mapHTTPError(status int, msg string) error {
	switch status {
	case http.StatusTooManyRequests:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "resource has been exhausted") {
			return gwerrors.New(gwerrors.CodeQuotaExceeded, msg).
				WithHTTPStatus(status).
				WithRetryable(false).
				WithKeepReservation(true)
		}
		return gwerrors.New(gwerrors.CodeRateLimitExceeded, msg).
			WithHTTPStatus(status).
			WithRetryable(true)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			return gwerrors.New(gwerrors.CodeQuotaExceeded, msg).
				WithHTTPStatus(status).
				WithKeepReservation(true)
		}
		return gwerrors.New(gwerrors.CodeInvalidRequest, msg).WithHTTPStatus(status)
	case http.StatusUnauthorized, http.StatusForbidden:
		return gwerrors.New(gwerrors.CodeUpstreamError, msg).WithHTTPStatus(status)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return gwerrors.New(gwerrors.CodeUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true)
	case 529:
		return gwerrors.New(gwerrors.CodeUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		return gwerrors.New(gwerrors.CodeUpstreamError, msg).
			WithHTTPStatus(status).
			WithRetryable(status >= 500)
	}
}
