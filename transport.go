package finauth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is one outbound call as the core hands it to the transport: the
// body bytes are final and already signed when a signature header is
// present.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Response is what the transport hands back for a completed round trip,
// regardless of status class. Transport-level failures (DNS, TLS, broken
// connection) are returned as errors instead, never as a Response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Header returns the first value of the named response header.
func (r *Response) Header(name string) string {
	return r.Headers.Get(name)
}

// Transport issues calls to the remote API. Implementations must not
// interpret the payload and must keep protocol rejections (a Response with
// an error status) distinct from network failures (an error).
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the default [Transport] on net/http.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport rooted at baseURL. A nil client gets
// a dedicated http.Client with a conservative timeout.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// RoundTrip implements [Transport].
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	target, err := url.JoinPath(t.baseURL, req.Path)
	if err != nil {
		return nil, fmt.Errorf("finauth: bad request path %q: %w", req.Path, err)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpRes, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpRes.Body.Close() }()

	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpRes.StatusCode,
		Headers:    httpRes.Header,
		Body:       data,
	}, nil
}
