package crawler

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// HTTPClient handles HTTP requests with performance metrics
type HTTPClient struct {
	client        *http.Client
	userAgent     string
	customHeaders map[string]string
}

// HTTPMetrics contains performance metrics for an HTTP request
type HTTPMetrics struct {
	TTFB         time.Duration // Time to First Byte
	DownloadTime time.Duration // Total download time
	DNSLookup    time.Duration // DNS lookup time
	TCPConnect   time.Duration // TCP connection time
	TLSHandshake time.Duration // TLS handshake time
}

// HTTPResponse contains the response and metrics
type HTTPResponse struct {
	StatusCode    int
	Headers       http.Header
	Body          []byte
	ContentType   string
	ContentLength int64
	Metrics       HTTPMetrics
	FinalURL      string // After following redirects
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(userAgent string, timeout time.Duration) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false, // Enable automatic decompression
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:        client,
		userAgent:     userAgent,
		customHeaders: make(map[string]string),
	}
}

// SetCustomHeaders sets custom HTTP headers
func (h *HTTPClient) SetCustomHeaders(headers map[string]string) {
	if h.customHeaders == nil {
		h.customHeaders = make(map[string]string)
	}
	for k, v := range headers {
		h.customHeaders[k] = v
	}
}

// Get performs a GET request and reads the whole body, recording DNS,
// connect, TLS, first byte and total download timings along the way.
func (h *HTTPClient) Get(ctx context.Context, url string, accept string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set User-Agent
	req.Header.Set("User-Agent", h.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	// Set custom headers
	for name, value := range h.customHeaders {
		req.Header.Set(name, value)
	}

	// Setup performance tracking
	var metrics HTTPMetrics
	var dnsStart, dnsDone, connectStart, connectDone, tlsStart, tlsDone time.Time
	var firstByteTime time.Time

	trace := &httptrace.ClientTrace{
		DNSStart: func(info httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			dnsDone = time.Now()
			metrics.DNSLookup = dnsDone.Sub(dnsStart)
		},
		ConnectStart: func(network, addr string) {
			connectStart = time.Now()
		},
		ConnectDone: func(network, addr string, err error) {
			connectDone = time.Now()
			metrics.TCPConnect = connectDone.Sub(connectStart)
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			tlsDone = time.Now()
			metrics.TLSHandshake = tlsDone.Sub(tlsStart)
		},
		GotFirstResponseByte: func() {
			firstByteTime = time.Now()
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	// Perform request
	startTime := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Calculate TTFB if we got the first byte time
	if !firstByteTime.IsZero() {
		metrics.TTFB = firstByteTime.Sub(startTime)
	}

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Calculate total download time
	metrics.DownloadTime = time.Since(startTime)

	return &HTTPResponse{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Metrics:       metrics,
		FinalURL:      resp.Request.URL.String(),
	}, nil
}

// OK reports a 2xx status
func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Close releases idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
