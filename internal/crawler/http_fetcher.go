package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/masahif/offliner/internal/parser"
)

const (
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptAny  = "*/*"
)

// HTTPFetcher fetches pages and resources over plain HTTP
type HTTPFetcher struct {
	client *HTTPClient
	logger *slog.Logger
}

// NewHTTPFetcher wraps client
func NewHTTPFetcher(client *HTTPClient, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{client: client, logger: logger}
}

// FetchPage fetches pageURL and parses the body as HTML whatever its
// content type. Transport failures and non-2xx statuses are PageFetch
// errors.
func (f *HTTPFetcher) FetchPage(ctx context.Context, pageURL string) (*parser.Document, error) {
	resp, err := f.client.Get(ctx, pageURL, acceptHTML)
	if err != nil {
		return nil, NewError(KindPageFetch, pageURL, err)
	}
	f.logResponse(pageURL, resp)
	if !resp.OK() {
		return nil, NewError(KindPageFetch, pageURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, NewError(KindPageFetch, pageURL, err)
	}
	return doc, nil
}

// FetchResource returns the body of resourceURL
func (f *HTTPFetcher) FetchResource(ctx context.Context, resourceURL string) ([]byte, error) {
	resp, err := f.client.Get(ctx, resourceURL, acceptAny)
	if err != nil {
		return nil, err
	}
	f.logResponse(resourceURL, resp)
	if !resp.OK() {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Close releases idle connections
func (f *HTTPFetcher) Close() {
	f.client.Close()
}

func (f *HTTPFetcher) logResponse(u string, resp *HTTPResponse) {
	f.logger.Debug("Fetched",
		"url", u,
		"status", resp.StatusCode,
		"content_type", resp.ContentType,
		"bytes", len(resp.Body),
		"ttfb", resp.Metrics.TTFB,
		"download_time", resp.Metrics.DownloadTime,
	)
}
