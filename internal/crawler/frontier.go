package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/masahif/offliner/internal/parser"
)

// Frontier discovers the pages of a mirror breadth-first from the seed
type Frontier struct {
	fetcher  PageFetcher
	origin   Origin
	logger   *slog.Logger
	failures []string
}

// NewFrontier creates a frontier that only follows links within origin
func NewFrontier(fetcher PageFetcher, origin Origin, logger *slog.Logger) *Frontier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Frontier{fetcher: fetcher, origin: origin, logger: logger}
}

// Discover returns the seed plus every same-origin page reachable within
// depth link layers. Layer 0 is the seed's own links, so depth 0 yields the
// seed alone and depth 1 needs no fetch beyond the seed. A page that fails
// to fetch is logged and left out of the result.
func (f *Frontier) Discover(ctx context.Context, seedURL *url.URL, seedDoc *parser.Document, depth int) (*PageSet, error) {
	pages := NewPageSet()
	seedAbs := seedURL.String()
	pages.Add(Canonicalize(seedAbs), seedAbs)

	if depth <= 0 {
		return pages, nil
	}

	expanded := map[string]bool{Canonicalize(seedAbs): true}
	failed := make(map[string]bool)

	layer := f.collect(seedDoc, seedURL, pages, failed)
	f.logger.Debug("Discovered layer", "layer", 0, "pages", len(layer))

	for n := 1; n < depth && len(layer) > 0; n++ {
		var next []string
		for _, key := range layer {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if expanded[key] {
				continue
			}
			expanded[key] = true

			pageURL := pages.URL(key)
			doc, err := f.fetcher.FetchPage(ctx, pageURL)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				f.logger.Warn("Skipping page that failed during discovery", "url", pageURL, "error", err)
				failed[key] = true
				f.failures = append(f.failures, pageURL)
				pages.Remove(key)
				continue
			}

			base, err := url.Parse(pageURL)
			if err != nil {
				continue
			}
			next = append(next, f.collect(doc, base, pages, failed)...)
		}
		f.logger.Debug("Discovered layer", "layer", n, "pages", len(next))
		layer = next
	}

	return pages, nil
}

// Failures returns the URLs that could not be fetched during discovery
func (f *Frontier) Failures() []string {
	return append([]string(nil), f.failures...)
}

// collect adds the in-scope anchors of doc to pages and returns the keys
// that were new
func (f *Frontier) collect(doc *parser.Document, base *url.URL, pages *PageSet, failed map[string]bool) []string {
	var added []string
	for _, a := range doc.Elements("a") {
		href, ok := a.Attr("href")
		if !ok || strings.HasPrefix(strings.TrimSpace(href), "#") {
			continue
		}
		link, ok := ResolveLink(href, base, f.origin)
		if !ok || failed[link.Canonical] {
			continue
		}
		if pages.Add(link.Canonical, link.Absolute) {
			added = append(added, link.Canonical)
		}
	}
	return added
}
