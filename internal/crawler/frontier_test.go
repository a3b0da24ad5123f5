package crawler

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masahif/offliner/internal/parser"
)

type fakePageFetcher struct {
	pages map[string]string
	calls map[string]int
}

func newFakePageFetcher(pages map[string]string) *fakePageFetcher {
	return &fakePageFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakePageFetcher) FetchPage(_ context.Context, u string) (*parser.Document, error) {
	f.calls[u]++
	body, ok := f.pages[u]
	if !ok {
		return nil, NewError(KindPageFetch, u, errors.New("unexpected status 404"))
	}
	return parser.ParseString(body)
}

func (f *fakePageFetcher) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

const siteRoot = "https://example.com/"

// a small site with a cycle back to the root and a link out of scope
var testSite = map[string]string{
	siteRoot: `<a href="/a">a</a> <a href="b">b</a> <a href="https://other.example/x">x</a>
		<a href="#top">top</a> <a href="mailto:me@example.com">mail</a> <a href="/a/">a again</a>`,
	"https://example.com/a": `<a href="/c">c</a> <a href="/b">b</a> <a href="/">home</a>`,
	"https://example.com/b": `<a href="/d">d</a>`,
	"https://example.com/c": `<a href="/e">e</a> <a href="/a">a</a>`,
	"https://example.com/d": `<p>leaf</p>`,
	"https://example.com/e": `<a href="/f">f</a>`,
	"https://example.com/f": `<p>leaf</p>`,
}

func discover(t *testing.T, site map[string]string, depth int) (*PageSet, *fakePageFetcher, *Frontier) {
	t.Helper()
	seed, err := url.Parse(siteRoot)
	require.NoError(t, err)

	fetcher := newFakePageFetcher(site)
	seedDoc, err := parser.ParseString(site[siteRoot])
	require.NoError(t, err)

	frontier := NewFrontier(fetcher, NewOrigin(seed), nil)
	pages, err := frontier.Discover(context.Background(), seed, seedDoc, depth)
	require.NoError(t, err)
	return pages, fetcher, frontier
}

func TestDiscoverDepthZero(t *testing.T) {
	pages, fetcher, _ := discover(t, testSite, 0)

	assert.Equal(t, []string{"https://example.com"}, pages.Keys())
	assert.Equal(t, siteRoot, pages.URL("https://example.com"))
	assert.Zero(t, fetcher.total(), "depth 0 fetches nothing beyond the seed")
}

func TestDiscoverDepthOne(t *testing.T) {
	pages, fetcher, _ := discover(t, testSite, 1)

	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com/a",
		"https://example.com/b",
	}, pages.Keys())
	assert.Zero(t, fetcher.total(), "the seed's own links need no extra fetch")
}

func TestDiscoverLayersInOrder(t *testing.T) {
	pages, fetcher, _ := discover(t, testSite, 3)

	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
		"https://example.com/d",
		"https://example.com/e",
	}, pages.Keys())

	for u, n := range fetcher.calls {
		assert.Equal(t, 1, n, "page %s fetched more than once", u)
	}
	_, seedFetched := fetcher.calls[siteRoot]
	assert.False(t, seedFetched, "the seed document is reused")
}

func TestDiscoverDeeperIsSuperset(t *testing.T) {
	var previous []string
	for depth := 0; depth <= 5; depth++ {
		pages, _, _ := discover(t, testSite, depth)
		for _, key := range previous {
			assert.True(t, pages.Contains(key), "depth %d lost %s", depth, key)
		}
		assert.GreaterOrEqual(t, pages.Len(), len(previous))
		previous = pages.Keys()
	}
	assert.Len(t, previous, 7)
}

func TestDiscoverToleratesFailures(t *testing.T) {
	site := map[string]string{
		siteRoot:                   `<a href="/ok">ok</a> <a href="/broken">broken</a>`,
		"https://example.com/ok":   `<a href="/deep">deep</a> <a href="/broken">broken</a>`,
		"https://example.com/deep": `<p>deep</p>`,
	}

	pages, fetcher, frontier := discover(t, site, 3)

	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com/ok",
		"https://example.com/deep",
	}, pages.Keys())
	assert.Equal(t, []string{"https://example.com/broken"}, frontier.Failures())
	assert.Equal(t, 1, fetcher.calls["https://example.com/broken"], "failed pages are not retried")
}

func TestDiscoverCancelled(t *testing.T) {
	seed, _ := url.Parse(siteRoot)
	seedDoc, err := parser.ParseString(testSite[siteRoot])
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frontier := NewFrontier(newFakePageFetcher(testSite), NewOrigin(seed), nil)
	_, err = frontier.Discover(ctx, seed, seedDoc, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPageSet(t *testing.T) {
	s := NewPageSet()
	assert.True(t, s.Add("k1", "u1"))
	assert.True(t, s.Add("k2", "u2"))
	assert.False(t, s.Add("k1", "other"), "duplicate keys are ignored")
	assert.True(t, s.Add("k3", "u3"))

	s.Remove("k2")
	s.Remove("missing")
	assert.Equal(t, []string{"k1", "k3"}, s.Keys())
	assert.Equal(t, "u1", s.URL("k1"))
	assert.False(t, s.Contains("k2"))
	assert.Equal(t, 2, s.Len())

	keys := s.Keys()
	keys[0] = "mutated"
	assert.Equal(t, "k1", s.Keys()[0])
}
