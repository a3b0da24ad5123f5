// Package headless renders pages in headless Chrome so that content built
// by JavaScript ends up in the mirror.
package headless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/masahif/offliner/internal/crawler"
	"github.com/masahif/offliner/internal/parser"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	settleDelay              = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	Headers           map[string]string
	ExecPath          string // Chrome binary, found on PATH when empty
}

// Fetcher implements crawler.PageFetcher with a single headless browser
// shared by every navigation of a run.
type Fetcher struct {
	cfg         Config
	logger      *slog.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
	browser     context.Context
	browserStop context.CancelFunc

	startOnce sync.Once
	startErr  error
}

var _ crawler.PageFetcher = (*Fetcher)(nil)

// NewChromedp creates a headless fetcher. Chrome is started lazily on the
// first navigation.
func NewChromedp(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("navigation timeout must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		browser:     browserCtx,
		browserStop: browserStop,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.browserStop()
	f.allocCancel()
}

// FetchPage navigates to pageURL in a fresh tab and parses the rendered
// DOM. Navigation failures and document statuses of 400 or above are
// PageRender errors.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (*parser.Document, error) {
	if err := f.start(); err != nil {
		return nil, crawler.NewError(crawler.KindPageRender, pageURL, err)
	}

	tabCtx, tabCancel := chromedp.NewContext(f.browser)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout())
	defer cancel()

	// the caller's cancellation also ends the navigation
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := &responseMeta{}
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.render(tabCtx, pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, crawler.NewError(crawler.KindPageRender, pageURL, err)
	}

	status, responseURL := meta.snapshot(finalURL)
	f.logger.Debug("Rendered", "url", pageURL, "final_url", responseURL, "status", status, "duration", time.Since(start))
	if err := statusError(status); err != nil {
		return nil, crawler.NewError(crawler.KindPageRender, pageURL, err)
	}

	doc, err := parser.ParseString(html)
	if err != nil {
		return nil, crawler.NewError(crawler.KindPageRender, pageURL, err)
	}
	return doc, nil
}

// start launches the browser so that every tab shares it
func (f *Fetcher) start() error {
	f.startOnce.Do(func() {
		if err := chromedp.Run(f.browser); err != nil {
			f.startErr = fmt.Errorf("start browser: %w", err)
		}
	})
	return f.startErr
}

func (f *Fetcher) render(ctx context.Context, pageURL string) (string, string, error) {
	var html, finalURL string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(f.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// responseMeta remembers the last main-document response of a tab
type responseMeta struct {
	mu     sync.Mutex
	status int
	url    string
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

// snapshot returns the captured status and URL. A page that produced no
// document response (e.g. about:blank) counts as 200 at finalURL.
func (m *responseMeta) snapshot(finalURL string) (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, u := m.status, m.url
	if status == 0 {
		status = http.StatusOK
	}
	if u == "" {
		u = finalURL
	}
	return status, u
}

var errBadStatus = errors.New("bad document status")

func statusError(status int) error {
	if status >= http.StatusBadRequest {
		return fmt.Errorf("%w %d %s", errBadStatus, status, strings.ToLower(http.StatusText(status)))
	}
	return nil
}

func toNetworkHeaders(h map[string]string) network.Headers {
	headers := network.Headers{}
	for key, value := range h {
		headers[key] = value
	}
	return headers
}
