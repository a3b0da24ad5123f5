// Package crawler mirrors a website for offline browsing. It discovers the
// pages of the seed's origin breadth-first, downloads every distinct static
// resource once and rewrites pages to reference the local copies.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/masahif/offliner/internal/config"
	"github.com/masahif/offliner/internal/parser"
)

const (
	// UnresolvedHref replaces in-scope links to pages outside the mirror
	UnresolvedHref = "#offliner-unresolved"
	// UnresolvedAttr keeps the original target of an unresolved link
	UnresolvedAttr = "data-offliner-href"

	staticDirName = "static"
	pageExt       = ".html"
)

// Option configures a DefaultCrawler
type Option func(*DefaultCrawler)

// WithManifest records the run in m
func WithManifest(m Manifest) Option {
	return func(c *DefaultCrawler) {
		if m != nil {
			c.manifest = m
		}
	}
}

// WithProgress reports saved pages to p
func WithProgress(p ProgressReporter) Option {
	return func(c *DefaultCrawler) {
		if p != nil {
			c.progress = p
		}
	}
}

// WithLogger replaces the default slog logger
func WithLogger(l *slog.Logger) Option {
	return func(c *DefaultCrawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// DefaultCrawler implements the Crawler interface
type DefaultCrawler struct {
	config    *config.MirrorConfig
	pages     PageFetcher
	resources ResourceFetcher
	rules     []ResourceRule
	manifest  Manifest
	progress  ProgressReporter
	logger    *slog.Logger

	progressLog rate.Sometimes

	stats      MirrorStats
	statsMutex sync.RWMutex
}

// NewCrawler creates a crawler for cfg. Pages are obtained from pages and
// static resources from resources, which may be the same fetcher.
func NewCrawler(cfg *config.MirrorConfig, pages PageFetcher, resources ResourceFetcher, opts ...Option) (*DefaultCrawler, error) {
	if pages == nil || resources == nil {
		return nil, errors.New("page and resource fetchers are required")
	}

	rules, err := ParseResourceRules(cfg.ResourceRules)
	if err != nil {
		return nil, err
	}

	c := &DefaultCrawler{
		config:      cfg,
		pages:       pages,
		resources:   resources,
		rules:       rules,
		manifest:    noopManifest{},
		progress:    noopProgress{},
		logger:      slog.Default(),
		progressLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetStats returns current mirror statistics
func (c *DefaultCrawler) GetStats() MirrorStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()

	stats := c.stats
	if !stats.StartTime.IsZero() && stats.Duration == 0 {
		stats.Duration = time.Since(stats.StartTime)
	}
	return stats
}

func (c *DefaultCrawler) updateStats(fn func(*MirrorStats)) {
	c.statsMutex.Lock()
	fn(&c.stats)
	c.statsMutex.Unlock()
}

// Run mirrors the configured target. Any error it returns is fatal for the
// run; coded failures are *Error values.
func (c *DefaultCrawler) Run(ctx context.Context) (MirrorStats, error) {
	c.updateStats(func(s *MirrorStats) { *s = MirrorStats{StartTime: time.Now()} })

	if info, err := os.Stat(c.config.OutputDir); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return c.GetStats(), NewError(KindInvalidOutputDir, c.config.OutputDir, err)
	}

	seed, err := ParseSeed(c.config.TargetURL)
	if err != nil {
		return c.GetStats(), err
	}
	origin := NewOrigin(seed)

	c.logger.Info("Fetching seed page", "url", seed.String())
	seedDoc, err := c.pages.FetchPage(ctx, seed.String())
	if err != nil {
		return c.GetStats(), coded(err, KindPageFetch, seed.String())
	}

	targetDir := filepath.Join(c.config.OutputDir, origin.DirName())
	if err := c.prepareTargetDir(targetDir); err != nil {
		return c.GetStats(), err
	}
	staticDir := filepath.Join(targetDir, staticDirName)
	c.updateStats(func(s *MirrorStats) { s.TargetDir = targetDir })

	run := &RunInfo{
		ID:        uuid.NewString(),
		SeedURL:   seed.String(),
		TargetDir: targetDir,
		Depth:     c.config.EffectiveDepth(),
		StartedAt: time.Now().UTC(),
	}
	if err := c.manifest.BeginRun(ctx, run); err != nil {
		c.logger.Warn("Failed to record run in manifest", "error", err)
	}

	runErr := c.mirror(ctx, seed, seedDoc, origin, targetDir, staticDir)

	c.updateStats(func(s *MirrorStats) { s.Duration = time.Since(s.StartTime) })
	stats := c.GetStats()
	if err := c.manifest.FinishRun(context.WithoutCancel(ctx), run, stats); err != nil {
		c.logger.Warn("Failed to finish run in manifest", "error", err)
	}

	if runErr != nil {
		return stats, runErr
	}
	c.logger.Info("Mirror completed",
		"pages", stats.Pages,
		"resources", stats.Resources(),
		"bytes", stats.BytesWritten(),
		"target_dir", targetDir,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (c *DefaultCrawler) prepareTargetDir(targetDir string) error {
	if _, err := os.Stat(targetDir); err == nil {
		if !c.config.Resume {
			return NewError(KindTargetDirExists, targetDir, nil)
		}
		c.logger.Info("Resuming into existing target directory", "path", targetDir)
	} else if err := os.Mkdir(targetDir, 0o755); err != nil {
		return NewError(KindInvalidOutputDir, targetDir, err)
	}

	if err := os.MkdirAll(filepath.Join(targetDir, staticDirName), 0o755); err != nil {
		return NewError(KindInvalidOutputDir, targetDir, err)
	}
	return nil
}

func (c *DefaultCrawler) mirror(ctx context.Context, seed *url.URL, seedDoc *parser.Document, origin Origin, targetDir, staticDir string) error {
	frontier := NewFrontier(c.pages, origin, c.logger)
	pageSet, err := frontier.Discover(ctx, seed, seedDoc, c.config.EffectiveDepth())
	if err != nil {
		return err
	}
	failures := len(frontier.Failures())
	c.updateStats(func(s *MirrorStats) { s.DiscoveryFailures = failures })
	c.logger.Info("Found pages to download", "pages", pageSet.Len(), "discovery_failures", failures)

	mapper := NewPathMapper(origin, targetDir)
	index := make(map[string]string, pageSet.Len())
	owners := make(map[string]string, pageSet.Len()) // local path -> first canonical URL
	for _, key := range pageSet.Keys() {
		localPath, err := mapper.Map(key, pageExt)
		if err != nil {
			return NewError(KindPageSave, pageSet.URL(key), err)
		}
		index[key] = localPath

		// e.g. "https://h" and "https://h/index" share index.html; the first
		// page keeps the file and links to either point at it
		if owner, taken := owners[localPath]; taken {
			c.logger.Warn("Skipping page with a duplicate local path",
				"url", pageSet.URL(key), "path", localPath, "kept", owner)
			pageSet.Remove(key)
			continue
		}
		owners[localPath] = key
	}

	downloader := NewResourceDownloader(c.resources, staticDir, c.manifest, c.logger)

	c.progress.Start(pageSet.Len())
	defer c.progress.Finish()

	for i, key := range pageSet.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL := pageSet.URL(key)
		doc := seedDoc
		if i > 0 {
			doc, err = c.pages.FetchPage(ctx, pageURL)
			if err != nil {
				c.recordPage(ctx, pageURL, key, index[key], "", err)
				return coded(err, KindPageFetch, pageURL)
			}
		}

		saveErr := c.savePage(ctx, doc, pageURL, index[key], index, origin, downloader)
		c.updateStats(func(s *MirrorStats) {
			s.ResourcesSaved = downloader.saved
			s.ResourcesReused = downloader.reused
			s.ResourceBytes = downloader.bytes
		})
		c.recordPage(ctx, pageURL, key, index[key], doc.Title(), saveErr)
		if saveErr != nil {
			return saveErr
		}

		c.progress.Advance(pageURL)
		c.progressLog.Do(func() {
			c.logger.Info("Progress", "saved", i+1, "total", pageSet.Len(), "url", pageURL)
		})
	}
	return nil
}

// savePage localises one page and writes it to localPath
func (c *DefaultCrawler) savePage(ctx context.Context, doc *parser.Document, pageURL, localPath string, index map[string]string, origin Origin, downloader *ResourceDownloader) error {
	base, err := url.Parse(pageURL)
	if err != nil {
		return NewError(KindPageFetch, pageURL, err)
	}
	pageDir := filepath.Dir(localPath)

	for _, rule := range c.rules {
		if err := downloader.CollectAndSave(ctx, doc, base, pageDir, rule); err != nil {
			return err
		}
	}

	rewritten, unresolved, err := rewriteAnchors(doc, base, pageDir, origin, index)
	if err != nil {
		return NewError(KindPageSave, pageURL, err)
	}

	body, err := doc.Bytes()
	if err != nil {
		return NewError(KindPageSave, pageURL, err)
	}
	if err := writeFileAtomic(localPath, body); err != nil {
		return NewError(KindPageSave, localPath, err)
	}

	c.updateStats(func(s *MirrorStats) {
		s.Pages++
		s.LinksRewritten += rewritten
		s.LinksUnresolved += unresolved
		s.PageBytes += int64(len(body))
	})
	c.logger.Debug("Saved page", "url", pageURL, "path", localPath, "bytes", len(body),
		"links_rewritten", rewritten, "links_unresolved", unresolved)
	return nil
}

// rewriteAnchors points in-scope anchors at their local copies. Links to
// in-scope pages that are not part of the mirror are marked unresolved and
// keep their target in UnresolvedAttr. Fragment-only and out-of-scope links
// are left alone.
func rewriteAnchors(doc *parser.Document, base *url.URL, pageDir string, origin Origin, index map[string]string) (int, int, error) {
	var rewritten, unresolved int
	for _, a := range doc.Elements("a") {
		href, ok := a.Attr("href")
		if !ok || strings.HasPrefix(strings.TrimSpace(href), "#") {
			continue
		}
		link, ok := ResolveLink(href, base, origin)
		if !ok {
			continue
		}

		localPath, found := index[link.Canonical]
		if !found {
			a.SetAttr("href", UnresolvedHref)
			a.SetAttr(UnresolvedAttr, link.Absolute)
			unresolved++
			continue
		}

		ref, err := localRef(pageDir, localPath)
		if err != nil {
			return rewritten, unresolved, err
		}
		if link.Fragment != "" {
			ref += "#" + (&url.URL{Fragment: link.Fragment}).EscapedFragment()
		}
		a.SetAttr("href", ref)
		rewritten++
	}
	return rewritten, unresolved, nil
}

func (c *DefaultCrawler) recordPage(ctx context.Context, pageURL, canonical, localPath, title string, pageErr error) {
	record := &PageRecord{
		URL:          pageURL,
		CanonicalURL: canonical,
		LocalPath:    localPath,
		Title:        title,
		Status:       "saved",
		SavedAt:      time.Now().UTC(),
	}
	if pageErr != nil {
		record.Status = "failed"
		record.Error = pageErr.Error()
	}
	if err := c.manifest.RecordPage(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warn("Failed to record page in manifest", "url", pageURL, "error", err)
	}
}

// coded returns err unchanged if it already carries a kind, otherwise wraps
// it with kind
func coded(err error, kind Kind, u string) error {
	var ce *Error
	if errors.As(err, &ce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewError(kind, u, err)
}
