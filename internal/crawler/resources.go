package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/masahif/offliner/internal/parser"
)

const maxExtLen = 10

// ResourceRule names an element and the attribute that references a
// static resource, e.g. img/src
type ResourceRule struct {
	Tag  string
	Attr string
}

func (r ResourceRule) String() string {
	return r.Tag + "/" + r.Attr
}

// DefaultResourceRules are used when no rules are configured
var DefaultResourceRules = []ResourceRule{
	{Tag: "img", Attr: "src"},
	{Tag: "link", Attr: "href"},
	{Tag: "script", Attr: "src"},
}

// ParseResourceRules parses "tag/attr" strings
func ParseResourceRules(rules []string) ([]ResourceRule, error) {
	if len(rules) == 0 {
		return append([]ResourceRule(nil), DefaultResourceRules...), nil
	}
	parsed := make([]ResourceRule, 0, len(rules))
	for _, rule := range rules {
		tag, attr, ok := strings.Cut(strings.TrimSpace(rule), "/")
		tag, attr = strings.ToLower(strings.TrimSpace(tag)), strings.ToLower(strings.TrimSpace(attr))
		if !ok || tag == "" || attr == "" {
			return nil, fmt.Errorf("invalid resource rule %q, expected tag/attr", rule)
		}
		parsed = append(parsed, ResourceRule{Tag: tag, Attr: attr})
	}
	return parsed, nil
}

// ResourceDownloader saves each distinct static resource of a run once.
// The hash table it owns lives for a single run.
type ResourceDownloader struct {
	fetcher   ResourceFetcher
	staticDir string
	manifest  Manifest
	logger    *slog.Logger

	table  map[string]string // content hash -> source URL
	files  map[string]string // content hash -> local path
	saved  int
	reused int
	bytes  int64
}

// NewResourceDownloader creates a downloader writing into staticDir
func NewResourceDownloader(fetcher ResourceFetcher, staticDir string, manifest Manifest, logger *slog.Logger) *ResourceDownloader {
	if manifest == nil {
		manifest = noopManifest{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceDownloader{
		fetcher:   fetcher,
		staticDir: staticDir,
		manifest:  manifest,
		logger:    logger,
		table:     make(map[string]string),
		files:     make(map[string]string),
	}
}

// CollectAndSave rewrites every rule.Tag/rule.Attr reference in doc to a
// file under the static directory, downloading resources not seen before
// in this run. pageURL resolves relative references and pageDir is the
// directory the page will be written to.
func (d *ResourceDownloader) CollectAndSave(ctx context.Context, doc *parser.Document, pageURL *url.URL, pageDir string, rule ResourceRule) error {
	for _, el := range doc.Elements(rule.Tag) {
		raw, ok := el.Attr(rule.Attr)
		if !ok || skipReference(raw) {
			continue
		}

		abs, err := ResolveResource(raw, pageURL)
		if err != nil {
			d.logger.Debug("Skipping resource", "page", pageURL.String(), "ref", raw, "error", err)
			continue
		}

		// the first reference to a hash fixes its file name
		hash, _ := HashURL(abs.String())
		localPath, seen := d.files[hash]
		if !seen {
			localPath = filepath.Join(d.staticDir, hash+extensionOf(raw))
			if err := d.save(ctx, hash, abs.String(), localPath); err != nil {
				return err
			}
		}

		ref, err := localRef(pageDir, localPath)
		if err != nil {
			return NewError(KindResourceSave, abs.String(), err)
		}
		el.SetAttr(rule.Attr, ref)
	}
	return nil
}

func (d *ResourceDownloader) save(ctx context.Context, hash, sourceURL, localPath string) error {
	record := &ResourceRecord{Hash: hash, SourceURL: sourceURL, LocalPath: localPath}

	if info, err := os.Stat(localPath); err == nil && info.Mode().IsRegular() {
		d.logger.Debug("Reusing resource", "url", sourceURL, "path", localPath)
		d.reused++
		record.Reused = true
		record.Bytes = info.Size()
	} else {
		body, err := d.fetcher.FetchResource(ctx, sourceURL)
		if err != nil {
			return NewError(KindResourceSave, sourceURL, err)
		}
		if err := writeFileAtomic(localPath, body); err != nil {
			return NewError(KindResourceSave, sourceURL, err)
		}
		d.logger.Debug("Saved resource", "url", sourceURL, "path", localPath, "bytes", len(body))
		d.saved++
		d.bytes += int64(len(body))
		record.Bytes = int64(len(body))
	}

	d.table[hash] = sourceURL
	d.files[hash] = localPath

	record.SavedAt = time.Now().UTC()
	if err := d.manifest.RecordResource(ctx, record); err != nil {
		d.logger.Warn("Failed to record resource in manifest", "url", sourceURL, "error", err)
	}
	return nil
}

// Table returns a copy of the hash to source URL table
func (d *ResourceDownloader) Table() map[string]string {
	table := make(map[string]string, len(d.table))
	for k, v := range d.table {
		table[k] = v
	}
	return table
}

// Len returns the number of distinct resources handled so far
func (d *ResourceDownloader) Len() int {
	return len(d.table)
}

func skipReference(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "" ||
		strings.HasPrefix(raw, "#") ||
		strings.HasPrefix(strings.ToLower(raw), "data:")
}

// extensionOf returns the extension of the reference's last path segment,
// including the dot, or "" when it is missing, too long or not alphanumeric
func extensionOf(raw string) string {
	p := raw
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
		p = u.Path
	}
	ext := path.Ext(path.Base(p))
	if len(ext) < 2 || len(ext)-1 > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// writeFileAtomic writes data next to path and renames it into place so
// an interrupted run never leaves a truncated file behind
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}
	return nil
}
