package crawler

import (
	"context"

	"github.com/masahif/offliner/internal/parser"
)

// Crawler defines the mirroring interface
type Crawler interface {
	Run(ctx context.Context) (MirrorStats, error)
	GetStats() MirrorStats
}

// PageFetcher retrieves and parses an HTML page
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*parser.Document, error)
}

// ResourceFetcher retrieves the raw bytes of a static resource
type ResourceFetcher interface {
	FetchResource(ctx context.Context, resourceURL string) ([]byte, error)
}

// Manifest records what a run produced. Implementations must not make the
// run fail; errors are logged by the caller and otherwise ignored.
type Manifest interface {
	BeginRun(ctx context.Context, run *RunInfo) error
	RecordPage(ctx context.Context, page *PageRecord) error
	RecordResource(ctx context.Context, res *ResourceRecord) error
	FinishRun(ctx context.Context, run *RunInfo, stats MirrorStats) error
	Close() error
}

// ProgressReporter is told about every saved page
type ProgressReporter interface {
	Start(total int)
	Advance(pageURL string)
	Finish()
}

type noopManifest struct{}

func (noopManifest) BeginRun(context.Context, *RunInfo) error               { return nil }
func (noopManifest) RecordPage(context.Context, *PageRecord) error          { return nil }
func (noopManifest) RecordResource(context.Context, *ResourceRecord) error  { return nil }
func (noopManifest) FinishRun(context.Context, *RunInfo, MirrorStats) error { return nil }
func (noopManifest) Close() error                                           { return nil }

type noopProgress struct{}

func (noopProgress) Start(int)      {}
func (noopProgress) Advance(string) {}
func (noopProgress) Finish()        {}
