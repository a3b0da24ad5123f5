package crawler

import "time"

// PageSet is an insertion-ordered set of pages keyed by canonical URL.
// Insertion order is the order pages are written in.
type PageSet struct {
	keys []string
	urls map[string]string // canonical -> absolute
}

// NewPageSet creates an empty page set
func NewPageSet() *PageSet {
	return &PageSet{urls: make(map[string]string)}
}

// Add inserts a page. It returns false if the key was already present.
func (s *PageSet) Add(canonical, absolute string) bool {
	if _, ok := s.urls[canonical]; ok {
		return false
	}
	s.keys = append(s.keys, canonical)
	s.urls[canonical] = absolute
	return true
}

// Remove deletes a page, keeping the order of the rest
func (s *PageSet) Remove(canonical string) {
	if _, ok := s.urls[canonical]; !ok {
		return
	}
	delete(s.urls, canonical)
	for i, k := range s.keys {
		if k == canonical {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Contains reports whether canonical is in the set
func (s *PageSet) Contains(canonical string) bool {
	_, ok := s.urls[canonical]
	return ok
}

// URL returns the absolute URL stored for canonical
func (s *PageSet) URL(canonical string) string {
	return s.urls[canonical]
}

// Keys returns the canonical URLs in insertion order
func (s *PageSet) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of pages
func (s *PageSet) Len() int {
	return len(s.keys)
}

// MirrorStats summarises a run
type MirrorStats struct {
	Pages             int
	ResourcesSaved    int // fetched and written
	ResourcesReused   int // already on disk from an earlier run
	PageBytes         int64
	ResourceBytes     int64
	LinksRewritten    int
	LinksUnresolved   int
	DiscoveryFailures int
	StartTime         time.Time
	Duration          time.Duration
	TargetDir         string
}

// Resources returns the number of distinct static files in the mirror
func (s MirrorStats) Resources() int {
	return s.ResourcesSaved + s.ResourcesReused
}

// BytesWritten is the total size of pages and resources written
func (s MirrorStats) BytesWritten() int64 {
	return s.PageBytes + s.ResourceBytes
}

// RunInfo identifies a run in the manifest
type RunInfo struct {
	ID        string
	SeedURL   string
	TargetDir string
	Depth     int
	StartedAt time.Time
}

// PageRecord describes one saved page
type PageRecord struct {
	URL          string
	CanonicalURL string
	LocalPath    string
	Title        string
	Status       string // saved or failed
	Error        string
	SavedAt      time.Time
}

// ResourceRecord describes one distinct static file
type ResourceRecord struct {
	Hash      string
	SourceURL string
	LocalPath string
	Reused    bool
	Bytes     int64
	SavedAt   time.Time
}
