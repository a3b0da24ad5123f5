package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errNotHTTP = errors.New("URL must be absolute http or https with a host")

// Origin is the scheme and network location of the seed. Only URLs that
// share it are part of the mirror.
type Origin struct {
	Scheme string
	Host   string
}

// Link is an in-scope anchor target
type Link struct {
	Absolute  string // fragment removed
	Canonical string
	Fragment  string
}

// ParseSeed validates the seed URL
func ParseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, NewError(KindInvalidURL, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, NewError(KindInvalidURL, raw, errNotHTTP)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// NewOrigin captures the origin of u
func NewOrigin(u *url.URL) Origin {
	return Origin{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}
}

// Prefix returns "scheme://host". Every in-scope canonical URL starts
// with it.
func (o Origin) Prefix() string {
	return o.Scheme + "://" + o.Host
}

// DirName is the host directory created under the output directory
func (o Origin) DirName() string {
	return strings.ReplaceAll(o.Host, ":", "_")
}

// Contains reports whether u belongs to the origin
func (o Origin) Contains(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, o.Scheme) && strings.EqualFold(u.Host, o.Host)
}

// Canonicalize strips every leading and trailing slash
func Canonicalize(s string) string {
	return strings.Trim(s, "/")
}

// HashURL returns the hex SHA-1 of the canonical form of s along with
// that canonical form
func HashURL(s string) (string, string) {
	canonical := Canonicalize(s)
	sum := sha1.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:]), canonical
}

// ResolveLink resolves an anchor href found on the page at base. It returns
// false for hrefs that leave the origin or cannot be parsed.
func ResolveLink(href string, base *url.URL, origin Origin) (Link, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return Link{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}
	if ref.Host != "" && !strings.EqualFold(ref.Host, origin.Host) {
		return Link{}, false
	}

	abs := base.ResolveReference(ref)
	if !origin.Contains(abs) {
		return Link{}, false
	}

	fragment := abs.Fragment
	abs.Fragment = ""
	abs.RawFragment = ""
	abs.User = nil
	abs.Scheme = origin.Scheme
	abs.Host = origin.Host

	absolute := abs.String()
	return Link{
		Absolute:  absolute,
		Canonical: Canonicalize(absolute),
		Fragment:  fragment,
	}, true
}

// ResolveResource resolves an embedded resource reference against base.
// Only http and https targets are returned.
func ResolveResource(raw string, base *url.URL) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	abs := base.ResolveReference(ref)
	scheme := strings.ToLower(abs.Scheme)
	if (scheme != "http" && scheme != "https") || abs.Host == "" {
		return nil, fmt.Errorf("%q: %w", raw, errNotHTTP)
	}
	abs.Scheme = scheme
	abs.Host = strings.ToLower(abs.Host)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, nil
}
