// Package parser wraps a parsed HTML document with the small query and
// mutation surface the mirror needs: find elements by tag, read and write
// attributes, and render the tree back to bytes.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a mutable HTML tree
type Document struct {
	doc *goquery.Document
}

// Element is a single node of a Document
type Element struct {
	sel *goquery.Selection
}

// Parse reads an HTML document. Malformed markup is repaired the way a
// browser would, so only read errors are returned.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse for an in-memory string
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Elements returns every element with the given tag name in document order
func (d *Document) Elements(tag string) []*Element {
	sel := d.doc.Find(strings.ToLower(strings.TrimSpace(tag)))
	elements := make([]*Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &Element{sel: s})
	})
	return elements
}

// Title returns the trimmed text of the first <title> element
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Render serializes the document. Output is deterministic for a given tree.
func (d *Document) Render(w io.Writer) error {
	if len(d.doc.Nodes) == 0 {
		return fmt.Errorf("empty document")
	}
	return html.Render(w, d.doc.Nodes[0])
}

// Bytes renders the document into a byte slice
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Tag returns the element's tag name
func (e *Element) Tag() string {
	return goquery.NodeName(e.sel)
}

// Attr returns the value of the named attribute
func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// SetAttr sets or replaces the named attribute
func (e *Element) SetAttr(name, value string) {
	e.sel.SetAttr(name, value)
}
