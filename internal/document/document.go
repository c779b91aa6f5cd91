// Package document loads paginated plain-text documents. Pages are separated
// by form feeds, the layout pdftotext produces.
package document

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const pageSeparator = "\f"

var ErrEmptyDocument = errors.New("document has no pages")

type Document struct {
	Path  string
	pages []string
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

func Parse(raw string) (*Document, error) {
	pages := strings.Split(raw, pageSeparator)
	// pdftotext ends every page with a separator, leaving an empty tail.
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	if len(pages) == 1 && strings.TrimSpace(pages[0]) == "" {
		return nil, ErrEmptyDocument
	}
	return &Document{pages: pages}, nil
}

func (d *Document) PageCount() int {
	return len(d.pages)
}

// Text returns the words of page i joined by single spaces, or "" when i is
// outside the document.
func (d *Document) Text(i int) string {
	if i < 0 || i >= len(d.pages) {
		return ""
	}
	return strings.Join(strings.Fields(d.pages[i]), " ")
}

// Raw returns page i with its original line layout.
func (d *Document) Raw(i int) string {
	if i < 0 || i >= len(d.pages) {
		return ""
	}
	return strings.TrimRight(d.pages[i], "\n")
}
