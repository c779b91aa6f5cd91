package document

import (
	"fmt"
	"io"
	"sync"
)

// Renderer prints the displayed page to a writer. It satisfies the sync
// engine's Display interface.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
	doc *Document
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// SetDocument swaps the document shown by later ShowPage calls.
func (r *Renderer) SetDocument(doc *Document) {
	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()
}

func (r *Renderer) Document() *Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

func (r *Renderer) ShowPage(page int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		fmt.Fprintf(r.out, "--- page %d (loading document) ---\n", page+1)
		return
	}
	fmt.Fprintf(r.out, "--- page %d/%d ---\n", page+1, r.doc.PageCount())
	if text := r.doc.Raw(page); text != "" {
		fmt.Fprintln(r.out, text)
	}
}
