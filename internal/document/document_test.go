package document

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseSplitsOnFormFeed(t *testing.T) {
	doc, err := Parse("Chapter one\nIt was   dark.\fChapter two\n\fThe end\n\f")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	if got := doc.Text(0); got != "Chapter one It was dark." {
		t.Fatalf("unexpected page text %q", got)
	}
	if got := doc.Raw(1); got != "Chapter two" {
		t.Fatalf("unexpected raw page %q", got)
	}
	if doc.Text(3) != "" || doc.Text(-1) != "" {
		t.Fatalf("expected empty text outside the document")
	}
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	for _, raw := range []string{"", "  \n", "\f"} {
		if _, err := Parse(raw); !errors.Is(err, ErrEmptyDocument) {
			t.Fatalf("expected ErrEmptyDocument for %q, got %v", raw, err)
		}
	}
}

func TestRendererShowsLoadingUntilDocumentIsSet(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	r.ShowPage(6)
	if !strings.Contains(out.String(), "page 7 (loading document)") {
		t.Fatalf("expected loading placeholder, got %q", out.String())
	}
	doc, _ := Parse("one\ftwo")
	r.SetDocument(doc)
	out.Reset()
	r.ShowPage(1)
	if out.String() != "--- page 2/2 ---\ntwo\n" {
		t.Fatalf("unexpected render %q", out.String())
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	if err := os.WriteFile(path, []byte("a\fb"), 0o644); err != nil {
		t.Fatalf("seed document failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loads := make(chan int, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(doc *Document) {
			loads <- doc.PageCount()
		}, nil)
	}()

	select {
	case n := <-loads:
		if n != 2 {
			t.Fatalf("expected initial load with 2 pages, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for initial load")
	}

	if err := os.WriteFile(path, []byte("a\fb\fc"), 0o644); err != nil {
		t.Fatalf("rewrite document failed: %v", err)
	}
	select {
	case n := <-loads:
		if n != 3 {
			t.Fatalf("expected reload with 3 pages, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned error: %v", err)
	}
}

func TestWatchFailsForMissingDocument(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), time.Millisecond, func(*Document) {}, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
