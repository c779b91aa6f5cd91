package viewsync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/agentworkforce/pagesync/internal/document"
	"github.com/agentworkforce/pagesync/internal/pagesync"
)

const defaultReloadSettle = 200 * time.Millisecond

const helpText = `commands:
  next | n         go to the next page
  prev | p         go to the previous page
  goto N           go to page N (1-based)
  role             switch between reader and viewer
  read             read the current page aloud (reader only)
  stop             stop reading
  status           show page, role and connection
  quit             leave`

type ClientConfig struct {
	Loop       *Loop
	Transport  pagesync.Transport
	Role       pagesync.Role
	Profile    pagesync.ProfileStore
	ProfileKey string
	// DocumentPath is watched and reloaded on change; empty leaves the client
	// waiting for LoadDocument.
	DocumentPath string
	ReloadSettle time.Duration
	Output       io.Writer
	Speaker      Speaker
	Logger       Logger
}

// Client is one participant in a shared reading session.
type Client struct {
	loop      *Loop
	transport pagesync.Transport
	engine    *pagesync.Engine
	renderer  *document.Renderer
	speaker   Speaker
	out       io.Writer
	logger    Logger

	docPath string
	settle  time.Duration
	texts   []string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	loop := cfg.Loop
	if loop == nil {
		loop = NewLoop(0)
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	speaker := cfg.Speaker
	if speaker == nil {
		speaker = NewWriterNarrator(out)
	}
	settle := cfg.ReloadSettle
	if settle <= 0 {
		settle = defaultReloadSettle
	}
	renderer := document.NewRenderer(out)
	engine, err := pagesync.NewEngine(pagesync.NewPageStore(), cfg.Transport, pagesync.EngineOptions{
		Role:       cfg.Role,
		Profile:    cfg.Profile,
		ProfileKey: cfg.ProfileKey,
		Display:    renderer,
		Narrator:   speaker,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		loop:      loop,
		transport: cfg.Transport,
		engine:    engine,
		renderer:  renderer,
		speaker:   speaker,
		out:       out,
		logger:    cfg.Logger,
		docPath:   strings.TrimSpace(cfg.DocumentPath),
		settle:    settle,
	}, nil
}

func (c *Client) Loop() *Loop {
	return c.loop
}

// Run starts the loop and the engine, watches the document, and executes
// commands read from input until "quit", end of input, or ctx is done.
func (c *Client) Run(ctx context.Context, input io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = c.loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	if err := c.loop.Do(ctx, c.engine.Start); err != nil {
		return err
	}
	// Stop on the loop while it still runs; once ctx is gone the loop has
	// exited and Stop can run here.
	defer func() {
		if err := c.loop.Do(ctx, c.engine.Stop); err != nil {
			cancel()
			<-loopDone
			c.engine.Stop()
		}
	}()

	if c.docPath != "" {
		go func() {
			err := document.Watch(ctx, c.docPath, c.settle, func(doc *document.Document) {
				c.loop.Post(func() { c.LoadDocument(doc) })
			}, c.logger)
			if err != nil {
				c.logf("document %s unavailable: %v", c.docPath, err)
			}
		}()
	}

	quit := make(chan struct{})
	if input != nil {
		go func() {
			defer close(quit)
			c.readCommands(ctx, input)
		}()
	}

	select {
	case <-ctx.Done():
	case <-quit:
	}
	return nil
}

func (c *Client) readCommands(ctx context.Context, input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		var quit bool
		var cmdErr error
		if err := c.loop.Do(ctx, func() {
			quit, cmdErr = c.Execute(line)
			if cmdErr != nil {
				fmt.Fprintf(c.out, "error: %v\n", cmdErr)
			}
		}); err != nil {
			return
		}
		if quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logf("read commands: %v", err)
	}
}

// Execute runs one command line. It must be called on the client loop.
func (c *Client) Execute(line string) (bool, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "next", "n":
		return false, c.engine.Next()
	case "prev", "p":
		return false, c.engine.Prev()
	case "goto", "g":
		if len(fields) != 2 {
			return false, fmt.Errorf("%w: usage: goto N", pagesync.ErrInvalidInput)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("%w: page %q is not a number", pagesync.ErrInvalidInput, fields[1])
		}
		return false, c.engine.GoTo(n - 1)
	case "role", "r":
		role := c.engine.ToggleRole()
		fmt.Fprintf(c.out, "role: %s\n", role)
		return false, nil
	case "read":
		return false, c.Read()
	case "stop", "s":
		c.StopReading()
		return false, nil
	case "status":
		fmt.Fprintln(c.out, c.Status())
		return false, nil
	case "help", "?":
		fmt.Fprintln(c.out, helpText)
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown command %q (try help)", pagesync.ErrInvalidInput, fields[0])
	}
}

// LoadDocument installs doc, refreshes the per-page text cache and tells the
// engine the new page count. It must be called on the client loop.
func (c *Client) LoadDocument(doc *document.Document) {
	texts := make([]string, doc.PageCount())
	for i := range texts {
		texts[i] = doc.Text(i)
	}
	c.texts = texts
	c.renderer.SetDocument(doc)
	if err := c.engine.DocumentLoaded(doc.PageCount()); err != nil {
		c.logf("document load rejected: %v", err)
	}
}

// Read speaks the current page. Only the reader may start narration.
func (c *Client) Read() error {
	if c.engine.Role() != pagesync.RoleController {
		return pagesync.ErrNotController
	}
	return c.speaker.Speak(c.pageText(c.engine.Page()))
}

func (c *Client) StopReading() {
	c.speaker.Cancel()
}

func (c *Client) Status() string {
	count := "?"
	if n := c.engine.PageCount(); n > 0 {
		count = strconv.Itoa(n)
	}
	connection := "unknown"
	if t, ok := c.transport.(interface{ Connected() bool }); ok {
		connection = "disconnected"
		if t.Connected() {
			connection = "connected"
		}
	}
	return fmt.Sprintf("page %d/%s role %s relay %s", c.engine.Page()+1, count, c.engine.Role(), connection)
}

func (c *Client) Engine() *pagesync.Engine {
	return c.engine
}

func (c *Client) pageText(page int) string {
	if page >= 0 && page < len(c.texts) {
		if text := strings.TrimSpace(c.texts[page]); text != "" {
			return text
		}
	}
	return fmt.Sprintf("Page %d content is loading...", page+1)
}

func (c *Client) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
