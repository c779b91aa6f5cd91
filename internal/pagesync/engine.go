package pagesync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentworkforce/pagesync/internal/protocol"
)

const DefaultProfileKey = "pagesync.follower-page"

type Logger interface {
	Printf(format string, args ...any)
}

// Display shows the page the store settled on.
type Display interface {
	ShowPage(page int)
}

// Narrator is told to stop speaking whenever the page changes.
type Narrator interface {
	Cancel()
}

type EngineOptions struct {
	Role       Role
	Profile    ProfileStore
	ProfileKey string
	Display    Display
	Narrator   Narrator
	Logger     Logger
}

// Engine keeps one client's page in step with the shared transport. It is
// driven from a single event loop and is not safe for concurrent use.
type Engine struct {
	store      *PageStore
	transport  Transport
	profile    ProfileStore
	profileKey string
	display    Display
	narrator   Narrator
	logger     Logger

	role    Role
	guard   EchoGuard
	started bool

	unsubscribeStore     func()
	unsubscribeTransport func()
}

func NewEngine(store *PageStore, transport Transport, opts EngineOptions) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("page store is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	profile := opts.Profile
	if profile == nil {
		profile = NewInMemoryProfileStore()
	}
	profileKey := strings.TrimSpace(opts.ProfileKey)
	if profileKey == "" {
		profileKey = DefaultProfileKey
	}
	return &Engine{
		store:      store,
		transport:  transport,
		profile:    profile,
		profileKey: profileKey,
		display:    opts.Display,
		narrator:   opts.Narrator,
		logger:     opts.Logger,
		role:       opts.Role,
	}, nil
}

// Start subscribes to the page store and the transport, then activates the
// configured role as if the client had just switched into it.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	e.unsubscribeStore = e.store.OnChange(e.onPageChanged)
	e.unsubscribeTransport = e.transport.Subscribe(e.onRemote)
	e.activate(e.role)
}

// Stop removes both subscriptions. It is safe to call more than once.
func (e *Engine) Stop() {
	if !e.started {
		return
	}
	e.started = false
	if e.unsubscribeTransport != nil {
		e.unsubscribeTransport()
		e.unsubscribeTransport = nil
	}
	if e.unsubscribeStore != nil {
		e.unsubscribeStore()
		e.unsubscribeStore = nil
	}
	e.guard.Reset()
}

func (e *Engine) Role() Role {
	return e.role
}

func (e *Engine) Page() int {
	return e.store.Page()
}

func (e *Engine) PageCount() int {
	return e.store.PageCount()
}

func (e *Engine) GuardState() GuardState {
	return e.guard.State()
}

func (e *Engine) SetRole(role Role) {
	if role == e.role {
		return
	}
	e.role = role
	if e.started {
		e.activate(role)
	}
}

func (e *Engine) ToggleRole() Role {
	e.SetRole(e.role.Toggle())
	return e.role
}

func (e *Engine) Next() error {
	return e.GoTo(e.store.Page() + 1)
}

func (e *Engine) Prev() error {
	return e.GoTo(e.store.Page() - 1)
}

// GoTo is local navigation; the resulting notification decides whether the
// change is broadcast or persisted.
func (e *Engine) GoTo(page int) error {
	return e.store.SetPage(page)
}

// HandleRemote applies an inbound event. Pages the document cannot show yet
// are rejected with a StaleApplyError and are not retried.
func (e *Engine) HandleRemote(ev protocol.SyncEvent) error {
	switch ev.Kind {
	case protocol.KindPageChanged:
		if ev.Page < 0 {
			return &OutOfRangeError{Page: ev.Page, Count: e.store.PageCount()}
		}
		if ev.Page >= e.store.PageCount() {
			return &StaleApplyError{Page: ev.Page, Count: e.store.PageCount()}
		}
		if ev.Page == e.store.Page() {
			return nil
		}
		return e.applySuppressed(ev.Page)
	case protocol.KindResetToStart:
		return e.applySuppressed(0)
	default:
		return fmt.Errorf("%w: unknown event %s", ErrInvalidInput, ev)
	}
}

// DocumentLoaded records the page count of a freshly loaded document and
// shows the current page. Loading a new instance replaces the previous count.
func (e *Engine) DocumentLoaded(count int) error {
	if e.store.Known() {
		e.store.Unload()
	}
	if err := e.store.SetPageCount(count); err != nil {
		return err
	}
	if e.display != nil {
		e.display.ShowPage(e.store.Page())
	}
	return nil
}

func (e *Engine) onRemote(ev protocol.SyncEvent) {
	if err := e.HandleRemote(ev); err != nil {
		e.logf("dropped remote %s: %v", ev, err)
	}
}

func (e *Engine) onPageChanged(page int) {
	remote := e.guard.Consume()
	if e.narrator != nil {
		e.narrator.Cancel()
	}
	if e.display != nil {
		e.display.ShowPage(page)
	}
	if remote {
		return
	}
	switch e.role {
	case RoleController:
		if err := e.transport.Emit(protocol.PageChanged(page)); err != nil {
			e.logf("page %d not broadcast: %v", page, err)
		}
	case RoleFollower:
		if err := e.profile.Set(e.profileKey, strconv.Itoa(page)); err != nil {
			e.logf("page %d not persisted: %v", page, err)
		}
	}
}

// applySuppressed moves the store with the echo guard engaged so the
// resulting notification is neither broadcast nor persisted. The guard is
// cleared even when the store rejects the page.
func (e *Engine) applySuppressed(page int) error {
	e.guard.BeginRemoteApply()
	defer e.guard.Reset()
	return e.store.SetPage(page)
}

func (e *Engine) activate(role Role) {
	switch role {
	case RoleController:
		if err := e.transport.Emit(protocol.ResetToStart()); err != nil {
			e.logf("reset not broadcast: %v", err)
		}
		_ = e.applySuppressed(0)
	case RoleFollower:
		page := e.resumePage()
		if err := e.applySuppressed(page); err != nil {
			e.logf("resume page %d rejected: %v", page, err)
			_ = e.applySuppressed(0)
		}
	}
}

func (e *Engine) resumePage() int {
	raw, ok, err := e.profile.Get(e.profileKey)
	if err != nil {
		e.logf("read persisted page failed: %v", err)
		return 0
	}
	if !ok {
		return 0
	}
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 0 {
		e.logf("ignoring persisted page %q", raw)
		return 0
	}
	return page
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
