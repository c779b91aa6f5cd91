package viewsync

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentworkforce/pagesync/internal/pagesync"
	"github.com/agentworkforce/pagesync/internal/protocol"
	"github.com/agentworkforce/pagesync/internal/relay"
)

func startRelay(t *testing.T) (*relay.Server, string) {
	t.Helper()
	server := relay.NewServer(relay.ServerConfig{})
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})
	return server, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWSTransportRelaysEvents(t *testing.T) {
	server, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := NewWSTransport(WSTransportOptions{URL: url})
	viewer := NewWSTransport(WSTransportOptions{URL: url})
	if err := reader.Emit(protocol.PageChanged(1)); !errors.Is(err, pagesync.ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable before connecting, got %v", err)
	}

	received := make(chan protocol.SyncEvent, 4)
	viewer.Subscribe(func(ev protocol.SyncEvent) { received <- ev })
	go func() { _ = reader.Run(ctx) }()
	go func() { _ = viewer.Run(ctx) }()
	waitFor(t, "both transports connected", func() bool {
		return reader.Connected() && viewer.Connected() && server.Status().Clients == 2
	})

	if err := reader.Emit(protocol.PageChanged(2)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case ev := <-received:
		if ev != protocol.PageChanged(2) {
			t.Fatalf("expected PageChanged(2), got %s", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected viewer to receive the event")
	}
}

func TestWSTransportGivesUpAfterReconnectMax(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ts.Close()

	transport := NewWSTransport(WSTransportOptions{URL: url, ReconnectMax: 300 * time.Millisecond, DialTimeout: 100 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- transport.Run(context.Background()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected an error once reconnect time is exhausted")
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("expected Run to give up")
	}
}

func TestClientsStayInStepOverRelay(t *testing.T) {
	server, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newClient := func(role pagesync.Role) (*Client, *WSTransport) {
		loop := NewLoop(0)
		transport := NewWSTransport(WSTransportOptions{URL: url, Dispatch: loop.Post})
		client, err := NewClient(ClientConfig{Loop: loop, Transport: transport, Role: role})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		go func() { _ = loop.Run(ctx) }()
		if err := loop.Do(ctx, client.Engine().Start); err != nil {
			t.Fatalf("start: %v", err)
		}
		go func() { _ = transport.Run(ctx) }()
		return client, transport
	}
	reader, readerTransport := newClient(pagesync.RoleController)
	viewer, viewerTransport := newClient(pagesync.RoleFollower)
	waitFor(t, "both clients connected", func() bool {
		return readerTransport.Connected() && viewerTransport.Connected() && server.Status().Clients == 2
	})

	doc := mustParse(t, "a\fb\fc")
	for _, c := range []*Client{reader, viewer} {
		c := c
		if err := c.Loop().Do(ctx, func() { c.LoadDocument(doc) }); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	var cmdErr error
	if err := reader.Loop().Do(ctx, func() { _, cmdErr = reader.Execute("goto 3") }); err != nil || cmdErr != nil {
		t.Fatalf("goto: %v %v", err, cmdErr)
	}
	waitFor(t, "viewer on page 2", func() bool {
		var page int
		if err := viewer.Loop().Do(ctx, func() { page = viewer.Engine().Page() }); err != nil {
			return false
		}
		return page == 2
	})

	var status string
	_ = viewer.Loop().Do(ctx, func() { status = viewer.Status() })
	if status != "page 3/3 role viewer relay connected" {
		t.Fatalf("unexpected viewer status %q", status)
	}
}
