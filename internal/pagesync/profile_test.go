package pagesync

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestBuildProfileStoreFromDSNMemory(t *testing.T) {
	for _, dsn := range []string{"", "memory://"} {
		store, err := BuildProfileStoreFromDSN(dsn)
		if err != nil {
			t.Fatalf("build %q failed: %v", dsn, err)
		}
		if err := store.Set("k", "3"); err != nil {
			t.Fatalf("memory set failed: %v", err)
		}
		value, ok, err := store.Get("k")
		if err != nil || !ok || value != "3" {
			t.Fatalf("expected 3, got %q ok=%v err=%v", value, ok, err)
		}
	}
}

func TestBuildProfileStoreFromDSNFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "alice.json")
	store, err := BuildProfileStoreFromDSN("file://" + path)
	if err != nil {
		t.Fatalf("build file profile store failed: %v", err)
	}
	if _, ok, err := store.Get(DefaultProfileKey); err != nil || ok {
		t.Fatalf("expected empty profile, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(DefaultProfileKey, "7"); err != nil {
		t.Fatalf("file set failed: %v", err)
	}
	if err := CloseProfileStore(store); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := BuildProfileStoreFromDSN("file://" + path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { _ = CloseProfileStore(reopened) })
	value, ok, err := reopened.Get(DefaultProfileKey)
	if err != nil || !ok || value != "7" {
		t.Fatalf("expected persisted 7, got %q ok=%v err=%v", value, ok, err)
	}
}

func TestJSONFileProfileStoreIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	first, err := NewJSONFileProfileStore(path)
	if err != nil {
		t.Fatalf("open first failed: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })

	if _, err := NewJSONFileProfileStore(path); !errors.Is(err, ErrProfileLocked) {
		t.Fatalf("expected ErrProfileLocked for second open, got %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	second, err := NewJSONFileProfileStore(path)
	if err != nil {
		t.Fatalf("expected open after close to succeed, got %v", err)
	}
	_ = second.Close()
}

func TestBuildProfileStoreFromDSNBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	store, err := BuildProfileStoreFromDSN("bolt://" + path)
	if err != nil {
		t.Fatalf("build bolt profile store failed: %v", err)
	}
	if err := store.Set(DefaultProfileKey, "12"); err != nil {
		t.Fatalf("bolt set failed: %v", err)
	}
	if err := CloseProfileStore(store); err != nil {
		t.Fatalf("bolt close failed: %v", err)
	}
	reopened, err := NewBoltProfileStore(path)
	if err != nil {
		t.Fatalf("reopen bolt failed: %v", err)
	}
	defer reopened.Close()
	value, ok, err := reopened.Get(DefaultProfileKey)
	if err != nil || !ok || value != "12" {
		t.Fatalf("expected 12, got %q ok=%v err=%v", value, ok, err)
	}
	if _, ok, err := reopened.Get("missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
}

func TestBuildProfileStoreFromDSNUnsupported(t *testing.T) {
	store, err := BuildProfileStoreFromDSN("postgres://localhost/pagesync?sslmode=disable&pagesync_profile=alice")
	if err != nil {
		t.Fatalf("expected postgres profile store to be available, got %v", err)
	}
	pg, ok := store.(*PostgresProfileStore)
	if !ok {
		t.Fatalf("expected *PostgresProfileStore, got %T", store)
	}
	if pg.Profile() != "alice" {
		t.Fatalf("expected profile alice, got %q", pg.Profile())
	}
	if strings.Contains(pg.dsn, "pagesync_profile") {
		t.Fatalf("expected profile parameter to be stripped from %q", pg.dsn)
	}
	if _, err := BuildProfileStoreFromDSN("redis://localhost:6379"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected not implemented for redis, got %v", err)
	}
	if _, err := BuildProfileStoreFromDSN("ftp://example.com/profile"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestRegisterProfileStoreFactory(t *testing.T) {
	scheme := "profiletestcustom"
	RegisterProfileStoreFactory(scheme, func(dsn string) (ProfileStore, error) {
		return NewInMemoryProfileStore(), nil
	})
	store, err := BuildProfileStoreFromDSN(scheme + "://example")
	if err != nil {
		t.Fatalf("build profile store via registered factory failed: %v", err)
	}
	if store == nil {
		t.Fatalf("expected non-nil store from registered factory")
	}
}

type slowProfileStore struct {
	mu     sync.Mutex
	values []string
	fail   bool
}

func (s *slowProfileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return "", false, nil
	}
	return s.values[len(s.values)-1], true, nil
}

func (s *slowProfileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("quota exceeded")
	}
	s.values = append(s.values, value)
	return nil
}

func TestAsyncProfileStoreFlushesLatestValueOnClose(t *testing.T) {
	backend := &slowProfileStore{}
	store := NewAsyncProfileStore(backend, nil)
	for _, v := range []string{"1", "2", "3"} {
		if err := store.Set(DefaultProfileKey, v); err != nil {
			t.Fatalf("set %s failed: %v", v, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	value, ok, _ := backend.Get(DefaultProfileKey)
	if !ok || value != "3" {
		t.Fatalf("expected last written value 3, got %q", value)
	}
	if err := store.Set(DefaultProfileKey, "4"); err == nil {
		t.Fatalf("expected set after close to fail")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestAsyncProfileStoreLogsBackendFailures(t *testing.T) {
	backend := &slowProfileStore{fail: true}
	logger := &bufferLogger{}
	store := NewAsyncProfileStore(backend, logger)
	if err := store.Set(DefaultProfileKey, "5"); err != nil {
		t.Fatalf("expected fire-and-forget set to succeed, got %v", err)
	}
	_ = store.Close()
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "quota exceeded") {
		t.Fatalf("expected logged backend failure, got %v", logger.lines)
	}
}
