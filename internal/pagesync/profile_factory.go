package pagesync

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type ProfileStoreFactory func(dsn string) (ProfileStore, error)

var profileFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]ProfileStoreFactory
}{
	factories: map[string]ProfileStoreFactory{},
}

func RegisterProfileStoreFactory(scheme string, factory ProfileStoreFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	profileFactoryRegistry.mu.Lock()
	defer profileFactoryRegistry.mu.Unlock()
	profileFactoryRegistry.factories[scheme] = factory
}

func lookupProfileStoreFactory(scheme string) (ProfileStoreFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	profileFactoryRegistry.mu.RLock()
	defer profileFactoryRegistry.mu.RUnlock()
	factory, ok := profileFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// BuildProfileStoreFromDSN opens the profile backend named by dsn. An empty
// dsn yields an in-memory store, so follower state does not survive restarts.
func BuildProfileStoreFromDSN(dsn string) (ProfileStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewInMemoryProfileStore(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupProfileStoreFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		store, err := NewJSONFileProfileStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "bolt", "bbolt":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		store, err := NewBoltProfileStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "mem", "inmem":
		return NewInMemoryProfileStore(), nil
	case "postgres", "postgresql":
		store, err := NewPostgresProfileStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis", "rediss", "sqlite":
		return nil, fmt.Errorf("%w: profile store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported profile store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
