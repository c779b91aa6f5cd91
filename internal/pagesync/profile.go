package pagesync

import (
	"sync"
)

// ProfileStore is a durable key-value slot scoped to one client profile.
type ProfileStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type profileStoreCloser interface {
	Close() error
}

// CloseProfileStore closes store if its backend holds resources.
func CloseProfileStore(store ProfileStore) error {
	if closer, ok := store.(profileStoreCloser); ok {
		return closer.Close()
	}
	return nil
}

type InMemoryProfileStore struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{values: map[string]string{}}
}

func (s *InMemoryProfileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *InMemoryProfileStore) Set(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.writes++
	return nil
}

// Writes counts accepted Set calls.
func (s *InMemoryProfileStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// AsyncProfileStore makes Set fire-and-forget. Pending writes for the same key
// coalesce to the latest value and are applied in order by one worker.
type AsyncProfileStore struct {
	backend ProfileStore
	logger  Logger

	mu      sync.Mutex
	pending map[string]string
	order   []string
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func NewAsyncProfileStore(backend ProfileStore, logger Logger) *AsyncProfileStore {
	s := &AsyncProfileStore{
		backend: backend,
		logger:  logger,
		pending: map[string]string{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Get reads through to the backend, preferring a value still waiting to be
// written.
func (s *AsyncProfileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	if value, ok := s.pending[key]; ok {
		s.mu.Unlock()
		return value, true, nil
	}
	s.mu.Unlock()
	return s.backend.Get(key)
}

func (s *AsyncProfileStore) Set(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrInvalidInput
	}
	if _, queued := s.pending[key]; !queued {
		s.order = append(s.order, key)
	}
	s.pending[key] = value
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
	return nil
}

// Close flushes pending writes and closes the backend.
func (s *AsyncProfileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()
	<-s.done
	return CloseProfileStore(s.backend)
}

func (s *AsyncProfileStore) run() {
	defer close(s.done)
	for range s.wake {
		s.flush()
	}
	s.flush()
}

func (s *AsyncProfileStore) flush() {
	for {
		s.mu.Lock()
		if len(s.order) == 0 {
			s.mu.Unlock()
			return
		}
		key := s.order[0]
		s.order = s.order[1:]
		value := s.pending[key]
		delete(s.pending, key)
		s.mu.Unlock()

		if err := s.backend.Set(key, value); err != nil && s.logger != nil {
			s.logger.Printf("profile write %s failed: %v", key, err)
		}
	}
}
