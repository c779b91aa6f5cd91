package pagesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrProfileLocked = errors.New("profile is in use by another process")

// JSONFileProfileStore keeps the profile in a JSON file. Opening it takes an
// exclusive advisory lock on a sibling ".lock" file for the store's lifetime.
type JSONFileProfileStore struct {
	Path string

	mu   sync.Mutex
	lock *os.File
}

type fileProfileState struct {
	Values map[string]string `json:"values"`
}

func NewJSONFileProfileStore(path string) (*JSONFileProfileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrProfileLocked, path, err)
	}
	return &JSONFileProfileStore{Path: path, lock: lock}, nil
}

func (b *JSONFileProfileStore) Get(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return "", false, err
	}
	value, ok := state.Values[key]
	return value, ok, nil
}

func (b *JSONFileProfileStore) Set(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return err
	}
	state.Values[key] = value
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return writeFileAtomic(b.Path, data, 0o644)
}

func (b *JSONFileProfileStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lock == nil {
		return nil
	}
	_ = unlockFile(b.lock)
	err := b.lock.Close()
	b.lock = nil
	return err
}

func (b *JSONFileProfileStore) load() (fileProfileState, error) {
	state := fileProfileState{Values: map[string]string{}}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, err
	}
	if state.Values == nil {
		state.Values = map[string]string{}
	}
	return state, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
