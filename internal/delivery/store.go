package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"langclash/internal/models"
)

// Store persists the queued submissions as one list. Implementations
// always read and write the whole list.
type Store interface {
	Load(ctx context.Context) ([]models.QueuedSubmission, error)
	Save(ctx context.Context, items []models.QueuedSubmission) error
}

// MemoryStore keeps the queue in process memory
type MemoryStore struct {
	mu    sync.Mutex
	items []models.QueuedSubmission
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored list
func (m *MemoryStore) Load(_ context.Context) ([]models.QueuedSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.QueuedSubmission, len(m.items))
	copy(out, m.items)
	return out, nil
}

// Save replaces the stored list
func (m *MemoryStore) Save(_ context.Context, items []models.QueuedSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make([]models.QueuedSubmission, len(items))
	copy(m.items, items)
	return nil
}

// FileStore keeps the queue as a JSON file on disk
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the queue file; a missing file is an empty queue
func (f *FileStore) Load(_ context.Context) ([]models.QueuedSubmission, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var items []models.QueuedSubmission
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode queue file: %w", err)
	}
	return items, nil
}

// Save writes the queue to a temporary file and renames it into place
func (f *FileStore) Save(_ context.Context, items []models.QueuedSubmission) error {
	if items == nil {
		items = []models.QueuedSubmission{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close queue file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
