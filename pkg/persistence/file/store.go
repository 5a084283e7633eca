package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/parley/pkg/persistence"
)

// documentStore keeps one JSON document per record under root/dir/{id}.json.
type documentStore[T any] struct {
	mu  sync.RWMutex
	dir string
}

func newDocumentStore[T any](root, dir string) *documentStore[T] {
	return &documentStore[T]{dir: filepath.Join(root, dir)}
}

func (s *documentStore[T]) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", persistence.ErrInvalidID, id)
	}

	return filepath.Join(s.dir, id+".json"), nil
}

// read returns nil, nil when the document does not exist. An id that cannot name a file
// names no document.
func (s *documentStore[T]) read(id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readLocked(id)
}

func (s *documentStore[T]) readLocked(id string) (*T, error) {
	filePath, err := s.path(id)
	if errors.Is(err, persistence.ErrInvalidID) {
		return nil, nil
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}

	var document T

	err = json.Unmarshal(body, &document)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &document, nil
}

func (s *documentStore[T]) all() ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allLocked()
}

func (s *documentStore[T]) allLocked() ([]*T, error) {
	jsonFiles, err := fs.Glob(os.DirFS(s.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	documents := make([]*T, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		document, err := s.readLocked(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if document != nil {
			documents = append(documents, document)
		}
	}

	return documents, nil
}

func (s *documentStore[T]) write(id string, document *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(id, document)
}

// writeLocked replaces the document through a rename so readers never observe a partial write.
func (s *documentStore[T]) writeLocked(id string, document *T) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(s.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp := filePath + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp, filePath)
}

// remove deletes the document. A missing document is not an error.
func (s *documentStore[T]) remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath, err := s.path(id)
	if errors.Is(err, persistence.ErrInvalidID) {
		return nil
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return nil
}
