package kvstore

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type fileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store persisting all its keys as a single JSON
// object in the file at path. Every mutation rewrites the whole file.
func NewFileStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("File store path should not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "Error while creating the store directory")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := ioutil.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, errors.Wrap(err, "Error while creating the store file")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "Error while checking the store file")
	}

	return &fileStore{path: path}, nil
}

func (s *fileStore) loadUnlocked() (map[string]string, error) {
	data, err := ioutil.ReadFile(s.path)

	if err != nil {
		return nil, errors.Wrap(err, "Error while reading the store file")
	}

	values := map[string]string{}

	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "Error while decoding the store file")
	}

	return values, nil
}

func (s *fileStore) saveUnlocked(values map[string]string) error {
	data, err := json.Marshal(values)

	if err != nil {
		return errors.Wrap(err, "Error while encoding the store file")
	}

	tmp := s.path + ".tmp"

	if err := ioutil.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "Error while writing the store file")
	}

	return errors.Wrap(os.Rename(tmp, s.path), "Error while replacing the store file")
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnlocked()

	if err != nil {
		return "", false, err
	}

	value, found := values[key]

	return value, found, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnlocked()

	if err != nil {
		return err
	}

	values[key] = value

	return s.saveUnlocked(values)
}

func (s *fileStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnlocked()

	if err != nil {
		return err
	}

	if _, found := values[key]; !found {
		return nil
	}

	delete(values, key)

	return s.saveUnlocked(values)
}

func (s *fileStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadUnlocked()

	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(values))

	for key := range values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *fileStore) Close() error {
	return nil
}
