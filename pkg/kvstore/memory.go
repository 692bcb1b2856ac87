package kvstore

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

type memoryStore struct {
	sync.RWMutex
	values *treemap.Map
	quota  int
	used   int
	closed bool
}

// NewMemoryStore returns a store keeping everything in memory. When quota is
// positive, Set fails with ErrQuotaExceeded once the total size of keys and
// values would go over quota bytes.
func NewMemoryStore(quota int) Store {
	return &memoryStore{
		values: treemap.NewWithStringComparator(),
		quota:  quota,
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}

	value, found := s.values.Get(key)

	if !found {
		return "", false, nil
	}

	return value.(string), true, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrClosed
	}

	used := s.used + len(value)

	if old, found := s.values.Get(key); found {
		used -= len(old.(string))
	} else {
		used += len(key)
	}

	if s.quota > 0 && used > s.quota {
		return ErrQuotaExceeded
	}

	s.values.Put(key, value)
	s.used = used

	return nil
}

func (s *memoryStore) Remove(ctx context.Context, key string) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrClosed
	}

	if old, found := s.values.Get(key); found {
		s.used -= len(key) + len(old.(string))
		s.values.Remove(key)
	}

	return nil
}

func (s *memoryStore) Keys(ctx context.Context) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, s.values.Size())

	for _, key := range s.values.Keys() {
		keys = append(keys, key.(string))
	}

	return keys, nil
}

func (s *memoryStore) Close() error {
	s.Lock()
	defer s.Unlock()

	s.closed = true

	return nil
}
