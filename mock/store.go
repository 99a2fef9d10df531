package mock

import (
	"context"
	"sync"

	"github.com/fwojciec/ragchat"
)

// Interface compliance check.
var _ ragchat.Store = (*Store)(nil)

// Store is a test double for ragchat.Store.
// Set the function fields for the methods you need.
type Store struct {
	GetFn    func(ctx context.Context, key string) ([]byte, error)
	PutFn    func(ctx context.Context, key string, value []byte) error
	DeleteFn func(ctx context.Context, key string) error
}

// Get delegates to GetFn.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.GetFn(ctx, key)
}

// Put delegates to PutFn.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.PutFn(ctx, key, value)
}

// Delete delegates to DeleteFn.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.DeleteFn(ctx, key)
}

// MemoryStore returns a Store whose functions read and write an in-memory
// map. Individual functions can be replaced afterwards to inject failures.
func MemoryStore() *Store {
	var mu sync.Mutex
	data := make(map[string][]byte)
	return &Store{
		GetFn: func(_ context.Context, key string) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			v, ok := data[key]
			if !ok {
				return nil, ragchat.ErrNotFound
			}
			return append([]byte(nil), v...), nil
		},
		PutFn: func(_ context.Context, key string, value []byte) error {
			mu.Lock()
			defer mu.Unlock()
			data[key] = append([]byte(nil), value...)
			return nil
		},
		DeleteFn: func(_ context.Context, key string) error {
			mu.Lock()
			defer mu.Unlock()
			delete(data, key)
			return nil
		},
	}
}
