package ragchat

import "context"

// Store is durable device-local key/value storage.
//
// Get returns ErrNotFound when the key is absent. Delete of an absent key
// is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// HistoryCodec converts a session history to and from bytes.
type HistoryCodec interface {
	MarshalHistory(sessionID string, messages []Message) ([]byte, error)
	UnmarshalHistory(data []byte) ([]Message, error)
}
