package blob

import "context"

// Sink is a write-once store for auxiliary payloads. Keys are never
// overwritten or deleted by this core.
type Sink interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}
