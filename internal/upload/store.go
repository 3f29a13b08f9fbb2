// internal/upload/store.go
package upload

import (
	"context"
	"io"
)

// Object is one blob written to a results store.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Store is a key-value blob sink.
type Store interface {
	Put(ctx context.Context, obj Object) error
}

// Source reads blobs that triggered a dispatch.
type Source interface {
	Open(ctx context.Context, container, key string) (io.ReadCloser, error)
}
