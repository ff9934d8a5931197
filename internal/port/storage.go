package port

import (
	"context"
	"io"
	"time"
)

// DocumentObject is an uploaded document to store.
type DocumentObject struct {
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

// StoredDocument locates a stored document.
type StoredDocument struct {
	Bucket string
	Key    string
	ETag   string
}

// DocumentStore keeps the original documents submitted to the gateway.
// Keys are relative to the store's bucket.
type DocumentStore interface {
	Put(ctx context.Context, obj DocumentObject) (*StoredDocument, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
