package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by GetObject for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations used for model artifacts.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	UploadObject(ctx context.Context, key string, data []byte) error
}

// ModelKey is the object key of a trained model artifact.
func ModelKey(productID int64, modelRef string) string {
	return fmt.Sprintf("models/%d/%s.json", productID, modelRef)
}

// ModelPrefix lists every artifact of one product.
func ModelPrefix(productID int64) string {
	return fmt.Sprintf("models/%d/", productID)
}

// NoopStorage discards uploads. It is used when artifact storage is disabled.
type NoopStorage struct{}

func (NoopStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return nil, nil
}

func (NoopStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrObjectNotFound
}

func (NoopStorage) UploadObject(ctx context.Context, key string, data []byte) error {
	return nil
}

var _ ObjectStorage = NoopStorage{}
