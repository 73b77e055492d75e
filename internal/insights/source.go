package insights

import (
	"context"
	"fmt"
	"os"
)

// Source yields one parsed insight document, wherever it is stored.
type Source interface {
	Load(ctx context.Context) (*Document, error)
}

// BlobReader is the slice of the storage layer a BlobSource needs.
type BlobReader interface {
	Get(ctx context.Context, container, name string) ([]byte, error)
}

// FileSource reads an index document from local disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read index file %s: %w", s.Path, err)
	}
	return Parse(data)
}

// BlobSource reads an index document from blob storage.
type BlobSource struct {
	Store     BlobReader
	Container string
	Name      string
}

func (s BlobSource) Load(ctx context.Context) (*Document, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("blob source has no store")
	}
	data, err := s.Store.Get(ctx, s.Container, s.Name)
	if err != nil {
		return nil, fmt.Errorf("download index %s/%s: %w", s.Container, s.Name, err)
	}
	return Parse(data)
}
