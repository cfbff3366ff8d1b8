// Package blob stores uploaded lesson files by flat name, either in a local
// directory or in a MinIO/S3 bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrExists   = errors.New("blob already exists")
)

// Object is an open blob. Callers must close Content.
type Object struct {
	Content io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// Storage is the blob backend used by the upload gateway.
type Storage interface {
	// Create writes r under name and returns the byte count. It returns
	// ErrExists without touching the existing blob if name is taken.
	Create(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (*Object, error)
	Remove(ctx context.Context, name string) error
	// List returns every stored name in lexical order.
	List(ctx context.Context) ([]string, error)
}

// ValidName rejects names that could escape the flat namespace.
func ValidName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid blob name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("invalid blob name %q", name)
	}
	return nil
}
