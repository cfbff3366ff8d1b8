package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Local keeps blobs as plain files in one directory.
type Local struct {
	dir string
}

var _ Storage = (*Local)(nil)

func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("upload dir is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Create(_ context.Context, name string, r io.Reader) (int64, error) {
	if err := ValidName(name); err != nil {
		return 0, err
	}
	path := filepath.Join(l.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, ErrExists
		}
		return 0, err
	}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

func (l *Local) Open(_ context.Context, name string) (*Object, error) {
	if err := ValidName(name); err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return &Object{Content: f, Size: st.Size(), ModTime: st.ModTime()}, nil
}

func (l *Local) Remove(_ context.Context, name string) error {
	if err := ValidName(name); err != nil {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(l.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (l *Local) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
