package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"lesson-library/internal/blob"
	"lesson-library/internal/logx"
	"lesson-library/internal/model"

	"github.com/klauspost/compress/zip"
)

// ExportName is the reserved name of the export archive. It is never
// included in an export.
const ExportName = "lessons_export.zip"

// maxSuffix bounds the _N search for a free name.
const maxSuffix = 10000

var (
	ErrMissingFields       = errors.New("title and file are required")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrFileNotFound        = errors.New("file not found")
)

// UploadRequest is one lesson upload. Body is read exactly once.
type UploadRequest struct {
	Title       string
	Description string
	Subject     string
	Filename    string
	Body        io.Reader
}

// Gateway validates uploads, stores their bytes and keeps the catalog in
// step with blob storage.
type Gateway struct {
	catalog *Catalog
	blobs   blob.Storage
	allowed map[string]bool
}

func NewGateway(c *Catalog, blobs blob.Storage, allowedExtensions []string) *Gateway {
	return &Gateway{catalog: c, blobs: blobs, allowed: ParseExtensions(allowedExtensions)}
}

// Allowed reports whether uploads with extension ext are accepted.
func (g *Gateway) Allowed(ext string) bool {
	return g.allowed[strings.ToLower(ext)]
}

// AllowedList returns the accepted extensions as ".ext" entries for a file
// input's accept attribute.
func (g *Gateway) AllowedList() []string {
	out := make([]string, 0, len(g.allowed))
	for e := range g.allowed {
		out = append(out, "."+e)
	}
	sort.Strings(out)
	return out
}

// Upload stores the file under a sanitized, unused name and records it.
func (g *Gateway) Upload(ctx context.Context, req UploadRequest) (model.Lesson, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || req.Body == nil || strings.TrimSpace(req.Filename) == "" {
		return model.Lesson{}, ErrMissingFields
	}
	ext := Extension(req.Filename)
	if ext == "" || !g.allowed[ext] {
		return model.Lesson{}, ErrExtensionNotAllowed
	}

	h := sha256.New()
	body := io.TeeReader(req.Body, h)

	name, size, err := g.createUnique(ctx, storedName(req.Filename, ext), body)
	if err != nil {
		return model.Lesson{}, err
	}

	lesson, err := g.catalog.Add(ctx, model.Lesson{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Subject:     strings.TrimSpace(req.Subject),
		Filename:    name,
		SizeBytes:   size,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
	})
	if err != nil {
		if rerr := g.blobs.Remove(ctx, name); rerr != nil && !errors.Is(rerr, blob.ErrNotFound) {
			logx.Error("orphaned upload", logx.Fields{"filename": name}, rerr)
		}
		return model.Lesson{}, err
	}

	logx.Info("lesson uploaded", logx.Fields{"id": lesson.ID, "filename": name, "bytes": size})
	return lesson, nil
}

// createUnique tries name, then name_1, name_2, ... until one is free.
// Storage reports a taken name before reading from r.
func (g *Gateway) createUnique(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	candidate := name
	for i := 1; i <= maxSuffix; i++ {
		n, err := g.blobs.Create(ctx, candidate, r)
		if err == nil {
			return candidate, n, nil
		}
		if !errors.Is(err, blob.ErrExists) {
			return "", 0, fmt.Errorf("store upload: %w", err)
		}
		candidate = withSuffix(name, i)
	}
	return "", 0, fmt.Errorf("store upload: no free name for %s", name)
}

// Delete removes the catalog entry, then its file. A file that is already
// gone is not an error. Unknown ids return store.ErrNotFound.
func (g *Gateway) Delete(ctx context.Context, id int) (model.Lesson, error) {
	lesson, err := g.catalog.remove(ctx, id)
	if err != nil {
		return model.Lesson{}, err
	}

	err = g.blobs.Remove(ctx, lesson.Filename)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		logx.Warn("deleted lesson had no file", logx.Fields{"id": id, "filename": lesson.Filename})
	case err != nil:
		logx.Error("remove lesson file", logx.Fields{"id": id, "filename": lesson.Filename}, err)
	}

	logx.Info("lesson deleted", logx.Fields{"id": id, "filename": lesson.Filename})
	return lesson, nil
}

// Open returns the stored file. Callers must close its Content.
func (g *Gateway) Open(ctx context.Context, filename string) (*blob.Object, error) {
	if filename == ExportName {
		return nil, ErrFileNotFound
	}
	obj, err := g.blobs.Open(ctx, filename)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	return obj, err
}

// Export writes a zip of every stored file to w.
func (g *Gateway) Export(ctx context.Context, w io.Writer) error {
	names, err := g.blobs.List(ctx)
	if err != nil {
		return fmt.Errorf("list uploads: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, name := range names {
		if name == ExportName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.addToZip(ctx, zw, name); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (g *Gateway) addToZip(ctx context.Context, zw *zip.Writer, name string) error {
	obj, err := g.blobs.Open(ctx, name)
	if errors.Is(err, blob.ErrNotFound) {
		// Removed since List.
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = obj.Content.Close() }()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: obj.ModTime,
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, obj.Content); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}
