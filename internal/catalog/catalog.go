// Package catalog keeps lesson metadata and moves lesson files in and out of
// blob storage.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lesson-library/internal/logx"
	"lesson-library/internal/model"
	"lesson-library/internal/store"
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Query   string
	Subject string
}

type Catalog struct {
	store store.Store
}

func New(s store.Store) *Catalog {
	return &Catalog{store: s}
}

// Add records a lesson. The store assigns the id and zeroes the counter.
func (c *Catalog) Add(ctx context.Context, l model.Lesson) (model.Lesson, error) {
	out, err := c.store.AddLesson(ctx, l)
	if err != nil {
		return model.Lesson{}, fmt.Errorf("save lesson: %w", err)
	}
	return out, nil
}

// List returns matching lessons, newest first. Read failures yield an empty
// list.
func (c *Catalog) List(ctx context.Context, f Filter) []model.Lesson {
	all := c.all(ctx)

	q := strings.ToLower(strings.TrimSpace(f.Query))
	subject := strings.TrimSpace(f.Subject)

	out := make([]model.Lesson, 0, len(all))
	for _, l := range all {
		if subject != "" && !strings.EqualFold(l.Subject, subject) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(l.Title), q) &&
			!strings.Contains(strings.ToLower(l.Description), q) {
			continue
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Subjects returns the distinct non-empty subjects, compared without case.
func (c *Catalog) Subjects(ctx context.Context) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range c.all(ctx) {
		s := strings.TrimSpace(l.Subject)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func (c *Catalog) Get(ctx context.Context, id int) (*model.Lesson, error) {
	return c.store.GetLesson(ctx, id)
}

// Stats returns the number of lessons and the sum of their downloads.
func (c *Catalog) Stats(ctx context.Context) (lessons, downloads int) {
	all := c.all(ctx)
	for _, l := range all {
		downloads += l.Downloads
	}
	return len(all), downloads
}

// IncrementDownload bumps the counter for filename. Unknown names and
// storage errors are ignored.
func (c *Catalog) IncrementDownload(ctx context.Context, filename string) {
	err := c.store.IncrementDownloads(ctx, filename)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logx.Warn("download counter update failed", logx.Fields{"filename": filename, "error": err.Error()})
	}
}

func (c *Catalog) remove(ctx context.Context, id int) (model.Lesson, error) {
	return c.store.DeleteLesson(ctx, id)
}

func (c *Catalog) all(ctx context.Context) []model.Lesson {
	all, err := c.store.ListLessons(ctx)
	if err != nil {
		logx.Warn("lesson catalog read failed", logx.Fields{"error": err.Error()})
		return nil
	}
	return all
}
