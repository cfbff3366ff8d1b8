// Package jsonfile stores each collection as a whole JSON document on disk.
//
// Every load-modify-save cycle runs under one mutex and writes go through a
// temp file plus rename, so concurrent requests cannot lose updates and a
// crash mid-write leaves the previous document intact.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lesson-library/internal/model"
	"lesson-library/internal/store"
)

const (
	teacherFile = "teacher.json"
	pendingFile = "pending.json"
	lessonsFile = "lessons.json"
	metaFile    = "meta.json"
)

// meta holds counters that must survive deletes.
type meta struct {
	NextLessonID int `json:"next_lesson_id"`
}

type Store struct {
	mu  sync.Mutex
	dir string

	// rename commits a written temp file; tests replace it to fail writes.
	rename func(oldpath, newpath string) error
}

var _ store.Store = (*Store)(nil)

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("data dir is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, rename: os.Rename}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(_ context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *Store) ActiveTeacher(_ context.Context) (*model.TeacherCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTeacher()
}

func (s *Store) SetActiveTeacher(_ context.Context, c model.TeacherCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(teacherFile, c)
}

func (s *Store) DeleteActiveTeacher(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(teacherFile))
	if errors.Is(err, fs.ErrNotExist) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) ListPending(_ context.Context) ([]model.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPending()
}

func (s *Store) AddPending(_ context.Context, p model.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.loadPending()
	if err != nil {
		return err
	}
	for _, existing := range pending {
		if existing.Username == p.Username {
			return store.ErrConflict
		}
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Now().UTC()
	}
	return s.writeJSON(pendingFile, append(pending, p))
}

func (s *Store) PromotePending(_ context.Context, index int, expectUsername string) (*model.TeacherCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.loadPending()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pending) {
		return nil, store.ErrNotFound
	}
	req := pending[index]
	if expectUsername != "" && req.Username != expectUsername {
		return nil, store.ErrStale
	}

	cred := model.TeacherCredential{
		Username:     req.Username,
		PasswordHash: req.PasswordHash,
		ApprovedAt:   time.Now().UTC(),
	}
	prev, err := s.loadTeacher()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := s.writeJSON(teacherFile, cred); err != nil {
		return nil, err
	}
	rest := append(pending[:index:index], pending[index+1:]...)
	if err := s.writeJSON(pendingFile, rest); err != nil {
		return nil, errors.Join(err, s.restoreTeacher(prev))
	}
	return &cred, nil
}

// restoreTeacher puts back the credential that was active before a failed
// promotion. A nil prev means there was none.
func (s *Store) restoreTeacher(prev *model.TeacherCredential) error {
	if prev != nil {
		return s.writeJSON(teacherFile, prev)
	}
	if err := os.Remove(s.path(teacherFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("restore %s: %w", teacherFile, err)
	}
	return nil
}

func (s *Store) ListLessons(_ context.Context) ([]model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLessons()
}

func (s *Store) GetLesson(_ context.Context, id int) (*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lessons, err := s.loadLessons()
	if err != nil {
		return nil, err
	}
	for i := range lessons {
		if lessons[i].ID == id {
			return &lessons[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AddLesson(_ context.Context, l model.Lesson) (model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lessons, err := s.loadLessons()
	if err != nil {
		return model.Lesson{}, err
	}
	maxID := 0
	for _, existing := range lessons {
		if existing.Filename == l.Filename {
			return model.Lesson{}, store.ErrConflict
		}
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}

	var m meta
	if err := s.readJSON(metaFile, &m); err != nil {
		return model.Lesson{}, err
	}
	// Data written before meta.json existed only has the lessons themselves.
	l.ID = max(m.NextLessonID, maxID+1)
	l.Downloads = 0
	if l.UploadedAt.IsZero() {
		l.UploadedAt = time.Now().UTC()
	}

	// The counter moves first so a failed lessons write burns the id instead
	// of handing it out twice.
	m.NextLessonID = l.ID + 1
	if err := s.writeJSON(metaFile, m); err != nil {
		return model.Lesson{}, err
	}
	if err := s.writeJSON(lessonsFile, append(lessons, l)); err != nil {
		return model.Lesson{}, err
	}
	return l, nil
}

func (s *Store) IncrementDownloads(_ context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lessons, err := s.loadLessons()
	if err != nil {
		return err
	}
	for i := range lessons {
		if lessons[i].Filename == filename {
			lessons[i].Downloads++
			return s.writeJSON(lessonsFile, lessons)
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeleteLesson(_ context.Context, id int) (model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lessons, err := s.loadLessons()
	if err != nil {
		return model.Lesson{}, err
	}
	for i, l := range lessons {
		if l.ID != id {
			continue
		}
		rest := append(lessons[:i:i], lessons[i+1:]...)
		if err := s.writeJSON(lessonsFile, rest); err != nil {
			return model.Lesson{}, err
		}
		return l, nil
	}
	return model.Lesson{}, store.ErrNotFound
}

func (s *Store) loadTeacher() (*model.TeacherCredential, error) {
	var c *model.TeacherCredential
	if err := s.readJSON(teacherFile, &c); err != nil {
		return nil, err
	}
	if c == nil || c.Username == "" {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) loadPending() ([]model.PendingRequest, error) {
	var pending []model.PendingRequest
	if err := s.readJSON(pendingFile, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *Store) loadLessons() ([]model.Lesson, error) {
	var lessons []model.Lesson
	if err := s.readJSON(lessonsFile, &lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSON leaves v untouched when the file is missing or blank.
func (s *Store) readJSON(name string, v any) error {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := s.rename(tmpPath, s.path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
