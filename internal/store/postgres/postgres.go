// Package postgres implements store.Store on PostgreSQL through database/sql
// and the pgx stdlib driver. Schema lives in internal/db/migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lesson-library/internal/model"
	"lesson-library/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ActiveTeacher(ctx context.Context) (*model.TeacherCredential, error) {
	var c model.TeacherCredential
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, approved_at
		FROM teacher_credential
		WHERE id = 1
	`).Scan(&c.Username, &c.PasswordHash, &c.ApprovedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) SetActiveTeacher(ctx context.Context, c model.TeacherCredential) error {
	return upsertTeacher(ctx, s.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTeacher(ctx context.Context, ex execer, c model.TeacherCredential) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO teacher_credential (id, username, password_hash, approved_at)
		VALUES (1, $1, $2, COALESCE($3::timestamptz, now()))
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    password_hash = EXCLUDED.password_hash,
		    approved_at = EXCLUDED.approved_at
	`, c.Username, c.PasswordHash, nullTime(c))
	return err
}

func (s *Store) DeleteActiveTeacher(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM teacher_credential WHERE id = 1`)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context) ([]model.PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, submitted_at
		FROM pending_requests
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingRequest
	for rows.Next() {
		var p model.PendingRequest
		if err := rows.Scan(&p.Username, &p.PasswordHash, &p.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AddPending(ctx context.Context, p model.PendingRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_requests (username, password_hash)
		VALUES ($1, $2)
	`, p.Username, p.PasswordHash)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) PromotePending(ctx context.Context, index int, expectUsername string) (*model.TeacherCredential, error) {
	if index < 0 {
		return nil, store.ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		position int64
		req      model.PendingRequest
	)
	err = tx.QueryRowContext(ctx, `
		SELECT position, username, password_hash
		FROM pending_requests
		ORDER BY position
		OFFSET $1 LIMIT 1
		FOR UPDATE
	`, index).Scan(&position, &req.Username, &req.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if expectUsername != "" && req.Username != expectUsername {
		return nil, store.ErrStale
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_requests WHERE position = $1`, position); err != nil {
		return nil, fmt.Errorf("remove pending: %w", err)
	}

	cred := model.TeacherCredential{Username: req.Username, PasswordHash: req.PasswordHash}
	if err := upsertTeacher(ctx, tx, cred); err != nil {
		return nil, fmt.Errorf("set teacher: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT approved_at FROM teacher_credential WHERE id = 1`).Scan(&cred.ApprovedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &cred, nil
}

const lessonColumns = `id, title, description, subject, filename, downloads, size_bytes, sha256_hex, uploaded_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(row scanner) (model.Lesson, error) {
	var l model.Lesson
	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.Subject, &l.Filename,
		&l.Downloads, &l.SizeBytes, &l.SHA256, &l.UploadedAt)
	return l, err
}

func (s *Store) ListLessons(ctx context.Context) ([]model.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+lessonColumns+` FROM lessons ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetLesson(ctx context.Context, id int) (*model.Lesson, error) {
	l, err := scanLesson(s.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *Store) AddLesson(ctx context.Context, l model.Lesson) (model.Lesson, error) {
	out, err := scanLesson(s.db.QueryRowContext(ctx, `
		INSERT INTO lessons (title, description, subject, filename, size_bytes, sha256_hex)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+lessonColumns,
		l.Title, l.Description, l.Subject, l.Filename, l.SizeBytes, l.SHA256))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Lesson{}, store.ErrConflict
		}
		return model.Lesson{}, err
	}
	return out, nil
}

func (s *Store) IncrementDownloads(ctx context.Context, filename string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE lessons SET downloads = downloads + 1 WHERE filename = $1`, filename)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteLesson(ctx context.Context, id int) (model.Lesson, error) {
	l, err := scanLesson(s.db.QueryRowContext(ctx, `DELETE FROM lessons WHERE id = $1 RETURNING `+lessonColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Lesson{}, store.ErrNotFound
		}
		return model.Lesson{}, err
	}
	return l, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(c model.TeacherCredential) sql.NullTime {
	return sql.NullTime{Time: c.ApprovedAt, Valid: !c.ApprovedAt.IsZero()}
}
