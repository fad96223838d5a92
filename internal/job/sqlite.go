package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// :memory: databases are per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS urls (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			url           TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			error         TEXT NOT NULL DEFAULT '',
			file          TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			retries       INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL,
			deleted_at    DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_urls_status     ON urls(status);
		CREATE INDEX IF NOT EXISTS idx_urls_deleted_at ON urls(deleted_at);

		CREATE TABLE IF NOT EXISTS logs (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			url_id INTEGER NOT NULL REFERENCES urls(id),
			log    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_logs_url_id ON logs(url_id);
	`)
	return err
}

const selectColumns = `
	SELECT id, url, status, error, file, title, thumbnail_url, retries, created_at, updated_at
	FROM urls`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	r := &Record{}
	var title, thumbnail string
	if err := row.Scan(
		&r.ID, &r.URL, &r.Status, &r.Error, &r.File,
		&title, &thumbnail, &r.Retries, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if title != "" || thumbnail != "" {
		r.Preview = &Preview{Title: title, ThumbnailURL: thumbnail}
	}
	return r, nil
}

func (s *SQLiteStore) Create(ctx context.Context, url string) (*Record, error) {
	return s.insert(ctx, s.db, url, 0)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insert(ctx context.Context, db execer, url string, retries int64) (*Record, error) {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO urls (url, status, retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, url, StatusPending, retries, now, now)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return &Record{
		ID:        id,
		URL:       url,
		Status:    StatusPending,
		Retries:   retries,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND deleted_at IS NULL`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return r, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// List returns jobs ordered by id DESC. NextCursor is the id of the last row
// returned, or 0 when the page is empty. An empty page has nil URLs, which
// encodes as null.
func (s *SQLiteStore) List(ctx context.Context, f ListFilter) (*Page, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	if f.Cursor > 0 {
		where = append(where, "id < ?")
		args = append(args, f.Cursor)
	}
	if len(f.Status) > 0 {
		marks := make([]string, len(f.Status))
		for i, st := range f.Status {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Search != "" {
		where = append(where, `(url LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')`)
		like := "%" + likeEscaper.Replace(f.Search) + "%"
		args = append(args, like, like)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" WHERE "+strings.Join(where, " AND ")+" ORDER BY id DESC LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	page := &Page{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		page.URLs = append(page.URLs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	if n := len(page.URLs); n > 0 {
		page.NextCursor = page.URLs[n-1].ID
	}
	return page, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE urls SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`, now, now, id)
	if err != nil {
		return false, fmt.Errorf("delete job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete job %d: %w", id, err)
	}
	return n > 0, nil
}

// MarkProcessing moves a pending job to processing.
func (s *SQLiteStore) MarkProcessing(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE urls SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND deleted_at IS NULL
	`, StatusProcessing, time.Now().UTC(), id, StatusPending)
	if err != nil {
		return fmt.Errorf("mark processing for job %d: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

// Finish moves a processing job to a terminal status.
func (s *SQLiteStore) Finish(ctx context.Context, id int64, status Status, file, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish job %d with %q: %w", id, status, ErrInvalidTransition)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE urls SET status = ?, file = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ? AND deleted_at IS NULL
	`, status, file, errMsg, time.Now().UTC(), id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition distinguishes a missing job from one in the wrong state
// when a guarded update touched no rows.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("job %d is %s: %w", id, r.Status, ErrInvalidTransition)
}

func (s *SQLiteStore) SetPreview(ctx context.Context, id int64, p Preview) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE urls SET title = ?, thumbnail_url = ?, updated_at = ? WHERE id = ?
	`, p.Title, p.ThumbnailURL, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set preview for job %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, id int64, line string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO logs (url_id, log) VALUES (?, ?)`, id, line)
	if err != nil {
		return fmt.Errorf("append log for job %d: %w", id, err)
	}
	return nil
}

// ListLogs returns the log lines of a job starting at offset cursor.
// NextCursor is cursor plus the number of lines returned.
func (s *SQLiteStore) ListLogs(ctx context.Context, id, cursor int64) (*LogPage, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if cursor < 0 {
		cursor = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT log FROM logs WHERE url_id = ? ORDER BY id ASC LIMIT -1 OFFSET ?
	`, id, cursor)
	if err != nil {
		return nil, fmt.Errorf("list logs for job %d: %w", id, err)
	}
	defer rows.Close()

	page := &LogPage{}
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.Log); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		page.Logs = append(page.Logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	page.NextCursor = cursor + int64(len(page.Logs))
	return page, nil
}

func (s *SQLiteStore) Retry(ctx context.Context, id int64) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("retry job %d: %w", id, err)
	}
	defer tx.Rollback()

	var (
		url     string
		status  Status
		retries int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT url, status, retries FROM urls WHERE id = ? AND deleted_at IS NULL
	`, id).Scan(&url, &status, &retries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("retry job %d: %w", id, err)
	}
	if !status.IsTerminal() {
		return nil, fmt.Errorf("job %d is %s: %w", id, status, ErrNotTerminal)
	}

	r, err := s.insert(ctx, tx, url, retries+1)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("retry job %d: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteStore) Recover(ctx context.Context) ([]int64, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE urls SET status = ?, error = ?, updated_at = ?
		WHERE status = ? AND deleted_at IS NULL
	`, StatusFailure, "interrupted", time.Now().UTC(), StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("fail interrupted jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM urls WHERE status = ? AND deleted_at IS NULL ORDER BY id ASC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
