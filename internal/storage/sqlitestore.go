package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"CsvLogPump/internal/models"
)

const sqliteTimeout = 5 * time.Second

// SQLiteStore хранит закладки в таблице bookmarks локальной базы SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite открывает (создаёт) базу и применяет схему.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bookmark dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS bookmarks (
			file_path  TEXT PRIMARY KEY,
			log_time   TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Get(filePath string) (models.Bookmark, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT log_time FROM bookmarks WHERE file_path = ?`, filePath).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bookmark{}, false, nil
	}
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("select bookmark: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("parse bookmark %q: %w", raw, err)
	}
	return models.Bookmark{FilePath: filePath, LogicalTimestamp: ts}, true, nil
}

func (s *SQLiteStore) AddOrUpdate(b models.Bookmark) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (file_path, log_time, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(file_path) DO UPDATE SET log_time = excluded.log_time, updated_at = excluded.updated_at`,
		b.FilePath,
		b.LogicalTimestamp.Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert bookmark: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
