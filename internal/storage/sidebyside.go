package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"CsvLogPump/internal/models"
)

// DefaultSideBySideFormat: "<имя><расширение>.last" рядом с самим логом.
const DefaultSideBySideFormat = "%s%s.last"

// SideBySideRepository хранит закладку каждого лога в отдельном файле рядом с ним.
// Содержимое файла: время в RFC3339Nano.
type SideBySideRepository struct {
	fs     afero.Fs
	format string
}

// NewSideBySideRepository; format получает имя файла без расширения и расширение (с точкой).
func NewSideBySideRepository(fs afero.Fs, format string) *SideBySideRepository {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if format == "" {
		format = DefaultSideBySideFormat
	}
	return &SideBySideRepository{fs: fs, format: format}
}

func (r *SideBySideRepository) Get(filePath string) (models.Bookmark, bool, error) {
	path := r.bookmarkPath(filePath)
	exists, err := afero.Exists(r.fs, path)
	if err != nil || !exists {
		return models.Bookmark{}, false, err
	}
	bs, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("read bookmark %s: %w", path, err)
	}
	contents := strings.TrimSpace(string(bs))
	if contents == "" {
		return models.Bookmark{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, contents)
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("parse bookmark %s: %w", path, err)
	}
	return models.Bookmark{FilePath: filePath, LogicalTimestamp: ts}, true, nil
}

func (r *SideBySideRepository) AddOrUpdate(b models.Bookmark) error {
	path := r.bookmarkPath(b.FilePath)
	contents := b.LogicalTimestamp.Format(time.RFC3339Nano)
	if err := afero.WriteFile(r.fs, path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write bookmark %s: %w", path, err)
	}
	return nil
}

func (r *SideBySideRepository) Close() error { return nil }

func (r *SideBySideRepository) bookmarkPath(logPath string) string {
	dir := filepath.Dir(logPath)
	ext := filepath.Ext(logPath)
	name := strings.TrimSuffix(filepath.Base(logPath), ext)
	return filepath.Join(dir, fmt.Sprintf(r.format, name, ext))
}
