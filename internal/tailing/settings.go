package tailing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"CsvLogPump/internal/config"
	"CsvLogPump/internal/parser"
	"CsvLogPump/internal/tailer"
	"CsvLogPump/internal/watcher"
)

const DefaultBookmarkFlushInterval = time.Second

var ErrInvalidSettings = errors.New("invalid tailing settings")

// Settings задаются один раз и не меняются, пока идёт Tail.
type Settings struct {
	// Path: файл или каталог.
	Path string
	// DirectoryFilter: glob для имён файлов в режиме каталога; пустой glob пропускает все файлы.
	DirectoryFilter string
	// Exclude: регулярное выражение для имён, которые не хвостим.
	Exclude string
	// ColumnNames вызывается один раз при старте хвоста файла; nil: колонки без имён.
	ColumnNames func(path string) []string

	TimestampColumn int
	TimestampLayout string
	Location        *time.Location
	Delimiter       byte
	Encoding        string

	BookmarkFlushInterval time.Duration
	PollInterval          time.Duration
	RescanInterval        time.Duration
	ShutdownTimeout       time.Duration
	QuoteStallTimeout     time.Duration
	OpenRetries           int
	OpenBackoff           time.Duration
}

// FileSettings: хвост одного файла с фиксированными именами колонок.
func FileSettings(path string, columns ...string) Settings {
	return Settings{Path: path, ColumnNames: staticColumns(columns)}
}

// DirectorySettings: хвост всех файлов каталога, подходящих под filter.
func DirectorySettings(dir, filter string, columns ...string) Settings {
	return Settings{Path: dir, DirectoryFilter: filter, ColumnNames: staticColumns(columns)}
}

// FromConfig собирает Settings из секций Source и Bookmarks конфига.
func FromConfig(src config.SourceConfig, bm config.BookmarksConfig) Settings {
	s := Settings{
		Path:                  src.Path,
		DirectoryFilter:       src.Filter,
		Exclude:               src.Exclude,
		TimestampColumn:       src.TimestampColumn,
		TimestampLayout:       src.TimestampLayout,
		Encoding:              src.Encoding,
		BookmarkFlushInterval: bm.FlushInterval,
		PollInterval:          src.PollInterval,
		RescanInterval:        src.RescanInterval,
		ShutdownTimeout:       src.ShutdownTimeout,
		QuoteStallTimeout:     src.QuoteStallTimeout,
	}
	if len(src.Delimiter) == 1 {
		s.Delimiter = src.Delimiter[0]
	}
	if len(src.Columns) > 0 || len(src.ColumnsByFile) > 0 {
		s.ColumnNames = src.ColumnsFor
	}
	return s
}

func staticColumns(columns []string) func(string) []string {
	if len(columns) == 0 {
		return nil
	}
	return func(string) []string { return columns }
}

func (s Settings) withDefaults() Settings {
	if s.Delimiter == 0 {
		s.Delimiter = parser.DefaultDelimiter
	}
	if s.BookmarkFlushInterval <= 0 {
		s.BookmarkFlushInterval = DefaultBookmarkFlushInterval
	}
	if s.PollInterval <= 0 {
		s.PollInterval = tailer.DefaultPollInterval
	}
	if s.RescanInterval <= 0 {
		s.RescanInterval = watcher.DefaultRescanInterval
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = watcher.DefaultShutdownTimeout
	}
	if s.Location == nil {
		s.Location = time.Local
	}
	return s
}

func (s Settings) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidSettings)
	}
	if s.TimestampColumn < 0 {
		return fmt.Errorf("%w: negative timestamp column", ErrInvalidSettings)
	}
	if s.Delimiter == '"' || s.Delimiter == '\n' || s.Delimiter == '\r' {
		return fmt.Errorf("%w: delimiter %q", ErrInvalidSettings, s.Delimiter)
	}
	if _, err := watcher.NewMatcher(s.DirectoryFilter, s.Exclude); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}
