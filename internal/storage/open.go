package storage

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"CsvLogPump/internal/config"
)

// Open создаёт хранилище закладок по секции Bookmarks конфига.
func Open(cfg config.BookmarksConfig) (Store, error) {
	switch strings.ToLower(cfg.Storage) {
	case "", "none":
		return NewNullRepository(), nil
	case "sidebyside":
		return NewSideBySideRepository(afero.NewOsFs(), cfg.Format), nil
	case "json", "file":
		return NewFileStore(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "redis":
		return NewRedisStore(&cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown bookmark storage %q", cfg.Storage)
	}
}
