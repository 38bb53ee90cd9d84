package storage

import (
	"io"

	"CsvLogPump/internal/models"
)

// BookmarkRepository хранит последнюю обработанную отметку времени по каждому файлу.
// Get возвращает ok=false, если закладки для файла нет.
type BookmarkRepository interface {
	Get(filePath string) (bookmark models.Bookmark, ok bool, err error)
	AddOrUpdate(bookmark models.Bookmark) error
}

// Store: репозиторий, владеющий ресурсами (файлы, соединения), которые нужно закрыть.
type Store interface {
	BookmarkRepository
	io.Closer
}

// NullRepository ничего не помнит: режим без возобновления.
type NullRepository struct{}

func NewNullRepository() NullRepository { return NullRepository{} }

func (NullRepository) Get(string) (models.Bookmark, bool, error) { return models.Bookmark{}, false, nil }

func (NullRepository) AddOrUpdate(models.Bookmark) error { return nil }

func (NullRepository) Close() error { return nil }
