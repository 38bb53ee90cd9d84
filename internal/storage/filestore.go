package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"CsvLogPump/internal/models"
)

// FileStore хранит закладки всех файлов одним JSON-объектом {путь: время}.
// Запись атомарная (tmp + rename) и защищена файловой блокировкой от параллельных процессов.
type FileStore struct {
	Path string

	mu        sync.Mutex // добавляем мьютекс для защиты при записи
	lock      *flock.Flock
	bookmarks map[string]time.Time
}

// NewFileStore открывает (или создаёт при первой записи) JSON-файл закладок.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bookmark dir %s: %w", dir, err)
		}
	}
	f := &FileStore{
		Path:      path,
		lock:      flock.New(path + ".lock"),
		bookmarks: make(map[string]time.Time),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileStore) load() error {
	bs, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read bookmarks: %w", err)
	}
	if len(bs) == 0 {
		return nil
	}
	if err := json.Unmarshal(bs, &f.bookmarks); err != nil {
		return fmt.Errorf("decode bookmarks %s: %w", f.Path, err)
	}
	return nil
}

func (f *FileStore) Get(filePath string) (models.Bookmark, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.bookmarks[filePath]
	if !ok {
		return models.Bookmark{}, false, nil
	}
	return models.Bookmark{FilePath: filePath, LogicalTimestamp: ts}, true, nil
}

func (f *FileStore) AddOrUpdate(b models.Bookmark) error {
	f.mu.Lock() // начинаем критическую секцию
	defer f.mu.Unlock()
	f.bookmarks[b.FilePath] = b.LogicalTimestamp
	return f.save()
}

func (f *FileStore) save() error {
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	defer f.lock.Unlock()

	bs, err := json.MarshalIndent(f.bookmarks, "", "  ")
	if err != nil {
		return err
	}
	// Запись во временный файл
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	// Удаляем старый файл, чтобы Rename не ошибся (актуально для Windows)
	_ = os.Remove(f.Path)
	// Атомарно переименовываем временный файл в основной
	return os.Rename(tmp, f.Path)
}

func (f *FileStore) Close() error { return nil }
