package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// readDir подменяется в тестах.
var readDir = os.ReadDir

// scan сверяет отслеживаемые файлы с содержимым каталога: запускает новые, останавливает пропавшие.
// Подкаталоги не обходятся.
func (w *Watcher) scan() error {
	// снимок до чтения каталога: файл, запущенный событием fsnotify во время чтения, не остановится
	tracked := w.Tracked()
	entries, err := readDir(w.dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", w.dir, err)
	}
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !w.match.Match(path) {
			continue
		}
		present[path] = struct{}{}
		if w.TryStart(path) {
			w.logger.Info("Найден файл при сканировании, запускаем tail", zap.String("file", path))
		}
	}
	for _, path := range tracked {
		if _, ok := present[path]; !ok {
			if w.TryStop(path) {
				w.logger.Info("Файл пропал из каталога, tail остановлен", zap.String("file", path))
			}
		}
	}
	return nil
}

// runPeriodicScan периодически пересканирует каталог: уведомлениям fsnotify полностью не доверяем.
func (w *Watcher) runPeriodicScan(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.RescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Периодическое сканирование завершено")
			return nil
		case <-ticker.C:
			w.logger.Debug("Запуск периодического сканирования каталога")
			if err := w.scan(); err != nil {
				return err
			}
		}
	}
}
