// Package watcher поддерживает множество хвостов внутри одного каталога.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	DefaultRescanInterval  = 30 * time.Second
	DefaultShutdownTimeout = 2 * time.Second
)

var ErrDirectoryRemoved = errors.New("watched directory was removed")

// TailFunc хвостит один файл, пока ctx не отменён. Ненулевая ошибка при живом ctx: фатальная для файла.
type TailFunc func(ctx context.Context, path string) error

type Config struct {
	Dir             string
	Filter          string
	Exclude         string
	RescanInterval  time.Duration
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
	// Report получает фатальные ошибки отдельных файлов.
	Report func(error)
}

type tracked struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Watcher: единственный владелец множества отслеживаемых файлов.
// И fsnotify, и периодическое сканирование меняют его только через TryStart/TryStop.
type Watcher struct {
	cfg    Config
	dir    string
	match  *Matcher
	tail   TailFunc
	logger *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	closed bool
	files  map[string]*tracked
}

func New(cfg Config, tail TailFunc) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watcher: empty directory")
	}
	if tail == nil {
		return nil, errors.New("watcher: nil tail func")
	}
	m, err := NewMatcher(cfg.Filter, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = DefaultRescanInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Report == nil {
		cfg.Report = func(error) {}
	}
	dir := filepath.Clean(cfg.Dir)
	return &Watcher{
		cfg:    cfg,
		dir:    dir,
		match:  m,
		tail:   tail,
		logger: cfg.Logger.With(zap.String("dir", dir)),
		files:  make(map[string]*tracked),
	}, nil
}

// Run следит за каталогом до отмены ctx или ошибки уровня каталога.
// При выходе останавливает все хвосты и ждёт их не дольше ShutdownTimeout.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.dir)
	}

	// Инициализируем fsnotify
	dw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer dw.Close()
	if err := dw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("watcher already stopped")
	}
	w.ctx = ctx
	w.mu.Unlock()
	defer w.stopAll()

	w.logger.Info("Наблюдение за каталогом запущено", zap.String("filter", w.cfg.Filter))
	if err := w.scan(); err != nil {
		return err
	}

	scanErr := make(chan error, 1)
	go func() { scanErr <- w.runPeriodicScan(ctx) }()

	return w.handleDirEvents(ctx, dw, scanErr)
}

// handleDirEvents обрабатывает события fsnotify в каталоге.
func (w *Watcher) handleDirEvents(ctx context.Context, dw *fsnotify.Watcher, scanErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Наблюдение за каталогом остановлено")
			return ctx.Err()
		case err := <-scanErr:
			if err != nil {
				return err
			}
		case ev, ok := <-dw.Events:
			if !ok {
				return errors.New("fsnotify event channel closed")
			}
			if err := w.handleEvent(ev); err != nil {
				return err
			}
		case err, ok := <-dw.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("Переполнение очереди событий, пересканируем каталог")
				if err := w.scan(); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("watch %s: %w", w.dir, err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) error {
	path := filepath.Clean(ev.Name)
	if path == w.dir {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			return ErrDirectoryRemoved
		}
		return nil
	}
	if !w.match.Match(path) {
		return nil
	}
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			if w.TryStart(path) {
				w.logger.Info("Создан файл, запускаем tail", zap.String("file", path))
			}
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// новое имя при переименовании придёт отдельным Create
		if w.TryStop(path) {
			w.logger.Info("Файл удалён или переименован, tail остановлен", zap.String("file", path))
		}
	}
	return nil
}

// TryStart запускает хвост для path, если он ещё не отслеживается. Возвращает true, если запустил.
func (w *Watcher) TryStart(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.ctx == nil {
		return false
	}
	if _, ok := w.files[path]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(w.ctx)
	tr := &tracked{cancel: cancel, done: make(chan struct{})}
	w.files[path] = tr

	go func() {
		defer close(tr.done)
		err := w.tail(ctx, path)
		if err == nil || ctx.Err() != nil {
			return
		}
		// путь остаётся в списке, чтобы сканирование не перезапускало его, пока файл не исчезнет
		w.logger.Error("Tail файла остановлен с ошибкой", zap.String("file", path), zap.Error(err))
		w.cfg.Report(err)
	}()
	return true
}

// TryStop останавливает хвост path и ждёт его завершения. Возвращает true, если файл отслеживался.
func (w *Watcher) TryStop(path string) bool {
	w.mu.Lock()
	tr, ok := w.files[path]
	if ok {
		delete(w.files, path)
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	tr.cancel()
	select {
	case <-tr.done:
	case <-time.After(w.cfg.ShutdownTimeout):
		w.logger.Warn("Tail файла не остановился вовремя", zap.String("file", path))
	}
	return true
}

// Tracked возвращает отсортированный список отслеживаемых путей, включая упавшие.
func (w *Watcher) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (w *Watcher) stopAll() {
	w.mu.Lock()
	w.closed = true
	files := w.files
	w.files = make(map[string]*tracked)
	w.mu.Unlock()

	for _, tr := range files {
		tr.cancel()
	}
	deadline := time.After(w.cfg.ShutdownTimeout)
	for path, tr := range files {
		select {
		case <-tr.done:
		case <-deadline:
			w.logger.Warn("Не все tail остановились вовремя", zap.String("file", path))
			return
		}
	}
}
