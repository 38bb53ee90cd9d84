// Package tailing собирает хвосты файлов (одного или всего каталога) в один поток записей,
// сериализует ошибки в отдельный поток и периодически сохраняет закладки.
package tailing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"CsvLogPump/internal/metrics"
	"CsvLogPump/internal/models"
	"CsvLogPump/internal/parser"
	"CsvLogPump/internal/storage"
	"CsvLogPump/internal/tailer"
	"CsvLogPump/internal/watcher"
)

const recordBuffer = 256

// Tailer запускает сессии хвостинга. Ошибки всех сессий идут в один поток Faults().
type Tailer struct {
	logger *zap.Logger
	faults *faultHub
}

func New(logger *zap.Logger) *Tailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tailer{logger: logger, faults: newFaultHub(logger)}
}

// Faults: восстановленные ошибки разбора, фатальные ошибки файлов и ошибки закладок,
// по одной и в порядке поступления. Канал закрывается в Close.
func (t *Tailer) Faults() <-chan error { return t.faults.out }

// Close останавливает выдачу ошибок. Сессии нужно закрыть отдельно.
func (t *Tailer) Close() { t.faults.close() }

// Session: одна запущенная операция Tail.
type Session struct {
	records  chan models.LogRecord
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown time.Duration
	err      error
}

// Records: записи всех файлов сессии; порядок сохраняется внутри файла. Закрывается по завершении сессии.
func (s *Session) Records() <-chan models.LogRecord { return s.records }

func (s *Session) Done() <-chan struct{} { return s.done }

// Err: причина завершения сессии; nil, пока сессия идёт. После отмены возвращает context.Canceled.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close отменяет сессию и ждёт остановки всех хвостов не дольше ShutdownTimeout.
func (s *Session) Close() error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(s.shutdown):
		return fmt.Errorf("tailing did not stop within %s", s.shutdown)
	}
}

// run: общие для всех файлов сессии параметры хвоста.
type run struct {
	t        *Tailer
	settings Settings
	enc      encoding.Encoding
	repo     storage.BookmarkRepository
	sampler  *bookmarkSampler
	raw      chan models.LogRecord
}

// Tail начинает хвостить settings.Path. Для каталога хвостятся все подходящие файлы, иначе один файл
// (если его ещё нет, хвост дождётся создания). repo может быть nil: тогда без закладок.
func (t *Tailer) Tail(ctx context.Context, settings Settings, repo storage.BookmarkRepository) (*Session, error) {
	settings = settings.withDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}
	enc, err := parser.LookupEncoding(settings.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if repo == nil {
		repo = storage.NewNullRepository()
	}

	logger := t.logger.With(zap.String("path", settings.Path))
	r := &run{
		t:        t,
		settings: settings,
		enc:      enc,
		repo:     repo,
		raw:      make(chan models.LogRecord),
	}
	r.sampler = newBookmarkSampler(repo, settings.BookmarkFlushInterval, logger.Named("bookmarks"), t.faults.publish)

	var start func(ctx context.Context) error
	if info, err := os.Stat(settings.Path); err == nil && info.IsDir() {
		w, err := watcher.New(watcher.Config{
			Dir:             settings.Path,
			Filter:          settings.DirectoryFilter,
			Exclude:         settings.Exclude,
			RescanInterval:  settings.RescanInterval,
			ShutdownTimeout: settings.ShutdownTimeout,
			Logger:          t.logger.Named("watcher"),
			Report:          t.faults.publish,
		}, r.tailFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		logger.Info("Хвостим каталог", zap.String("filter", settings.DirectoryFilter))
		start = w.Run
	} else {
		ft, err := r.newFileTailer(settings.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		logger.Info("Хвостим файл")
		start = func(ctx context.Context) error { return r.runFileTailer(ctx, ft) }
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		records:  make(chan models.LogRecord, recordBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
		shutdown: settings.ShutdownTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.forward(ctx, s.records)
	}()
	go func() {
		defer wg.Done()
		r.sampler.run(ctx)
	}()

	go func() {
		defer close(s.done)
		err := start(ctx)
		cancel()
		wg.Wait()
		r.sampler.flush(time.Now(), true)
		close(s.records)

		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Хвостинг остановлен с ошибкой", zap.Error(err))
			t.faults.publish(err)
		} else {
			logger.Info("Хвостинг остановлен")
		}
		s.err = err
	}()
	return s, nil
}

// forward: слияние записей всех файлов в выходной поток. Закладка учитывает запись только после её выдачи.
func (r *run) forward(ctx context.Context, out chan<- models.LogRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-r.raw:
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
			metrics.RecordsTotal.WithLabelValues(rec.FilePath).Inc()
			r.sampler.observe(rec)
		}
	}
}

// tailFile: TailFunc для наблюдателя каталога.
func (r *run) tailFile(ctx context.Context, path string) error {
	ft, err := r.newFileTailer(path)
	if err != nil {
		return &tailer.FileError{Path: path, Err: err}
	}
	return r.runFileTailer(ctx, ft)
}

func (r *run) runFileTailer(ctx context.Context, ft *tailer.FileTailer) error {
	metrics.FilesTailed.Inc()
	defer metrics.FilesTailed.Dec()
	return ft.Run(ctx, r.raw)
}

// newFileTailer разрешает имена колонок и закладку файла один раз, при старте его хвоста.
func (r *run) newFileTailer(path string) (*tailer.FileTailer, error) {
	s := r.settings
	var columns []string
	if s.ColumnNames != nil {
		columns = s.ColumnNames(path)
	}

	var since time.Time
	bm, ok, err := r.repo.Get(path)
	switch {
	case err != nil:
		r.t.faults.publish(&BookmarkError{Path: path, Op: "read", Err: err})
	case ok:
		since = bm.LogicalTimestamp
		r.t.logger.Info("Продолжаем с закладки", zap.String("file", path), zap.Time("since", since))
	}

	return tailer.New(tailer.Config{
		Path:              path,
		Columns:           columns,
		TimestampColumn:   s.TimestampColumn,
		Timestamps:        tailer.TimestampParser{Layout: s.TimestampLayout, Location: s.Location},
		Parser:            parser.Options{Delimiter: s.Delimiter, Encoding: r.enc},
		Since:             since,
		PollInterval:      s.PollInterval,
		QuoteStallTimeout: s.QuoteStallTimeout,
		OpenRetries:       s.OpenRetries,
		OpenBackoff:       s.OpenBackoff,
		Logger:            r.t.logger.Named("tailer"),
		Report:            r.t.faults.publish,
	})
}
