package tailing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"CsvLogPump/internal/metrics"
	"CsvLogPump/internal/models"
	"CsvLogPump/internal/storage"
)

const minSampleTick = 10 * time.Millisecond

type sample struct {
	latest    time.Time
	pending   bool
	lastFlush time.Time
}

// bookmarkSampler запоминает отметку времени последней выданной записи каждого файла
// и пишет её в репозиторий не чаще раза в interval и только если пришла новая запись.
type bookmarkSampler struct {
	repo     storage.BookmarkRepository
	interval time.Duration
	logger   *zap.Logger
	report   func(error)

	mu      sync.Mutex
	entries map[string]*sample
}

func newBookmarkSampler(repo storage.BookmarkRepository, interval time.Duration, logger *zap.Logger, report func(error)) *bookmarkSampler {
	return &bookmarkSampler{
		repo:     repo,
		interval: interval,
		logger:   logger,
		report:   report,
		entries:  make(map[string]*sample),
	}
}

func (b *bookmarkSampler) observe(rec models.LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[rec.FilePath]
	if !ok {
		e = &sample{}
		b.entries[rec.FilePath] = e
	}
	e.latest = rec.LogTimestamp
	e.pending = true
}

// run сбрасывает закладки по таймеру до отмены ctx. Финальный сброс: забота вызывающего.
func (b *bookmarkSampler) run(ctx context.Context) {
	tick := b.interval / 4
	if tick < minSampleTick {
		tick = minSampleTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.flush(now, false)
		}
	}
}

// flush пишет закладки, которые ждут записи; force игнорирует интервал.
func (b *bookmarkSampler) flush(now time.Time, force bool) {
	var due []models.Bookmark
	b.mu.Lock()
	for path, e := range b.entries {
		if !e.pending || (!force && now.Sub(e.lastFlush) < b.interval) {
			continue
		}
		e.pending = false
		e.lastFlush = now
		due = append(due, models.Bookmark{FilePath: path, LogicalTimestamp: e.latest})
	}
	b.mu.Unlock()

	for _, bm := range due {
		if err := b.repo.AddOrUpdate(bm); err != nil {
			metrics.BookmarkWritesTotal.WithLabelValues("error").Inc()
			b.logger.Warn("Не удалось сохранить закладку", zap.String("file", bm.FilePath), zap.Error(err))
			b.report(&BookmarkError{Path: bm.FilePath, Op: "write", Err: err})
			b.mu.Lock()
			b.entries[bm.FilePath].pending = true
			b.mu.Unlock()
			continue
		}
		metrics.BookmarkWritesTotal.WithLabelValues("ok").Inc()
		b.logger.Debug("Закладка сохранена", zap.String("file", bm.FilePath), zap.Time("ts", bm.LogicalTimestamp))
	}
}
