package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CsvLogPump/internal/metrics"
	"CsvLogPump/internal/models"
)

// Sender: приёмник пачек строк (ClickHouse).
type Sender interface {
	InsertBatch(ctx context.Context, rows []models.LogRow) error
}

// Batcher накапливает строки и отправляет их пачками:
// batchSize: сколько строк отправлять за раз,
// batchInterval: максимальный интервал между отправками.
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger
	sender        Sender
}

// NewBatcher создает новый batcher
func NewBatcher(batchSize int, batchInterval time.Duration, logger *zap.Logger, sender Sender) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		logger:        logger,
		sender:        sender,
	}
}

// Run собирает пачки до отмены ctx или закрытия in; остаток отправляется перед выходом.
func (b *Batcher) Run(ctx context.Context, in <-chan models.LogRow) {
	batch := make([]models.LogRow, 0, b.batchSize)
	timer := time.NewTimer(b.batchInterval)
	defer timer.Stop()

	flush := func(reason string) {
		if len(batch) == 0 {
			return
		}
		b.logger.Debug("Отправляем batch", zap.Int("count", len(batch)), zap.String("reason", reason))
		// отправка при остановке не должна прерываться отменой сервиса
		err := b.sender.InsertBatch(context.WithoutCancel(ctx), batch)
		if err != nil {
			metrics.RowsSent.WithLabelValues("clickhouse", "error").Add(float64(len(batch)))
			b.logger.Error("Ошибка при отправке batch", zap.Error(err), zap.Int("count", len(batch)))
		} else {
			metrics.RowsSent.WithLabelValues("clickhouse", "ok").Add(float64(len(batch)))
			b.logger.Info("Batch успешно отправлен", zap.Int("count", len(batch)), zap.String("reason", reason))
		}
		batch = make([]models.LogRow, 0, b.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush("graceful shutdown")
			return
		case row, ok := <-in:
			if !ok {
				flush("input closed")
				return
			}
			batch = append(batch, row)
			if len(batch) >= b.batchSize {
				flush("batch size reached")
				timer.Reset(b.batchInterval)
			}
		case <-timer.C:
			flush("interval")
			timer.Reset(b.batchInterval)
		}
	}
}
