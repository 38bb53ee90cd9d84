package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"CsvLogPump/internal/batch"
	"CsvLogPump/internal/clickhouseclient"
	"CsvLogPump/internal/config"
	"CsvLogPump/internal/echo"
	"CsvLogPump/internal/filter"
	"CsvLogPump/internal/logger"
	"CsvLogPump/internal/metrics"
	"CsvLogPump/internal/models"
	"CsvLogPump/internal/storage"
	"CsvLogPump/internal/tailing"
	"CsvLogPump/internal/transform"
)

func runPump(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootLogger, err := logger.InitZap(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	rootLogger = rootLogger.With(zap.String("run_id", runID))
	lg := rootLogger.Named("main")
	defer lg.Sync()
	lg.Info("Сервис CsvLogPump стартует…", zap.String("path", cfg.Source.Path))

	store, err := storage.Open(cfg.Bookmarks)
	if err != nil {
		return fmt.Errorf("open bookmark storage: %w", err)
	}
	defer store.Close()
	lg.Info("Хранилище закладок открыто", zap.String("storage", cfg.Bookmarks.Storage))

	recordFilter, err := filter.Compile(cfg.Output.Filter)
	if err != nil {
		return err
	}
	delimiter := cfg.Source.Delimiter[0]

	var echoSink *echo.Echo
	if cfg.Output.Echo || cfg.Output.EchoToFile {
		var console io.Writer
		if cfg.Output.Echo {
			console = os.Stdout
		}
		echoSink = echo.New(console, nil, cfg.Output.EchoToFile, delimiter)
		defer echoSink.Close()
	}

	var (
		rows    chan models.LogRow
		batchWG sync.WaitGroup
	)
	if cfg.ClickHouse.Enabled() {
		chClient, err := clickhouseclient.New(cfg.ClickHouse, rootLogger.Named("clickhouse"))
		if err != nil {
			return fmt.Errorf("подключение к ClickHouse: %w", err)
		}
		defer chClient.Close()
		if err := chClient.EnsureTable(ctx); err != nil {
			return err
		}
		rows = make(chan models.LogRow, cfg.Batch.Size*2)
		batcher := batch.NewBatcher(cfg.Batch.Size, cfg.Batch.Interval, rootLogger.Named("batcher"), chClient)
		batchWG.Add(1)
		// batcher останавливается по закрытию rows, чтобы дослать всё, что успели прочитать
		go func() { defer batchWG.Done(); batcher.Run(context.Background(), rows) }()
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, rootLogger.Named("metrics")); err != nil {
				lg.Error("Сервер метрик остановлен", zap.Error(err))
			}
		}()
	}

	tl := tailing.New(rootLogger.Named("tailing"))
	defer tl.Close()
	go func() {
		for err := range tl.Faults() {
			lg.Warn("Ошибка хвостинга", zap.Error(err))
		}
	}()

	sess, err := tl.Tail(ctx, tailing.FromConfig(cfg.Source, cfg.Bookmarks), store)
	if err != nil {
		return err
	}

	for rec := range sess.Records() {
		ok, err := recordFilter.Match(rec)
		if err != nil {
			lg.Warn("Ошибка фильтра, запись пропущена", zap.Error(err), zap.String("file", rec.FilePath))
			continue
		}
		if !ok {
			continue
		}
		if echoSink != nil {
			if err := echoSink.Write(rec); err != nil {
				lg.Error("Ошибка эха", zap.Error(err))
			}
		}
		if rows != nil {
			row, err := transform.ToRow(rec, runID, delimiter)
			if err != nil {
				lg.Warn("Запись пропущена", zap.Error(err), zap.String("file", rec.FilePath))
				continue
			}
			rows <- row
		}
	}

	if err := sess.Close(); err != nil {
		lg.Warn("Остановка хвостинга", zap.Error(err))
	}
	if rows != nil {
		close(rows)
		batchWG.Wait()
	}

	if err := sess.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("Сервис завершил работу")
	return nil
}
