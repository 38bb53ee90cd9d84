// Package metrics: счётчики Prometheus для хвостинга и отправки.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvlogpump_records_total",
		Help: "Records emitted per source file.",
	}, []string{"file"})

	FaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvlogpump_faults_total",
		Help: "Faults reported on the fault stream, by kind.",
	}, []string{"kind"})

	BookmarkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvlogpump_bookmark_writes_total",
		Help: "Bookmark repository writes, by result.",
	}, []string{"result"})

	FilesTailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csvlogpump_files_tailed",
		Help: "Files currently being tailed.",
	})

	RowsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvlogpump_rows_sent_total",
		Help: "Rows handed to sinks, by sink and result.",
	}, []string{"sink", "result"})
)

// Fault kinds
const (
	KindParse    = "parse"
	KindFile     = "file"
	KindBookmark = "bookmark"
	KindOther    = "other"
)

// Serve отдаёт /metrics на addr до отмены ctx.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Метрики доступны", zap.String("listen", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
