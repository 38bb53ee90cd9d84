package tailer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/hpcloud/tail/watch"
	"go.uber.org/zap"
	"gopkg.in/tomb.v1"
)

// Подменяются в тестах.
var (
	openFile         = openShared
	sharingViolation = isSharingViolation
)

// open открывает файл на разделяемое чтение: ждёт его появления и
// повторяет попытку при нарушении совместного доступа.
func (t *FileTailer) open(ctx context.Context) (*os.File, error) {
	attempt := 0
	for {
		f, err := openFile(t.cfg.Path)
		if err == nil {
			return f, nil
		}
		switch {
		case errors.Is(err, fs.ErrNotExist):
			t.logger.Debug("Файл не найден, ждём его создания", zap.String("file", t.cfg.Path))
			if err := waitUntilCreated(ctx, t.cfg.Path); err != nil {
				return nil, err
			}
			attempt = 0
		case sharingViolation(err) && attempt < t.cfg.OpenRetries:
			attempt++
			t.logger.Debug("Файл заблокирован другим процессом, повторяем",
				zap.String("file", t.cfg.Path), zap.Int("attempt", attempt), zap.Error(err))
			if err := sleep(ctx, t.cfg.OpenBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

// waitUntilCreated опрашивает путь, пока файл не появится или не будет отменён ctx.
// Уведомлениям файловой системы здесь не доверяем: только опрос.
func waitUntilCreated(ctx context.Context, path string) error {
	var tb tomb.Tomb
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			tb.Kill(nil)
		case <-done:
		}
	}()

	err := watch.NewPollingFileWatcher(path).BlockUntilExists(&tb)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
