package tailing

import (
	"errors"
	"fmt"

	"CsvLogPump/internal/metrics"
	"CsvLogPump/internal/tailer"
)

// BookmarkError: не удалось прочитать или записать закладку. Хвостинг продолжается.
type BookmarkError struct {
	Path string
	Op   string
	Err  error
}

func (e *BookmarkError) Error() string {
	return fmt.Sprintf("bookmark %s for %s: %v", e.Op, e.Path, e.Err)
}

func (e *BookmarkError) Unwrap() error { return e.Err }

func faultKind(err error) string {
	var (
		rf *tailer.RecordFault
		fe *tailer.FileError
		be *BookmarkError
	)
	switch {
	case errors.As(err, &rf):
		return metrics.KindParse
	case errors.As(err, &be):
		return metrics.KindBookmark
	case errors.As(err, &fe):
		return metrics.KindFile
	default:
		return metrics.KindOther
	}
}
