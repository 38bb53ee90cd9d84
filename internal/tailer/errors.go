package tailer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig: конфигурация хвоста отклонена при старте.
	ErrInvalidConfig = errors.New("invalid tailer config")

	ErrMissingTimestamp = errors.New("record has no timestamp column")
	ErrTimestamp        = errors.New("timestamp cannot be parsed")
)

// RecordFault: восстановленная ошибка содержимого файла (битая запись или её отметка времени).
// Хвостинг после неё продолжается.
type RecordFault struct {
	Path   string
	Offset int64
	Err    error
}

func (f *RecordFault) Error() string {
	return fmt.Sprintf("%s: malformed record at byte %d: %v", f.Path, f.Offset, f.Err)
}

func (f *RecordFault) Unwrap() error { return f.Err }

// FileError: фатальная ошибка файла, хвост этого файла остановлен.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("tail %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
