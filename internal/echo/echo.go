// Package echo печатает записи в консоль и при необходимости дублирует их в файл "<лог>.echo" рядом с источником.
package echo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"CsvLogPump/internal/models"
)

const (
	Suffix          = ".echo"
	timestampLayout = "2006-01-02 15:04:05.000"
)

type Echo struct {
	out    io.Writer
	fs     afero.Fs
	toFile bool
	delim  string

	mu    sync.Mutex
	files map[string]afero.File
}

// New: out для консоли (nil без вывода), fs для .echo файлов (nil означает ОС).
func New(out io.Writer, fs afero.Fs, toFile bool, delimiter byte) *Echo {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Echo{
		out:    out,
		fs:     fs,
		toFile: toFile,
		delim:  string(delimiter),
		files:  make(map[string]afero.File),
	}
}

// Write печатает "[<время> <файл>]: <поля через разделитель>".
func (e *Echo) Write(rec models.LogRecord) error {
	line := strings.Join(rec.Fields, e.delim)
	name := filepath.Base(rec.FilePath)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.toFile {
		f, err := e.echoFile(rec.FilePath)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(f, line+"\n"); err != nil {
			return fmt.Errorf("write echo for %s: %w", name, err)
		}
	}
	if e.out != nil {
		if _, err := fmt.Fprintf(e.out, "[%s %s]: %s\n", rec.LogTimestamp.Format(timestampLayout), name, line); err != nil {
			return err
		}
	}
	return nil
}

func (e *Echo) echoFile(source string) (afero.File, error) {
	if f, ok := e.files[source]; ok {
		return f, nil
	}
	f, err := e.fs.OpenFile(source+Suffix, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open echo file: %w", err)
	}
	e.files[source] = f
	return f, nil
}

func (e *Echo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for path, f := range e.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.files, path)
	}
	return firstErr
}
