// Package tailer следит за одним растущим CSV-файлом: дочитывает новые записи,
// переживает ротацию и усечение, восстанавливается после битых строк.
package tailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"CsvLogPump/internal/models"
	"CsvLogPump/internal/parser"
)

const (
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultQuoteStallTimeout = time.Second
	DefaultOpenRetries       = 5
	DefaultOpenBackoff       = 100 * time.Millisecond
)

// errReopen: путь теперь указывает на другой файл или файла нет. Старый дескриптор дочитан, открываем заново.
var errReopen = errors.New("file replaced")

// Config: параметры хвоста одного файла.
type Config struct {
	Path string
	// Columns прикрепляются к каждой записи; nil: имена колонок не заданы.
	Columns         []string
	TimestampColumn int
	Timestamps      TimestampParser
	Parser          parser.Options
	// Since: закладка. Записи раньше Since не выдаются, равные выдаются повторно.
	Since time.Time

	PollInterval time.Duration
	// QuoteStallTimeout: сколько ждать роста файла, пока открытая кавычка висит в конце потока;
	// после этого кавычка считается ошибкой. Отрицательное значение отключает проверку.
	QuoteStallTimeout time.Duration
	OpenRetries       int
	OpenBackoff       time.Duration

	Logger *zap.Logger
	// Report получает восстановленные ошибки (*RecordFault). Вызывается из горутины хвоста.
	Report func(error)
}

// FileTailer владеет дескриптором файла и позицией чтения. Не потокобезопасен, кроме State().
type FileTailer struct {
	cfg    Config
	logger *zap.Logger
	state  atomic.Int32

	pos        int64
	recovering bool
	// strictAt: позиция, с которой разбор идёт в строгом режиме (висящая кавычка признана ошибкой); -1, если такой нет.
	strictAt int64
}

// New проверяет конфигурацию и подставляет значения по умолчанию.
func New(cfg Config) (*FileTailer, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidConfig)
	}
	if cfg.TimestampColumn < 0 {
		return nil, fmt.Errorf("%w: negative timestamp column %d", ErrInvalidConfig, cfg.TimestampColumn)
	}
	if cfg.Columns != nil && cfg.TimestampColumn >= len(cfg.Columns) {
		return nil, fmt.Errorf("%w: timestamp column %d is out of range for %d columns",
			ErrInvalidConfig, cfg.TimestampColumn, len(cfg.Columns))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QuoteStallTimeout == 0 {
		cfg.QuoteStallTimeout = DefaultQuoteStallTimeout
	}
	if cfg.OpenRetries <= 0 {
		cfg.OpenRetries = DefaultOpenRetries
	}
	if cfg.OpenBackoff <= 0 {
		cfg.OpenBackoff = DefaultOpenBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Report == nil {
		cfg.Report = func(error) {}
	}
	t := &FileTailer{
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("file", cfg.Path)),
		strictAt: -1,
	}
	t.state.Store(int32(StateStopped))
	return t, nil
}

func (t *FileTailer) Path() string { return t.cfg.Path }

func (t *FileTailer) State() State { return State(t.state.Load()) }

func (t *FileTailer) setState(s State) {
	if State(t.state.Swap(int32(s))) != s {
		t.logger.Debug("Состояние хвоста", zap.Stringer("state", s))
	}
}

// Run читает файл с начала и выдаёт записи в out, пока ctx не отменён.
// Возвращает ctx.Err() при отмене и *FileError при фатальной ошибке файла.
func (t *FileTailer) Run(ctx context.Context, out chan<- models.LogRecord) error {
	defer t.setState(StateStopped)
	for {
		t.setState(StateOpening)
		f, err := t.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &FileError{Path: t.cfg.Path, Err: err}
		}
		err = t.follow(ctx, f, out)
		_ = f.Close()
		switch {
		case errors.Is(err, errReopen):
			t.logger.Info("Файл заменён, открываем заново")
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return &FileError{Path: t.cfg.Path, Err: err}
		}
	}
}

// follow: цикл Reading/Idle для одного открытого дескриптора.
func (t *FileTailer) follow(ctx context.Context, f *os.File, out chan<- models.LogRecord) error {
	t.pos = 0
	t.recovering = false
	t.strictAt = -1
	lastSize := int64(-1)
	// stallPos: позиция, на которой висит открытая кавычка; таймер не сбрасывается, пока позиция стоит
	stallPos := int64(-1)
	var stalledSince time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		size := info.Size()
		if size < t.pos {
			t.logger.Info("Файл усечён, читаем с начала", zap.Int64("size", size), zap.Int64("pos", t.pos))
			t.pos = 0
			t.recovering = false
			t.strictAt = -1
			lastSize = -1
			stallPos = -1
			stalledSince = time.Time{}
		}

		if t.strictAt < 0 && stallPos == t.pos && !stalledSince.IsZero() &&
			t.cfg.QuoteStallTimeout > 0 && time.Since(stalledSince) >= t.cfg.QuoteStallTimeout {
			t.logger.Debug("Кавычка не закрыта, разбираем строго", zap.Int64("pos", t.pos))
			t.strictAt = t.pos
			lastSize = -1
		}

		if size != lastSize {
			t.setState(StateReading)
			before := t.pos
			pending, err := t.readPass(ctx, f, size, out)
			if err != nil {
				return err
			}
			lastSize = size
			if t.pos != t.strictAt {
				t.strictAt = -1
			}
			switch {
			case !pending || t.strictAt >= 0:
				stallPos = -1
				stalledSince = time.Time{}
			case stallPos != t.pos:
				stallPos = t.pos
				stalledSince = time.Now()
			}
			if t.pos != before {
				continue
			}
		}

		t.setState(StateIdle)
		if err := t.checkReplaced(f); err != nil {
			return err
		}
		if err := sleep(ctx, t.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// checkReplaced вызывается, когда всё доступное уже прочитано.
func (t *FileTailer) checkReplaced(f *os.File) error {
	current, err := os.Stat(t.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return errReopen
	}
	if err != nil {
		return nil
	}
	opened, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if !os.SameFile(current, opened) {
		return errReopen
	}
	return nil
}

// readPass разбирает область [t.pos, size). После k-й ошибки подряд разбор начинается заново
// с последней удачной записи с пропуском k физических строк. Если после пропуска данные кончились
// раньше удачной записи, позиция остаётся на последней удачной записи.
// Возвращает, висит ли в конце открытая кавычка.
func (t *FileTailer) readPass(ctx context.Context, f *os.File, size int64, out chan<- models.LogRecord) (bool, error) {
	anchor := t.pos
	faults := 0
	for {
		opts := t.cfg.Parser
		opts.StrictEOF = t.strictAt >= 0 && anchor == t.strictAt
		p := parser.New(io.NewSectionReader(f, anchor, size-anchor), anchor, opts)

		if faults > 0 {
			t.setState(StateRecovering)
			if err := p.SkipLines(faults); err != nil {
				if errors.Is(err, io.EOF) {
					t.pos = anchor
					return false, nil
				}
				return false, fmt.Errorf("read: %w", err)
			}
		}

		for {
			start := p.Offset()
			fields, err := p.Next()
			if err != nil {
				var fault *parser.Fault
				switch {
				case errors.Is(err, io.EOF), errors.Is(err, parser.ErrIncomplete):
					// пропуск строк фиксируется только вместе с удачной записью после него
					if faults == 0 {
						t.pos = p.Offset()
					} else {
						t.pos = anchor
					}
					return p.PendingQuote(), nil
				case errors.As(err, &fault):
					t.fault(&RecordFault{Path: t.cfg.Path, Offset: fault.Offset, Err: err})
				default:
					return false, err
				}
				break
			}

			rec, ok, err := t.record(fields)
			if err != nil {
				t.fault(&RecordFault{Path: t.cfg.Path, Offset: start, Err: err})
				break
			}
			anchor = p.Offset()
			t.pos = anchor
			faults = 0
			t.recovering = false
			if !ok || rec.LogTimestamp.Before(t.cfg.Since) {
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		faults++
	}
}

// fault сообщает об ошибке один раз на серию: следующая прозвучит только после удачной записи.
func (t *FileTailer) fault(err error) {
	if t.recovering {
		t.logger.Debug("Повторная ошибка разбора", zap.Error(err))
		return
	}
	t.recovering = true
	t.logger.Warn("Ошибка разбора, пропускаем строку", zap.Error(err))
	t.cfg.Report(err)
}

// record превращает поля в запись. ok=false: пустая запись, её молча пропускаем.
func (t *FileTailer) record(fields []string) (models.LogRecord, bool, error) {
	if allEmpty(fields) {
		return models.LogRecord{}, false, nil
	}
	if t.cfg.TimestampColumn >= len(fields) {
		return models.LogRecord{}, false, fmt.Errorf("%w: %d fields, column %d",
			ErrMissingTimestamp, len(fields), t.cfg.TimestampColumn)
	}
	raw := fields[t.cfg.TimestampColumn]
	if strings.TrimSpace(raw) == "" {
		return models.LogRecord{}, false, nil
	}
	ts, err := t.cfg.Timestamps.Parse(raw)
	if err != nil {
		return models.LogRecord{}, false, err
	}
	return models.LogRecord{
		FilePath:     t.cfg.Path,
		LogTimestamp: ts,
		Fields:       fields,
		ColumnNames:  t.cfg.Columns,
	}, true, nil
}

func allEmpty(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
