package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

const (
	DefaultDelimiter byte = '|'
	DefaultQuote     byte = '"'

	readBufferSize = 64 * 1024
)

var (
	// ErrIncomplete: хвост потока содержит незавершённую запись. Это не ошибка данных:
	// запись нужно перечитать, когда в файл допишут остальное.
	ErrIncomplete = errors.New("incomplete record at end of stream")

	ErrBareQuote         = errors.New("unexpected character after closing quote")
	ErrUnterminatedQuote = errors.New("quoted field is not terminated")
	ErrDecode            = errors.New("field cannot be decoded")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Fault: ошибка разбора с абсолютным смещением (в байтах) места, где разбор сломался.
// Восстановление после Fault: забота вызывающего кода, не парсера.
type Fault struct {
	Offset int64
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("parse fault at byte %d: %v", f.Offset, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Options: параметры диалекта CSV
type Options struct {
	Delimiter byte
	Quote     byte
	// Encoding: кодировка файла; nil означает UTF-8.
	Encoding encoding.Encoding
	// StrictEOF превращает открытую кавычку в конце потока из ErrIncomplete в Fault.
	StrictEOF bool
}

// Parser: инкрементальный разборщик CSV поверх байтового потока.
//
// Parser читает записи, пока они синтаксически завершены. Offset() всегда указывает на
// байт сразу за последней полностью разобранной записью; после ErrIncomplete или Fault
// парсер больше не используется: вызывающий код создаёт новый с нужного смещения.
type Parser struct {
	r      *bufio.Reader
	opts   Options
	dec    *encoding.Decoder
	read   int64 // абсолютная позиция следующего непрочитанного байта
	offset int64 // абсолютная позиция за последней завершённой записью
	err    error

	pendingQuote bool
}

// New создаёт парсер для потока r, первый байт которого находится по смещению offset в файле.
func New(r io.Reader, offset int64, opts Options) *Parser {
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}
	if opts.Quote == 0 {
		opts.Quote = DefaultQuote
	}
	p := &Parser{
		r:      bufio.NewReaderSize(r, readBufferSize),
		opts:   opts,
		read:   offset,
		offset: offset,
	}
	if opts.Encoding != nil && !isUTF8(opts.Encoding) {
		p.dec = opts.Encoding.NewDecoder()
	}
	if offset == 0 && p.dec == nil {
		p.skipBOM()
	}
	return p
}

// Offset возвращает смещение за последней завершённой записью (или пропущенной строкой).
func (p *Parser) Offset() int64 { return p.offset }

// PendingQuote сообщает, что поток закончился внутри поля в кавычках.
func (p *Parser) PendingQuote() bool { return p.pendingQuote }

// Next возвращает поля следующей завершённой записи.
// io.EOF означает конец потока ровно на границе записи, ErrIncomplete конец посреди записи.
func (p *Parser) Next() ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	fields, err := p.readRecord()
	if err != nil {
		p.err = err
		return nil, err
	}
	p.offset = p.read
	return fields, nil
}

// SkipLines пропускает n физических строк (до '\n' включительно), не разбирая кавычки.
// Если поток кончился раньше, возвращается io.EOF и Offset() не меняется.
func (p *Parser) SkipLines(n int) error {
	if p.err != nil {
		return p.err
	}
	for i := 0; i < n; i++ {
		for {
			chunk, err := p.r.ReadSlice('\n')
			p.read += int64(len(chunk))
			if err == nil {
				break
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			p.err = err
			return err
		}
	}
	p.offset = p.read
	return nil
}

func (p *Parser) readRecord() ([]string, error) {
	start := p.read
	var fields []string
	for {
		fieldStart := p.read
		b, err := p.readByte()
		if err != nil {
			return nil, p.atEOF(err, start)
		}

		var raw []byte
		if b == p.opts.Quote {
			raw, err = p.readQuoted(fieldStart)
			if err != nil {
				return nil, p.atEOF(err, start)
			}
			if b, err = p.readByte(); err != nil {
				return nil, p.atEOF(err, start)
			}
			if b == '\r' {
				crlf, err := p.crlf()
				if err != nil {
					return nil, p.atEOF(err, start)
				}
				if !crlf {
					return nil, &Fault{Offset: p.read - 1, Err: ErrBareQuote}
				}
				b = '\n'
			}
			if b != p.opts.Delimiter && b != '\n' {
				return nil, &Fault{Offset: p.read - 1, Err: ErrBareQuote}
			}
		} else {
			raw, b, err = p.readUnquoted(b)
			if err != nil {
				return nil, p.atEOF(err, start)
			}
		}

		value, err := p.decode(raw, fieldStart)
		if err != nil {
			return nil, err
		}
		fields = append(fields, value)
		if b == '\n' {
			return fields, nil
		}
	}
}

// readQuoted читает поле после открывающей кавычки, включая закрывающую.
// Переводы строк внутри сохраняются как есть, удвоенная кавычка даёт одну.
func (p *Parser) readQuoted(quoteAt int64) ([]byte, error) {
	var buf []byte
	for {
		b, err := p.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if p.opts.StrictEOF {
					return nil, &Fault{Offset: quoteAt, Err: ErrUnterminatedQuote}
				}
				p.pendingQuote = true
			}
			return nil, err
		}
		if b != p.opts.Quote {
			buf = append(buf, b)
			continue
		}
		next, err := p.r.Peek(1)
		if err == nil && next[0] == p.opts.Quote {
			_, _ = p.readByte()
			buf = append(buf, b)
			continue
		}
		return buf, nil
	}
}

// readUnquoted читает поле без кавычек, начиная с уже прочитанного байта first.
// Возвращает значение и разделитель, на котором поле закончилось ('\n' для конца записи).
func (p *Parser) readUnquoted(first byte) ([]byte, byte, error) {
	var buf []byte
	b := first
	for {
		switch b {
		case p.opts.Delimiter, '\n':
			return buf, b, nil
		case '\r':
			crlf, err := p.crlf()
			if err != nil {
				return nil, 0, err
			}
			if crlf {
				return buf, '\n', nil
			}
			buf = append(buf, b)
		default:
			buf = append(buf, b)
		}
		var err error
		if b, err = p.readByte(); err != nil {
			return nil, 0, err
		}
	}
}

// crlf вызывается после '\r': поглощает следующий '\n', если он есть.
func (p *Parser) crlf() (bool, error) {
	next, err := p.r.Peek(1)
	if err != nil {
		return false, err
	}
	if next[0] != '\n' {
		return false, nil
	}
	_, _ = p.readByte()
	return true, nil
}

func (p *Parser) decode(raw []byte, at int64) (string, error) {
	if p.dec == nil {
		if !utf8.Valid(raw) {
			return "", &Fault{Offset: at, Err: ErrDecode}
		}
		return string(raw), nil
	}
	out, err := p.dec.Bytes(raw)
	if err != nil {
		return "", &Fault{Offset: at, Err: fmt.Errorf("%w: %v", ErrDecode, err)}
	}
	return string(out), nil
}

func (p *Parser) atEOF(err error, start int64) error {
	var fault *Fault
	if errors.As(err, &fault) {
		return err
	}
	if !errors.Is(err, io.EOF) {
		return fmt.Errorf("read: %w", err)
	}
	if p.read == start {
		return io.EOF
	}
	return ErrIncomplete
}

func (p *Parser) readByte() (byte, error) {
	b, err := p.r.ReadByte()
	if err == nil {
		p.read++
	}
	return b, err
}

func (p *Parser) skipBOM() {
	head, err := p.r.Peek(len(utf8BOM))
	if err != nil || string(head) != string(utf8BOM) {
		return
	}
	_, _ = p.r.Discard(len(utf8BOM))
	p.read += int64(len(utf8BOM))
	p.offset = p.read
}
