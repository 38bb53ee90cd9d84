// Package filter отбирает записи выражением expr-lang перед отправкой в приёмники.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"CsvLogPump/internal/models"
)

// Env: окружение выражения. Пример: `Field("Level") in ["ERROR", "FATAL"] && File endsWith ".log"`.
type Env struct {
	File    string
	Time    time.Time
	Fields  []string
	Columns []string

	rec models.LogRecord
}

// Field: значение колонки по имени; пустая строка, если колонки нет.
func (e *Env) Field(name string) string {
	v, _ := e.rec.Field(name)
	return v
}

type Filter struct {
	src     string
	program *vm.Program
}

// Compile компилирует выражение. Пустое выражение: фильтр пропускает всё (nil).
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(&Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// Match вычисляет выражение для записи. Nil-фильтр пропускает всё.
func (f *Filter) Match(rec models.LogRecord) (bool, error) {
	if f == nil {
		return true, nil
	}
	env := &Env{
		File:    rec.FilePath,
		Time:    rec.LogTimestamp,
		Fields:  rec.Fields,
		Columns: rec.ColumnNames,
		rec:     rec,
	}
	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("run filter %q: %w", f.src, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}
