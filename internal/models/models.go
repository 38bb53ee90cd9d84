package models

import "time"

// LogRecord: одна разобранная запись CSV-лога.
// Fields всегда непустой; порядок совпадает с порядком колонок в файле.
// ColumnNames равен nil, если имена колонок не заданы.
type LogRecord struct {
	FilePath     string
	LogTimestamp time.Time
	Fields       []string
	ColumnNames  []string
}

// Field возвращает значение колонки по имени (если имена колонок известны).
func (r LogRecord) Field(name string) (string, bool) {
	for i, c := range r.ColumnNames {
		if c == name && i < len(r.Fields) {
			return r.Fields[i], true
		}
	}
	return "", false
}

// Bookmark: время последней полностью обработанной записи файла.
// Это не байтовое смещение, а логическое время из колонки времени.
type Bookmark struct {
	FilePath         string
	LogicalTimestamp time.Time
}

// LogRow: строка для вставки в ClickHouse
type LogRow struct {
	RunID      string
	EventDate  time.Time
	EventTime  time.Time
	FilePath   string
	FileName   string
	Fields     []string
	Columns    []string
	Line       string
	InsertedAt time.Time
}
