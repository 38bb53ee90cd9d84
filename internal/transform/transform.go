package transform

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"CsvLogPump/internal/models"
)

// ToRow превращает запись лога в строку ClickHouse.
// delimiter используется для восстановления исходной строки в колонке Line.
func ToRow(rec models.LogRecord, runID string, delimiter byte) (models.LogRow, error) {
	if rec.LogTimestamp.IsZero() {
		return models.LogRow{}, errors.New("запись без отметки времени")
	}
	if len(rec.Fields) == 0 {
		return models.LogRow{}, errors.New("запись без полей")
	}
	ts := rec.LogTimestamp
	return models.LogRow{
		RunID:      runID,
		EventDate:  time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		EventTime:  ts,
		FilePath:   rec.FilePath,
		FileName:   filepath.Base(rec.FilePath),
		Fields:     rec.Fields,
		Columns:    columnsOrEmpty(rec.ColumnNames),
		Line:       strings.Join(rec.Fields, string(delimiter)),
		InsertedAt: time.Now().UTC(),
	}, nil
}

func columnsOrEmpty(cols []string) []string {
	if cols == nil {
		return []string{}
	}
	return cols
}
