package tailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// TimestampParser разбирает значение колонки времени.
// Пустой Layout: автоопределение формата (dateparse), иначе time.ParseInLocation.
type TimestampParser struct {
	Layout   string
	Location *time.Location
}

func (p TimestampParser) Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	var (
		ts  time.Time
		err error
	)
	if p.Layout != "" {
		ts, err = time.ParseInLocation(p.Layout, value, loc)
	} else {
		ts, err = dateparse.ParseIn(value, loc)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrTimestamp, value, err)
	}
	return ts, nil
}
