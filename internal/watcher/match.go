package watcher

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher отбирает файлы по имени. include задаётся glob (doublestar), exclude регулярным выражением.
type Matcher struct {
	include string
	exclude *regexp.Regexp
}

func NewMatcher(include, exclude string) (*Matcher, error) {
	m := &Matcher{include: include}
	if include != "" && !doublestar.ValidatePattern(include) {
		return nil, fmt.Errorf("invalid filter %q", include)
	}
	if exclude != "" {
		re, err := regexp.Compile(exclude)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", exclude, err)
		}
		m.exclude = re
	}
	return m, nil
}

// Match проверяет только базовое имя файла.
func (m *Matcher) Match(path string) bool {
	name := filepath.Base(path)
	if m.include != "" {
		if ok, _ := doublestar.Match(m.include, name); !ok {
			return false
		}
	}
	return m.exclude == nil || !m.exclude.MatchString(name)
}
