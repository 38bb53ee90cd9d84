package parser

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// LookupEncoding находит кодировку по имени (utf-8, windows-1251, koi8-r, ...).
// Пустое имя: UTF-8. Кодировки, в которых разделитель, кавычка и перевод строки
// не являются одиночными ASCII-байтами (UTF-16 и т.п.), не поддерживаются.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)
	switch canonical {
	case "utf-16be", "utf-16le", "iso-2022-jp", "shift_jis", "big5", "gbk", "gb18030", "euc-kr", "replacement":
		return nil, fmt.Errorf("encoding %q is not ASCII-transparent and cannot be tailed", name)
	}
	return enc, nil
}

func isUTF8(enc encoding.Encoding) bool {
	if enc == unicode.UTF8 {
		return true
	}
	name, err := htmlindex.Name(enc)
	return err == nil && name == "utf-8"
}
