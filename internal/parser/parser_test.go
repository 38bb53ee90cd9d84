package parser

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func parseAll(t *testing.T, p *Parser) [][]string {
	t.Helper()
	var out [][]string
	for {
		fields, err := p.Next()
		if err != nil {
			return out
		}
		out = append(out, fields)
	}
}

func TestNextSplitsOnDelimiterAndKeepsTrailingEmptyField(t *testing.T) {
	line := "2012-06-01 18:34:49.8539|Some.Namespace|MACHINE-X|INFO|Message 1|\n"
	p := New(strings.NewReader(line), 0, Options{})

	fields, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"2012-06-01 18:34:49.8539", "Some.Namespace", "MACHINE-X", "INFO", "Message 1", ""}, fields)
	assert.Equal(t, int64(len(line)), p.Offset())

	_, err = p.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestQuotedFieldsKeepDelimitersNewlinesAndEscapedQuotes(t *testing.T) {
	cases := map[string]struct {
		input string
		want  []string
	}{
		"delimiter inside quotes": {"a|\"b|c\"|d\n", []string{"a", "b|c", "d"}},
		"doubled quote":           {"a|\"say \"\"hi\"\"\"\n", []string{"a", "say \"hi\""}},
		"lf inside quotes":        {"a|\"foo\nbar\"\n", []string{"a", "foo\nbar"}},
		"crlf inside quotes":      {"a|\"foo\r\nbar\"\r\n", []string{"a", "foo\r\nbar"}},
		"quote in unquoted field": {"a|b\"c\n", []string{"a", "b\"c"}},
		"lone cr is data":         {"a\rb|c\n", []string{"a\rb", "c"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := New(strings.NewReader(tc.input), 0, Options{})
			fields, err := p.Next()
			require.NoError(t, err)
			assert.Equal(t, tc.want, fields)
			assert.Equal(t, int64(len(tc.input)), p.Offset())
		})
	}
}

func TestCRLFRecordTerminator(t *testing.T) {
	p := New(strings.NewReader("a|b\r\nc|d\r\n"), 0, Options{})
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, parseAll(t, p))
	assert.Equal(t, int64(10), p.Offset())
}

func TestIncompleteRecordLeavesOffsetAtLastCompleteRecord(t *testing.T) {
	input := "a|b\nc|d"
	p := New(strings.NewReader(input), 100, Options{})

	fields, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)

	_, err = p.Next()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, int64(104), p.Offset())
	assert.False(t, p.PendingQuote())

	// повторный вызов возвращает ту же ошибку
	_, err = p.Next()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestUnterminatedQuoteIsIncompleteUnlessStrict(t *testing.T) {
	input := "ok|1\nbad|\"no closing quote\nnext|line\n"

	p := New(strings.NewReader(input), 0, Options{})
	_, err := p.Next()
	require.NoError(t, err)
	_, err = p.Next()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.True(t, p.PendingQuote())
	assert.Equal(t, int64(5), p.Offset())

	strict := New(strings.NewReader(input), 0, Options{StrictEOF: true})
	_, err = strict.Next()
	require.NoError(t, err)
	_, err = strict.Next()
	var fault *Fault
	require.True(t, errors.As(err, &fault))
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
	assert.Equal(t, int64(9), fault.Offset)
}

func TestCharacterAfterClosingQuoteIsFault(t *testing.T) {
	input := "a|\"x\"y|z\n"
	p := New(strings.NewReader(input), 10, Options{})
	_, err := p.Next()

	var fault *Fault
	require.True(t, errors.As(err, &fault))
	assert.ErrorIs(t, err, ErrBareQuote)
	assert.Equal(t, int64(15), fault.Offset)
	assert.Equal(t, int64(10), p.Offset())
}

func TestInvalidUTF8IsDecodeFault(t *testing.T) {
	p := New(strings.NewReader("a|\xff\xfe\n"), 0, Options{})
	_, err := p.Next()
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodesSingleByteEncodings(t *testing.T) {
	raw, err := charmap.Windows1251.NewEncoder().String("Привет|мир\n")
	require.NoError(t, err)

	p := New(strings.NewReader(raw), 0, Options{Encoding: charmap.Windows1251})
	fields, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"Привет", "мир"}, fields)
}

func TestSkipsUTF8BOMAtFileStart(t *testing.T) {
	p := New(strings.NewReader("\xEF\xBB\xBFa|b\n"), 0, Options{})
	assert.Equal(t, int64(3), p.Offset())
	fields, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)
}

func TestSkipLines(t *testing.T) {
	input := "one\ntwo\nthree|3\n"
	p := New(strings.NewReader(input), 0, Options{})
	require.NoError(t, p.SkipLines(2))
	assert.Equal(t, int64(8), p.Offset())

	fields, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "3"}, fields)

	short := New(strings.NewReader("one\ntwo"), 0, Options{})
	assert.ErrorIs(t, short.SkipLines(2), io.EOF)
	assert.Equal(t, int64(0), short.Offset())
}

func TestCustomDelimiter(t *testing.T) {
	p := New(strings.NewReader("a,\"b,c\",d\n"), 0, Options{Delimiter: ','})
	fields, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b,c", "d"}, fields)
}

func TestLookupEncoding(t *testing.T) {
	enc, err := LookupEncoding("")
	require.NoError(t, err)
	assert.True(t, isUTF8(enc))

	enc, err = LookupEncoding("windows-1251")
	require.NoError(t, err)
	assert.Equal(t, charmap.Windows1251, enc)

	_, err = LookupEncoding("utf-16le")
	assert.Error(t, err)

	_, err = LookupEncoding("no-such-charset")
	assert.Error(t, err)
}
