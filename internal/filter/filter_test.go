package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CsvLogPump/internal/models"
)

var rec = models.LogRecord{
	FilePath:     "/logs/app.log",
	LogTimestamp: time.Date(2012, 6, 1, 18, 34, 49, 0, time.UTC),
	Fields:       []string{"2012-06-01 18:34:49", "Some.Namespace", "ERROR", "boom"},
	ColumnNames:  []string{"DateTime", "Namespace", "Level", "Message"},
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f, err := Compile("  ")
	require.NoError(t, err)
	assert.Nil(t, f)

	ok, err := f.Match(rec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterExpressions(t *testing.T) {
	cases := map[string]bool{
		`Field("Level") == "ERROR"`:                true,
		`Field("Level") in ["INFO", "DEBUG"]`:      false,
		`File endsWith ".log" && len(Fields) == 4`: true,
		`Fields[3] contains "oo"`:                  true,
		`Time.Hour() >= 20`:                        false,
		`Field("Missing") == ""`:                   true,
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			f, err := Compile(src)
			require.NoError(t, err)
			got, err := f.Match(rec)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestCompileRejectsNonBooleanAndBrokenExpressions(t *testing.T) {
	_, err := Compile(`File + "x"`)
	assert.Error(t, err)

	_, err = Compile(`Field(`)
	assert.Error(t, err)
}
