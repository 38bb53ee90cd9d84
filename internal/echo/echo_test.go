package echo

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CsvLogPump/internal/models"
)

func TestEchoWritesConsoleAndSideFile(t *testing.T) {
	var console bytes.Buffer
	fs := afero.NewMemMapFs()
	e := New(&console, fs, true, '|')

	rec := models.LogRecord{
		FilePath:     "/logs/app.log",
		LogTimestamp: time.Date(2012, 6, 1, 18, 34, 49, 853000000, time.UTC),
		Fields:       []string{"2012-06-01 18:34:49.853", "INFO", "Message 1", ""},
	}
	require.NoError(t, e.Write(rec))
	require.NoError(t, e.Write(rec))
	require.NoError(t, e.Close())

	assert.Equal(t,
		"[2012-06-01 18:34:49.853 app.log]: 2012-06-01 18:34:49.853|INFO|Message 1|\n"+
			"[2012-06-01 18:34:49.853 app.log]: 2012-06-01 18:34:49.853|INFO|Message 1|\n",
		console.String())

	data, err := afero.ReadFile(fs, "/logs/app.log.echo")
	require.NoError(t, err)
	assert.Equal(t, "2012-06-01 18:34:49.853|INFO|Message 1|\n2012-06-01 18:34:49.853|INFO|Message 1|\n", string(data))
}

func TestEchoWithoutFile(t *testing.T) {
	var console bytes.Buffer
	fs := afero.NewMemMapFs()
	e := New(&console, fs, false, ',')
	require.NoError(t, e.Write(models.LogRecord{FilePath: "a.csv", Fields: []string{"x", "y"}}))

	assert.Contains(t, console.String(), "a.csv]: x,y")
	exists, err := afero.Exists(fs, "a.csv.echo")
	require.NoError(t, err)
	assert.False(t, exists)
}
