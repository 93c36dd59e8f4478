package recipient

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseFile_CSVWithEmailHeader(t *testing.T) {
	t.Parallel()

	data := "name,Email\nAda,ada@example.com\nBob,not-an-address\nCy,cy@example.org\n"

	got, err := ParseFile("list.csv", strings.NewReader(data), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com", "cy@example.org"}, got)
}

func TestParseFile_CSVFirstColumn(t *testing.T) {
	t.Parallel()

	data := "a@x.com\nbad\nb@y.com,extra,cells\n"

	got, err := ParseFile("LIST.CSV", strings.NewReader(data), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, got)
}

func TestParseFile_CSVMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseFile("list.csv", strings.NewReader("\"unterminated\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv")
}

func TestParseFile_XLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "E-mail"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Ada"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "ada@example.com"))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "Bob"))
	require.NoError(t, f.SetCellValue("Sheet1", "B3", "bob"))
	require.NoError(t, f.SetCellValue("Sheet1", "A4", "Cy"))
	require.NoError(t, f.SetCellValue("Sheet1", "B4", "cy@example.org"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	got, err := ParseFile("people.xlsx", buf, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com", "cy@example.org"}, got)
}

func TestParseFile_XLSXCorrupt(t *testing.T) {
	t.Parallel()

	_, err := ParseFile("people.xlsx", strings.NewReader("not a zip"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx")
}

func TestParseFile_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := ParseFile("people.pdf", strings.NewReader(""), false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseFile_Empty(t *testing.T) {
	t.Parallel()

	got, err := ParseFile("empty.csv", strings.NewReader(""), false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileSource_Fetch(t *testing.T) {
	t.Parallel()

	src := NewFileSource("/tmp/uploads/list.csv", []byte("a@x.com\na@x.com\nb@y.com\n"), true)

	assert.Equal(t, "file:list.csv", src.Name())
	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, got)
}

func TestStaticSource_Fetch(t *testing.T) {
	t.Parallel()

	values := []string{"a@x.com", "bad", "b@y.com"}
	src := NewStaticSource(values, false)
	values[0] = "mutated"

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, got)
	assert.Equal(t, "static", src.Name())
}

func TestStaticSource_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := NewStaticSource([]string{"a@x.com"}, false).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}
