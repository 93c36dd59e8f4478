package recipient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/bulkmail/bulkmail/internal/config"
)

func newSheetsServer(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, &gotPath
}

func newTestSheetsSource(t *testing.T, srv *httptest.Server, cfg config.SheetsConfig) *SheetsSource {
	t.Helper()

	src, err := NewSheetsSource(context.Background(), cfg, false,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return src
}

func TestSheetsSource_Fetch(t *testing.T) {
	srv, gotPath := newSheetsServer(t, http.StatusOK, `{
		"range": "Sayfa1!A1:A5",
		"majorDimension": "ROWS",
		"values": [["Email"], ["a@x.com"], ["bad"], [], [" b@y.com "]]
	}`)

	src := newTestSheetsSource(t, srv, config.SheetsConfig{
		SpreadsheetID: "sheet-123",
		SheetName:     "Sayfa1",
		Column:        "a",
		HeaderRows:    1,
	})

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, got)
	assert.True(t, strings.HasPrefix(*gotPath, "/v4/spreadsheets/sheet-123/values/"), *gotPath)
	assert.Equal(t, "sheets", src.Name())
}

func TestSheetsSource_NoValues(t *testing.T) {
	srv, _ := newSheetsServer(t, http.StatusOK, `{"range": "Sayfa1!A1:A1"}`)
	src := newTestSheetsSource(t, srv, config.SheetsConfig{SpreadsheetID: "sheet-123"})

	got, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Nil(t, got)
}

func TestSheetsSource_OnlyHeader(t *testing.T) {
	srv, _ := newSheetsServer(t, http.StatusOK, `{"values": [["Email"]]}`)
	src := newTestSheetsSource(t, srv, config.SheetsConfig{SpreadsheetID: "sheet-123", HeaderRows: 1})

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSheetsSource_HTTPError(t *testing.T) {
	srv, _ := newSheetsServer(t, http.StatusForbidden, `{"error": {"code": 403, "message": "forbidden"}}`)
	src := newTestSheetsSource(t, srv, config.SheetsConfig{SpreadsheetID: "sheet-123"})

	got, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets:")
	assert.Nil(t, got)
}

func TestNewSheetsSource_RequiresConfig(t *testing.T) {
	_, err := NewSheetsSource(context.Background(), config.SheetsConfig{}, false)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewSheetsSource(context.Background(), config.SheetsConfig{SpreadsheetID: "x"}, false)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(context.Background(), config.RecipientsConfig{Source: "static", Static: []string{"a@x.com", "bad"}})
	require.NoError(t, err)
	assert.Equal(t, "static", src.Name())
	list, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, list)

	_, err = NewSource(context.Background(), config.RecipientsConfig{Source: "sheets"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewSource(context.Background(), config.RecipientsConfig{Source: "ftp"})
	assert.Error(t, err)
}
