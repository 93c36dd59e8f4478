package recipient

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/bulkmail/bulkmail/internal/config"
)

// SheetsSource reads one column of a Google spreadsheet.
type SheetsSource struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
	headerRows    int
	dedupe        bool
}

// NewSheetsSource creates a SheetsSource. Without explicit client options it
// authenticates with the configured API key, or falls back to service account
// credentials.
func NewSheetsSource(ctx context.Context, cfg config.SheetsConfig, dedupe bool, opts ...option.ClientOption) (*SheetsSource, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id: %w", ErrNotConfigured)
	}

	if len(opts) == 0 {
		switch {
		case cfg.APIKey != "":
			opts = append(opts, option.WithAPIKey(cfg.APIKey))
		case cfg.CredentialsJSON != "":
			jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), sheets.SpreadsheetsReadonlyScope)
			if err != nil {
				return nil, fmt.Errorf("sheets: failed to parse credentials: %w", err)
			}
			opts = append(opts, option.WithHTTPClient(jwtConfig.Client(ctx)))
		default:
			return nil, fmt.Errorf("sheets: api key or credentials: %w", ErrNotConfigured)
		}
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Sayfa1"
	}
	column := strings.ToUpper(cfg.Column)
	if column == "" {
		column = "A"
	}

	return &SheetsSource{
		service:       svc,
		spreadsheetID: cfg.SpreadsheetID,
		readRange:     fmt.Sprintf("%s!%s:%s", sheetName, column, column),
		headerRows:    max(cfg.HeaderRows, 0),
		dedupe:        dedupe,
	}, nil
}

// Name implements Source.
func (s *SheetsSource) Name() string { return "sheets" }

// Fetch implements Source.
func (s *SheetsSource) Fetch(ctx context.Context) ([]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to read %s: %w", s.readRange, err)
	}
	if resp.Values == nil {
		return nil, fmt.Errorf("sheets: %w", ErrNoData)
	}

	rows := resp.Values
	if len(rows) <= s.headerRows {
		return []string{}, nil
	}
	rows = rows[s.headerRows:]

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		values = append(values, fmt.Sprint(row[0]))
	}

	return Filter(values, s.dedupe), nil
}

// NewSource builds the remote source selected by cfg.Source
func NewSource(ctx context.Context, cfg config.RecipientsConfig) (Source, error) {
	switch cfg.Source {
	case "sheets":
		src, err := NewSheetsSource(ctx, cfg.Sheets, cfg.Dedupe)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "static", "":
		return NewStaticSource(cfg.Static, cfg.Dedupe), nil
	default:
		return nil, fmt.Errorf("unknown recipient source %q", cfg.Source)
	}
}
