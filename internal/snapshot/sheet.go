package snapshot

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

// SheetStore keeps a snapshot in a Google Sheets tab.
type SheetStore struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetStore creates a store for the given spreadsheet. An empty sheet
// name means the first tab.
func NewSheetStore(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*SheetStore, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetStore{service: service, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

func (s *SheetStore) a1(r string) string {
	if s.sheet == "" {
		return r
	}
	return "'" + strings.ReplaceAll(s.sheet, "'", "''") + "'!" + r
}

// Load reads the snapshot columns as displayed text.
func (s *SheetStore) Load(ctx context.Context) (detect.Snapshot, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("A:F")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet %s: %w", s.spreadsheetID, err)
	}

	records := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = fmt.Sprint(v)
		}
		records = append(records, rec)
	}
	return DecodeRows(records), nil
}

// Save writes header and rows as raw text, so dates are not reinterpreted
// by the spreadsheet, and then clears the rows left over from a longer
// previous snapshot. A failed write leaves the previous snapshot readable.
func (s *SheetStore) Save(ctx context.Context, snap detect.Snapshot) error {
	records := EncodeRows(snap)
	values := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		row := make([]interface{}, len(rec))
		for i, c := range rec {
			row[i] = c
		}
		values = append(values, row)
	}

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.a1("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write spreadsheet %s: %w", s.spreadsheetID, err)
	}

	leftover := s.a1(fmt.Sprintf("A%d:F", len(records)+1))
	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, leftover, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear spreadsheet %s: %w", s.spreadsheetID, err)
	}
	return nil
}
