package tabular

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"folio/internal/retry"
)

// XLSXSource reads one sheet of a workbook. An empty Sheet means the first one.
type XLSXSource struct {
	o     opener
	Sheet string
}

func NewXLSXSource(client *http.Client, policy retry.Policy, sheet string) *XLSXSource {
	return &XLSXSource{o: newOpener(client, policy), Sheet: sheet}
}

func (s *XLSXSource) FetchRows(ctx context.Context, sourceID string) ([]Row, error) {
	data, err := s.o.read(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", sourceID, err)
	}
	defer f.Close()
	sheet := s.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", sheet, sourceID, err)
	}
	return rowsFromRecords(records), nil
}
