package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"

	"folio/internal/retry"
)

// CSVSource reads published CSV exports, either over HTTP or from disk.
type CSVSource struct {
	o opener
}

func NewCSVSource(client *http.Client, policy retry.Policy) *CSVSource {
	return &CSVSource{o: newOpener(client, policy)}
}

func (s *CSVSource) FetchRows(ctx context.Context, sourceID string) ([]Row, error) {
	data, err := s.o.read(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", sourceID, err)
	}
	return rowsFromRecords(records), nil
}
