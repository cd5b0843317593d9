// Package tabular fetches row sets from the journal's external sheets. A row is
// a map from column header to cell text; the first row of a sheet is the header.
package tabular

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"folio/internal/fault"
	"folio/internal/retry"
)

// Row is one record keyed by column header.
type Row = map[string]string

// Source delivers the latest published snapshot of a sheet. sourceID is the
// locator of the sheet: an http(s) URL, a local path, or a key for StaticSource.
type Source interface {
	FetchRows(ctx context.Context, sourceID string) ([]Row, error)
}

// StatusError is returned for a non-2xx response. 5xx and 429 responses are
// wrapped as transient and retried.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

const defaultTimeout = 15 * time.Second

type opener struct {
	client *http.Client
	policy retry.Policy
}

func newOpener(client *http.Client, policy retry.Policy) opener {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return opener{client: client, policy: policy}
}

// read returns the whole body behind a locator, retrying transient failures.
func (o opener) read(ctx context.Context, locator string) ([]byte, error) {
	if !isURL(locator) {
		data, err := os.ReadFile(locator)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", locator, err)
		}
		return data, nil
	}
	var body []byte
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		b, err := o.get(ctx, locator)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

func (o opener) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fault.Transient("fetch "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{URL: url, Status: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fault.Transient("fetch "+url, serr)
		}
		return nil, serr
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Transient("read "+url, err)
	}
	return data, nil
}

func isURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// rowsFromRecords turns a header row plus records into Rows. Blank headers are
// dropped, short records are padded, and rows with no content are skipped.
func rowsFromRecords(records [][]string) []Row {
	if len(records) == 0 {
		return nil
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	out := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		empty := true
		for i, h := range header {
			if h == "" {
				continue
			}
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			if v != "" {
				empty = false
			}
			row[h] = v
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}
