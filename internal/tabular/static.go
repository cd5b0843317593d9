package tabular

import (
	"context"
	"fmt"
)

// StaticSource serves fixed rows keyed by source id.
type StaticSource map[string][]Row

func (s StaticSource) FetchRows(_ context.Context, sourceID string) ([]Row, error) {
	rows, ok := s[sourceID]
	if !ok {
		return nil, fmt.Errorf("unknown static source %q", sourceID)
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}
