package reconcile

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"folio/internal/logging"
)

// Fetcher delivers the rows of a tabular source.
type Fetcher interface {
	FetchRows(ctx context.Context, sourceID string) ([]map[string]string, error)
}

// FetchError reports which feed failed. It is distinct from an empty queue.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s rows: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

const (
	SourceIncoming    = "incoming"
	SourceAssignments = "assignments"
)

// Service fetches both feeds and reconciles them.
type Service struct {
	Incoming      Fetcher
	Assignments   Fetcher
	IncomingID    string
	AssignmentsID string
	Schema        Schema
	Logger        *logrus.Logger
}

// Result is the work queue with its stats.
type Result struct {
	Items []WorkItem `json:"items"`
	Stats Stats      `json:"stats"`
}

// WorkQueue fetches both sources concurrently. The two snapshots may be taken
// at different instants; a failure of either aborts the pass with a *FetchError.
func (s *Service) WorkQueue(ctx context.Context) (Result, error) {
	schema := s.Schema
	if schema == nil {
		schema = DefaultSchema()
	}
	var incomingRows, assignmentRows []map[string]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.Incoming.FetchRows(gctx, s.IncomingID)
		if err != nil {
			return &FetchError{Source: SourceIncoming, Err: err}
		}
		incomingRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Assignments.FetchRows(gctx, s.AssignmentsID)
		if err != nil {
			return &FetchError{Source: SourceAssignments, Err: err}
		}
		assignmentRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		if s.Logger != nil {
			logging.LogError(s.Logger, "reconcile", "WorkQueue", err, nil)
		}
		return Result{}, err
	}

	incoming := make([]Incoming, 0, len(incomingRows))
	for _, row := range incomingRows {
		incoming = append(incoming, schema.Incoming(row))
	}
	assignments := schema.AssignmentRecords(assignmentRows)
	items, stats := Reconcile(incoming, assignments)
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":      "reconcile",
			"incoming":    stats.Incoming,
			"assignments": stats.Assignments,
			"exact":       stats.Exact,
			"fuzzy":       stats.Fuzzy,
			"hidden":      stats.Hidden,
			"authors":     len(items),
		}).Info("work queue reconciled")
	}
	return Result{Items: items, Stats: stats}, nil
}
