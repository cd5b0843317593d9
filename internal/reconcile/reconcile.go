// Package reconcile merges the incoming-submission feed with the legacy
// assignment sheet into the reviewers' work queue.
package reconcile

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"folio/internal/domain"
)

// MatchKind tells how an article was paired with its assignment row.
type MatchKind string

const (
	MatchNone  MatchKind = ""
	MatchExact MatchKind = "exact"
	// MatchFuzzy pairs on title containment and needs editor confirmation.
	MatchFuzzy MatchKind = "fuzzy"
)

type Article struct {
	Incoming
	Assignment  *domain.AssignmentRecord `json:"assignment"`
	Match       MatchKind                `json:"match,omitempty"`
	IsCompleted bool                     `json:"is_completed"`
}

type WorkItem struct {
	AuthorName        string    `json:"author_name"`
	AuthorEmail       string    `json:"author_email,omitempty"`
	AuthorInstitution string    `json:"author_institution,omitempty"`
	Articles          []Article `json:"articles"`
}

// Stats summarises one reconciliation pass.
type Stats struct {
	Incoming    int `json:"incoming"`
	Assignments int `json:"assignments"`
	Exact       int `json:"exact"`
	Fuzzy       int `json:"fuzzy"`
	Hidden      int `json:"hidden"`
	Skipped     int `json:"skipped"`
}

type keyedAssignment struct {
	rec    domain.AssignmentRecord
	author string
	title  string
}

// Reconcile groups incoming rows by author and pairs each with at most one
// assignment row. Authors keep the order in which they first appear, and so do
// their articles. Articles whose assignment is completed are hidden, and authors
// with nothing left are dropped. Rows without an author are skipped.
func Reconcile(incoming []Incoming, assignments []domain.AssignmentRecord) ([]WorkItem, Stats) {
	stats := Stats{Incoming: len(incoming), Assignments: len(assignments)}
	keyed := make([]keyedAssignment, 0, len(assignments))
	for _, a := range assignments {
		keyed = append(keyed, keyedAssignment{rec: a, author: Key(a.AuthorName), title: Key(a.ArticleName)})
	}

	var order []string
	groups := map[string]*WorkItem{}
	for _, in := range incoming {
		author := Key(in.AuthorName)
		if author == "" {
			stats.Skipped++
			continue
		}
		g, ok := groups[author]
		if !ok {
			g = &WorkItem{AuthorName: in.AuthorName, AuthorEmail: in.AuthorEmail, AuthorInstitution: in.AuthorInstitution}
			groups[author] = g
			order = append(order, author)
		}
		art := Article{Incoming: in}
		if m, kind := match(author, Key(in.Title), keyed); m != nil {
			rec := m.rec
			art.Assignment = &rec
			art.Match = kind
			art.IsCompleted = rec.Completed()
			if kind == MatchExact {
				stats.Exact++
			} else {
				stats.Fuzzy++
			}
		}
		if art.IsCompleted {
			stats.Hidden++
			continue
		}
		g.Articles = append(g.Articles, art)
	}

	out := make([]WorkItem, 0, len(order))
	for _, author := range order {
		g := groups[author]
		if len(g.Articles) == 0 {
			continue
		}
		out = append(out, *g)
	}
	return out, stats
}

// match returns the exact match if any. Otherwise it returns, among rows by the
// same author whose title contains or is contained in the incoming title, the
// one closest by edit distance; ties keep the earlier row.
func match(author, title string, rows []keyedAssignment) (*keyedAssignment, MatchKind) {
	for i := range rows {
		if rows[i].author == author && rows[i].title == title {
			return &rows[i], MatchExact
		}
	}
	if title == "" {
		return nil, MatchNone
	}
	var best *keyedAssignment
	bestDist := -1
	for i := range rows {
		r := &rows[i]
		if r.author != author || r.title == "" {
			continue
		}
		if !strings.Contains(r.title, title) && !strings.Contains(title, r.title) {
			continue
		}
		d := levenshtein.ComputeDistance(title, r.title)
		if bestDist < 0 || d < bestDist {
			best, bestDist = r, d
		}
	}
	if best == nil {
		return nil, MatchNone
	}
	return best, MatchFuzzy
}
