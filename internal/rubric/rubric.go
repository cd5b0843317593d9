// Package rubric holds the journal's scoring criteria and turns scorecards into a
// recommended decision.
//
// Each criterion is scored 0, 1 or 2. A role's maximum is len(criteria)*2, and every
// denominator used for percentages is derived from the tables below, so adding a
// criterion changes the arithmetic without touching the code that uses it.
package rubric

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"folio/internal/fault"
)

type Role string

const (
	RoleReviewer1 Role = "reviewer1"
	RoleReviewer2 Role = "reviewer2"
	RoleEditor    Role = "editor"
)

// MaxLevel is the highest level a criterion can take.
const MaxLevel = 2

// Criterion is one scored dimension with a textual rubric for levels 0..2.
type Criterion struct {
	Key    string    `json:"key"`
	Label  string    `json:"label"`
	Levels [3]string `json:"levels"`
}

var tables = map[Role][]Criterion{
	RoleReviewer1: {
		{Key: "gramatica", Label: "Grammar and spelling", Levels: [3]string{
			"Frequent errors that obstruct reading",
			"Occasional errors that do not obstruct reading",
			"Clean text with no relevant errors",
		}},
		{Key: "claridad", Label: "Clarity", Levels: [3]string{
			"Ideas are hard to follow",
			"Ideas are understandable with some effort",
			"Ideas are expressed clearly and precisely",
		}},
		{Key: "estructura", Label: "Structure", Levels: [3]string{
			"No recognisable introduction, body and conclusion",
			"Structure present but unbalanced",
			"Coherent structure with logical transitions",
		}},
		{Key: "citacion", Label: "Citation", Levels: [3]string{
			"Sources missing or uncited",
			"Sources cited with format problems",
			"Sources cited consistently in the journal style",
		}},
	},
	RoleReviewer2: {
		{Key: "relevancia", Label: "Relevance", Levels: [3]string{
			"Topic unrelated to the journal's scope",
			"Topic relevant but weakly motivated",
			"Topic relevant and clearly motivated",
		}},
		{Key: "rigor", Label: "Rigor", Levels: [3]string{
			"Claims unsupported by evidence",
			"Evidence present but incomplete",
			"Claims well supported by evidence",
		}},
		{Key: "originalidad", Label: "Originality", Levels: [3]string{
			"Restates known material",
			"Some original perspective",
			"Original contribution or perspective",
		}},
		{Key: "argumentacion", Label: "Argument quality", Levels: [3]string{
			"Argument is incoherent",
			"Argument holds with gaps",
			"Argument is sound and persuasive",
		}},
	},
	RoleEditor: {
		{Key: "modificacion", Label: "Degree of modification", Levels: [3]string{
			"Requires substantial rewriting",
			"Requires moderate changes",
			"Requires little or no change",
		}},
		{Key: "calidad_final", Label: "Final quality", Levels: [3]string{
			"Below publication standard",
			"Near publication standard",
			"Meets publication standard",
		}},
		{Key: "aporte", Label: "Contribution", Levels: [3]string{
			"No clear contribution to readers",
			"Modest contribution",
			"Valuable contribution",
		}},
		{Key: "potencial_motivacional", Label: "Motivational potential", Levels: [3]string{
			"Unlikely to motivate other students",
			"May motivate some students",
			"Likely to motivate other students",
		}},
		{Key: "decision_final", Label: "Final decision", Levels: [3]string{
			"Do not publish",
			"Publish after changes",
			"Publish",
		}},
	},
}

// Roles returns the scoring roles in a stable order.
func Roles() []Role {
	return []Role{RoleReviewer1, RoleReviewer2, RoleEditor}
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := tables[r]; !ok {
		return "", fault.Invalid("role", fmt.Sprintf("unknown rubric role %q", s))
	}
	return r, nil
}

// Criteria returns the criteria table for a role.
func Criteria(role Role) []Criterion {
	src := tables[role]
	out := make([]Criterion, len(src))
	copy(out, src)
	return out
}

// MaxFor is the maximum total a role can score.
func MaxFor(role Role) int {
	return len(tables[role]) * MaxLevel
}

// Score is a validated role total.
type Score struct {
	Role  Role `json:"role"`
	Total int  `json:"total"`
	Max   int  `json:"max"`
}

// Percent returns Total/Max*100.
func (s Score) Percent() decimal.Decimal {
	return Percent(s.Total, s.Max)
}

// Total sums a role's scorecard. The scorecard must contain every criterion of the
// role, each with a level in [0,2], and nothing else.
func Total(scores map[string]int, role Role) (Score, error) {
	criteria, ok := tables[role]
	if !ok {
		return Score{}, fault.Invalid("role", fmt.Sprintf("unknown rubric role %q", role))
	}
	known := make(map[string]struct{}, len(criteria))
	total := 0
	var missing []string
	for _, c := range criteria {
		known[c.Key] = struct{}{}
		level, ok := scores[c.Key]
		if !ok {
			missing = append(missing, c.Key)
			continue
		}
		if level < 0 || level > MaxLevel {
			return Score{}, fault.Invalid("scores."+c.Key, fmt.Sprintf("level %d outside 0..%d", level, MaxLevel))
		}
		total += level
	}
	if len(missing) > 0 {
		return Score{}, fault.Invalid("scores", fmt.Sprintf("rubric incomplete; missing %v", missing))
	}
	var unknown []string
	for k := range scores {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Score{}, fault.Invalid("scores", fmt.Sprintf("unknown criteria %v for role %s", unknown, role))
	}
	return Score{Role: role, Total: total, Max: MaxFor(role)}, nil
}

// Percent returns total/max*100 with exact decimal arithmetic.
func Percent(total, max int) decimal.Decimal {
	if max <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(total)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(max)))
}
