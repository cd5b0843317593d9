package rubric

import (
	"testing"

	"github.com/shopspring/decimal"

	"folio/internal/domain"
	"folio/internal/fault"
)

func full(role Role, level int) map[string]int {
	out := map[string]int{}
	for _, c := range Criteria(role) {
		out[c.Key] = level
	}
	return out
}

func TestReviewerOneScenario(t *testing.T) {
	s, err := Total(map[string]int{"gramatica": 2, "claridad": 2, "estructura": 1, "citacion": 2}, RoleReviewer1)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if s.Total != 7 || s.Max != 8 {
		t.Fatalf("expected 7/8, got %d/%d", s.Total, s.Max)
	}
	if !s.Percent().Equal(decimal.RequireFromString("87.5")) {
		t.Fatalf("expected 87.5, got %s", s.Percent())
	}
	if got := Recommend(s.Percent()); got != AcceptWithoutChanges {
		t.Fatalf("expected accept-without-changes, got %s", got)
	}
}

func TestTotalRejectsIncompleteOrInvalid(t *testing.T) {
	cases := []struct {
		name   string
		scores map[string]int
	}{
		{"missing", map[string]int{"gramatica": 2, "claridad": 2, "estructura": 1}},
		{"too high", map[string]int{"gramatica": 3, "claridad": 2, "estructura": 1, "citacion": 2}},
		{"negative", map[string]int{"gramatica": -1, "claridad": 2, "estructura": 1, "citacion": 2}},
		{"unknown", map[string]int{"gramatica": 2, "claridad": 2, "estructura": 1, "citacion": 2, "rigor": 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Total(tc.scores, RoleReviewer1); !fault.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestTotalBounds(t *testing.T) {
	for _, role := range Roles() {
		lo, err := Total(full(role, 0), role)
		if err != nil {
			t.Fatalf("%s zero: %v", role, err)
		}
		hi, err := Total(full(role, 2), role)
		if err != nil {
			t.Fatalf("%s max: %v", role, err)
		}
		if lo.Total != 0 || hi.Total != hi.Max || hi.Max != len(Criteria(role))*2 {
			t.Fatalf("%s bounds: lo=%d hi=%d max=%d", role, lo.Total, hi.Total, hi.Max)
		}
	}
}

func TestRecommendBoundaries(t *testing.T) {
	cases := []struct {
		pct  string
		want Recommendation
	}{
		{"100", AcceptWithoutChanges},
		{"85", AcceptWithoutChanges},
		{"84.99", AcceptWithMinorChanges},
		{"70", AcceptWithMinorChanges},
		{"69.99", MajorRevisionRequired},
		{"50", MajorRevisionRequired},
		{"49.99", Reject},
		{"0", Reject},
	}
	for _, tc := range cases {
		if got := Recommend(decimal.RequireFromString(tc.pct)); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.pct, tc.want, got)
		}
	}
}

func TestRecommendationDecision(t *testing.T) {
	if AcceptWithoutChanges.Decision() != domain.DecisionAccept ||
		AcceptWithMinorChanges.Decision() != domain.DecisionMinorRevision ||
		MajorRevisionRequired.Decision() != domain.DecisionRevisionRequired ||
		Reject.Decision() != domain.DecisionReject {
		t.Fatalf("unexpected recommendation mapping")
	}
}

func TestOverallPercentDenominators(t *testing.T) {
	if ReviewersMax() != 16 || OverallMax() != 26 {
		t.Fatalf("expected 16/26, got %d/%d", ReviewersMax(), OverallMax())
	}
	o, err := OverallPercent(full(RoleReviewer1, 2), full(RoleReviewer2, 1), full(RoleEditor, 1))
	if err != nil {
		t.Fatalf("overall: %v", err)
	}
	// reviewers 12/16, overall 17/26
	if !o.ReviewersPercent.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("reviewers percent: %s", o.ReviewersPercent)
	}
	want := Percent(17, 26)
	if !o.OverallPercent.Equal(want) {
		t.Fatalf("overall percent: %s want %s", o.OverallPercent, want)
	}
	if o.Recommendation != MajorRevisionRequired {
		t.Fatalf("expected major revision at %s, got %s", o.OverallPercent, o.Recommendation)
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("editor"); err != nil || r != RoleEditor {
		t.Fatalf("parse editor: %v %v", r, err)
	}
	if _, err := ParseRole("reviewer3"); !fault.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
