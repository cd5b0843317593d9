package rubric

import (
	"github.com/shopspring/decimal"

	"folio/internal/domain"
)

type Recommendation string

const (
	AcceptWithoutChanges   Recommendation = "accept-without-changes"
	AcceptWithMinorChanges Recommendation = "accept-with-minor-changes"
	MajorRevisionRequired  Recommendation = "major-revision-required"
	Reject                 Recommendation = "reject"
)

var (
	acceptThreshold = decimal.NewFromInt(85)
	minorThreshold  = decimal.NewFromInt(70)
	majorThreshold  = decimal.NewFromInt(50)
)

// Recommend maps a percentage to a recommendation: >=85 accept, >=70 minor changes,
// >=50 major revision, otherwise reject.
func Recommend(percent decimal.Decimal) Recommendation {
	switch {
	case percent.GreaterThanOrEqual(acceptThreshold):
		return AcceptWithoutChanges
	case percent.GreaterThanOrEqual(minorThreshold):
		return AcceptWithMinorChanges
	case percent.GreaterThanOrEqual(majorThreshold):
		return MajorRevisionRequired
	default:
		return Reject
	}
}

// Decision is the EditorialReview decision an editor would record for r.
func (r Recommendation) Decision() domain.Decision {
	switch r {
	case AcceptWithoutChanges:
		return domain.DecisionAccept
	case AcceptWithMinorChanges:
		return domain.DecisionMinorRevision
	case MajorRevisionRequired:
		return domain.DecisionRevisionRequired
	default:
		return domain.DecisionReject
	}
}

// Overall aggregates the three scorecards of a round.
type Overall struct {
	Reviewer1        Score           `json:"reviewer1"`
	Reviewer2        Score           `json:"reviewer2"`
	Editor           Score           `json:"editor"`
	ReviewersPercent decimal.Decimal `json:"reviewers_percent"`
	OverallPercent   decimal.Decimal `json:"overall_percent"`
	Recommendation   Recommendation  `json:"recommendation"`
}

// ReviewersMax is the denominator of the reviewers' sub-score.
func ReviewersMax() int {
	return MaxFor(RoleReviewer1) + MaxFor(RoleReviewer2)
}

// OverallMax is the denominator of the overall score.
func OverallMax() int {
	return ReviewersMax() + MaxFor(RoleEditor)
}

// OverallPercent validates the three scorecards and computes the reviewers'
// sub-score, the overall score and the recommendation derived from the latter.
func OverallPercent(rev1, rev2, editor map[string]int) (Overall, error) {
	s1, err := Total(rev1, RoleReviewer1)
	if err != nil {
		return Overall{}, err
	}
	s2, err := Total(rev2, RoleReviewer2)
	if err != nil {
		return Overall{}, err
	}
	se, err := Total(editor, RoleEditor)
	if err != nil {
		return Overall{}, err
	}
	overall := Percent(s1.Total+s2.Total+se.Total, OverallMax())
	return Overall{
		Reviewer1:        s1,
		Reviewer2:        s2,
		Editor:           se,
		ReviewersPercent: Percent(s1.Total+s2.Total, ReviewersMax()),
		OverallPercent:   overall,
		Recommendation:   Recommend(overall),
	}, nil
}
