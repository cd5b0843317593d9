// Package lifecycle encodes the submission state machine. Every status change in
// the engine goes through Check, and Derive rebuilds a submission's status from its
// review history when a decision was recorded but the submission write was lost.
package lifecycle

import (
	"fmt"
	"sort"

	"folio/internal/domain"
	"folio/internal/fault"
)

var transitions = map[domain.SubmissionStatus][]domain.SubmissionStatus{
	domain.StatusSubmitted:        {domain.StatusDeskReview},
	domain.StatusDeskReview:       {domain.StatusDeskRejected, domain.StatusDeskAccepted},
	domain.StatusDeskAccepted:     {domain.StatusInReview},
	domain.StatusInReview:         {domain.StatusReviewsCompleted},
	domain.StatusReviewsCompleted: {domain.StatusMinorRevision, domain.StatusMajorRevision, domain.StatusAccepted, domain.StatusRejected},
	domain.StatusMinorRevision:    {domain.StatusInReview},
	domain.StatusMajorRevision:    {domain.StatusInReview},
	domain.StatusAccepted:         {domain.StatusPublished},
}

// Valid reports whether s is a known status.
func Valid(s domain.SubmissionStatus) bool {
	switch s {
	case domain.StatusSubmitted, domain.StatusDeskReview, domain.StatusDeskRejected, domain.StatusDeskAccepted,
		domain.StatusInReview, domain.StatusReviewsCompleted, domain.StatusMinorRevision, domain.StatusMajorRevision,
		domain.StatusAccepted, domain.StatusRejected, domain.StatusPublished:
		return true
	}
	return false
}

// Allowed lists the statuses reachable from s in one step.
func Allowed(s domain.SubmissionStatus) []domain.SubmissionStatus {
	next := transitions[s]
	out := make([]domain.SubmissionStatus, len(next))
	copy(out, next)
	return out
}

// Check rejects a transition that is not in the table.
func Check(from, to domain.SubmissionStatus) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fault.Conflict(fmt.Sprintf("invalid submission transition %s -> %s", from, to))
}

// Terminal reports whether no further transition leaves s.
func Terminal(s domain.SubmissionStatus) bool {
	return s == domain.StatusPublished || s == domain.StatusRejected || s == domain.StatusDeskRejected
}

// Editorial reports whether leaving s requires an editorial role. Only the
// revision states are left by the submission's owner.
func Editorial(s domain.SubmissionStatus) bool {
	return s != domain.StatusMinorRevision && s != domain.StatusMajorRevision
}

// StatusForDecision maps a peer-review decision to the submission status it produces.
func StatusForDecision(d domain.Decision) (domain.SubmissionStatus, error) {
	switch d {
	case domain.DecisionReject:
		return domain.StatusRejected, nil
	case domain.DecisionMinorRevision:
		return domain.StatusMinorRevision, nil
	case domain.DecisionRevisionRequired:
		return domain.StatusMajorRevision, nil
	case domain.DecisionAccept:
		return domain.StatusAccepted, nil
	}
	return "", fault.Invalid("decision", fmt.Sprintf("unknown decision %q", d))
}

// Derivation is the state a submission should be in given its reviews.
type Derivation struct {
	Status domain.SubmissionStatus
	Round  int
	// OpenRound is the round whose review must still be opened, or 0.
	OpenRound int
}

// Derive recomputes status and round from the review history. The submission's
// stored status is used only to tell phases apart that reviews alone cannot: a
// completed reject on round 1 while in desk_review is a desk rejection, and a
// published article stays published.
func Derive(sub domain.Submission, reviews []domain.EditorialReview) Derivation {
	d := Derivation{Status: sub.Status, Round: sub.Round}
	if len(reviews) == 0 {
		return d
	}
	sorted := make([]domain.EditorialReview, len(reviews))
	copy(sorted, reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Round != sorted[j].Round {
			return sorted[i].Round < sorted[j].Round
		}
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})
	latest := sorted[len(sorted)-1]
	if latest.Round > d.Round {
		d.Round = latest.Round
	}

	if latest.Status == domain.ReviewCompleted && latest.Decision != nil {
		dec := *latest.Decision
		switch {
		case sub.Status == domain.StatusPublished:
			d.Status = domain.StatusPublished
		case latest.Round == 1 && dec == domain.DecisionReject &&
			(sub.Status == domain.StatusDeskReview || sub.Status == domain.StatusDeskRejected):
			d.Status = domain.StatusDeskRejected
		default:
			if st, err := StatusForDecision(dec); err == nil {
				d.Status = st
			}
			if dec.IsRevision() {
				d.OpenRound = latest.Round + 1
				d.Round = latest.Round + 1
			}
		}
		return d
	}

	if latest.Round > 1 {
		prev := previousDecision(sorted, latest.Round)
		switch {
		case latest.Status == domain.ReviewPending && prev != nil:
			if st, err := StatusForDecision(*prev); err == nil {
				d.Status = st
			}
		case sub.Status == domain.StatusReviewsCompleted:
		default:
			d.Status = domain.StatusInReview
		}
		return d
	}

	switch sub.Status {
	case domain.StatusDeskReview, domain.StatusDeskAccepted, domain.StatusInReview, domain.StatusReviewsCompleted:
	default:
		d.Status = domain.StatusDeskReview
	}
	return d
}

func previousDecision(sorted []domain.EditorialReview, round int) *domain.Decision {
	for i := len(sorted) - 1; i >= 0; i-- {
		r := sorted[i]
		if r.Round < round && r.Status == domain.ReviewCompleted && r.Decision != nil {
			return r.Decision
		}
	}
	return nil
}
