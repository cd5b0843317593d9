package lifecycle

import (
	"testing"

	"folio/internal/domain"
	"folio/internal/fault"
)

func decision(d domain.Decision) *domain.Decision { return &d }

func TestCheck(t *testing.T) {
	cases := []struct {
		from, to domain.SubmissionStatus
		ok       bool
	}{
		{domain.StatusSubmitted, domain.StatusDeskReview, true},
		{domain.StatusSubmitted, domain.StatusInReview, false},
		{domain.StatusDeskReview, domain.StatusDeskAccepted, true},
		{domain.StatusDeskReview, domain.StatusDeskRejected, true},
		{domain.StatusDeskAccepted, domain.StatusInReview, true},
		{domain.StatusInReview, domain.StatusAccepted, false},
		{domain.StatusReviewsCompleted, domain.StatusMajorRevision, true},
		{domain.StatusMinorRevision, domain.StatusInReview, true},
		{domain.StatusAccepted, domain.StatusPublished, true},
		{domain.StatusRejected, domain.StatusPublished, false},
		{domain.StatusPublished, domain.StatusSubmitted, false},
	}
	for _, tc := range cases {
		err := Check(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected %v", tc.from, tc.to, err)
		}
		if !tc.ok && !fault.IsConflict(err) {
			t.Fatalf("%s -> %s: expected conflict, got %v", tc.from, tc.to, err)
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for _, s := range []domain.SubmissionStatus{domain.StatusPublished, domain.StatusRejected, domain.StatusDeskRejected} {
		if !Terminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
		if len(Allowed(s)) != 0 {
			t.Fatalf("%s should have no transitions", s)
		}
	}
}

func TestDeriveDecisionLostSubmissionWrite(t *testing.T) {
	sub := domain.Submission{Status: domain.StatusReviewsCompleted, Round: 1}
	reviews := []domain.EditorialReview{{Round: 1, Status: domain.ReviewCompleted, Decision: decision(domain.DecisionAccept), CreatedAt: "a"}}
	d := Derive(sub, reviews)
	if d.Status != domain.StatusAccepted || d.OpenRound != 0 {
		t.Fatalf("unexpected derivation %+v", d)
	}
}

func TestDeriveRevisionOpensNextRound(t *testing.T) {
	sub := domain.Submission{Status: domain.StatusReviewsCompleted, Round: 1}
	reviews := []domain.EditorialReview{{Round: 1, Status: domain.ReviewCompleted, Decision: decision(domain.DecisionMinorRevision)}}
	d := Derive(sub, reviews)
	if d.Status != domain.StatusMinorRevision || d.Round != 2 || d.OpenRound != 2 {
		t.Fatalf("unexpected derivation %+v", d)
	}

	reviews = append(reviews, domain.EditorialReview{Round: 2, Status: domain.ReviewPending})
	d = Derive(domain.Submission{Status: domain.StatusReviewsCompleted, Round: 1}, reviews)
	if d.Status != domain.StatusMinorRevision || d.Round != 2 || d.OpenRound != 0 {
		t.Fatalf("unexpected derivation with open round %+v", d)
	}
}

func TestDeriveDeskReject(t *testing.T) {
	sub := domain.Submission{Status: domain.StatusDeskReview, Round: 1}
	reviews := []domain.EditorialReview{{Round: 1, Status: domain.ReviewCompleted, Decision: decision(domain.DecisionReject)}}
	if d := Derive(sub, reviews); d.Status != domain.StatusDeskRejected {
		t.Fatalf("expected desk_rejected, got %s", d.Status)
	}
	sub.Status = domain.StatusReviewsCompleted
	if d := Derive(sub, reviews); d.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", d.Status)
	}
}

func TestDeriveKeepsConsistentStatus(t *testing.T) {
	sub := domain.Submission{Status: domain.StatusInReview, Round: 1}
	reviews := []domain.EditorialReview{{Round: 1, Status: domain.ReviewInProgress}}
	if d := Derive(sub, reviews); d.Status != domain.StatusInReview || d.Round != 1 {
		t.Fatalf("unexpected derivation %+v", d)
	}
	sub = domain.Submission{Status: domain.StatusPublished, Round: 1}
	reviews = []domain.EditorialReview{{Round: 1, Status: domain.ReviewCompleted, Decision: decision(domain.DecisionAccept)}}
	if d := Derive(sub, reviews); d.Status != domain.StatusPublished {
		t.Fatalf("published should stay published, got %s", d.Status)
	}
}
