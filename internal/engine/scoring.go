package engine

import (
	"context"
	"database/sql"
	"fmt"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/engine/auth"
	"folio/internal/events"
	"folio/internal/fault"
	"folio/internal/lifecycle"
	"folio/internal/repo"
	"folio/internal/rubric"
)

type ScoreOptions struct {
	ReviewID string
	Role     string
	Scores   map[string]int
}

type ScoreResult struct {
	Score   domain.RubricScore `json:"score"`
	Summary rubric.Score       `json:"summary"`
	// ReviewsCompleted is set when this scorecard closed peer review.
	ReviewsCompleted bool `json:"reviews_completed"`
}

// RecordScore stores a role's scorecard for a review round. Reviewers without
// editorial permission need an accepted invitation for the review. Once both
// reviewer scorecards exist the submission moves to reviews_completed.
func (e Engine) RecordScore(ctx context.Context, p auth.Principal, opts ScoreOptions) (ScoreResult, error) {
	role, err := rubric.ParseRole(opts.Role)
	if err != nil {
		return ScoreResult{}, err
	}
	perm := config.PermScoreReviewer
	if role == rubric.RoleEditor {
		perm = config.PermScoreEditor
	}
	if err := e.Auth.Require(p, perm); err != nil {
		return ScoreResult{}, err
	}
	summary, err := rubric.Total(opts.Scores, role)
	if err != nil {
		return ScoreResult{}, err
	}
	var res ScoreResult
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		res = ScoreResult{Summary: summary}
		rv, err := e.Repo.GetReview(ctx, tx, opts.ReviewID)
		if err != nil {
			return err
		}
		if rv.Status == domain.ReviewCompleted {
			return fault.Conflict("review already completed")
		}
		sub, err := e.Repo.GetSubmission(ctx, tx, rv.SubmissionID)
		if err != nil {
			return err
		}
		if sub.Status != domain.StatusInReview && sub.Status != domain.StatusReviewsCompleted {
			return fault.Conflict(fmt.Sprintf("scores cannot be recorded while submission is %s", sub.Status))
		}
		if role != rubric.RoleEditor && !e.Auth.Can(p, config.PermScoreEditor) {
			accepted, err := e.Repo.ListInvitations(ctx, tx, repo.InvitationFilters{
				ReviewID: rv.ID,
				Email:    p.Email,
				Status:   string(domain.InvitationAccepted),
			})
			if err != nil {
				return err
			}
			if p.Email == "" || len(accepted) == 0 {
				return auth.ForbiddenError{Permission: perm}
			}
		}
		existing, err := e.Repo.ListScores(ctx, tx, rv.ID)
		if err != nil {
			return err
		}
		if other, ok := otherReviewer(role); ok {
			if prev, ok := existing[string(other)]; ok && prev.ScorerID == p.ActorID {
				return fault.Conflict(fmt.Sprintf("%s already holds the %s scorecard", p.ActorID, other))
			}
		}
		now := e.nowString()
		createdAt := now
		if prev, ok := existing[string(role)]; ok {
			if prev.ScorerID != p.ActorID && !e.Auth.Can(p, config.PermScoreEditor) {
				return auth.ForbiddenError{Permission: config.PermScoreEditor}
			}
			createdAt = prev.CreatedAt
		}
		res.Score = domain.RubricScore{
			EditorialReviewID: rv.ID,
			Role:              string(role),
			Scores:            opts.Scores,
			Total:             summary.Total,
			Max:               summary.Max,
			ScorerID:          p.ActorID,
			CreatedAt:         createdAt,
			UpdatedAt:         now,
		}
		if err := e.Repo.UpsertScore(ctx, tx, res.Score); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, tx, "score.recorded", "review", rv.ID, p.ActorID, events.EventPayload{
			"role":  role,
			"total": summary.Total,
			"max":   summary.Max,
		}); err != nil {
			return err
		}
		existing[string(role)] = res.Score
		_, has1 := existing[string(rubric.RoleReviewer1)]
		_, has2 := existing[string(rubric.RoleReviewer2)]
		if sub.Status != domain.StatusInReview || !has1 || !has2 {
			return nil
		}
		if err := lifecycle.Check(sub.Status, domain.StatusReviewsCompleted); err != nil {
			return err
		}
		prevStatus := sub.Status
		sub.Status = domain.StatusReviewsCompleted
		sub.UpdatedAt = now
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prevStatus); err != nil {
			return err
		}
		res.ReviewsCompleted = true
		return e.appendEvent(ctx, tx, "submission.reviews_completed", "submission", sub.ID, p.ActorID, events.EventPayload{
			"from":      prevStatus,
			"to":        sub.Status,
			"review_id": rv.ID,
			"automatic": true,
		})
	})
	if err != nil {
		return ScoreResult{}, err
	}
	return res, nil
}

// Scorecard is the rubric state of one review round. Overall is set once all
// three scorecards are in.
type Scorecard struct {
	ReviewID string                        `json:"review_id"`
	Round    int                           `json:"round"`
	Scores   map[string]domain.RubricScore `json:"scores"`
	Missing  []string                      `json:"missing"`
	Overall  *rubric.Overall               `json:"overall,omitempty"`
}

func (e Engine) Scorecard(ctx context.Context, p auth.Principal, reviewID string) (Scorecard, error) {
	if err := e.Auth.Require(p, config.PermSubmissionRead); err != nil {
		return Scorecard{}, err
	}
	rv, err := e.Repo.GetReview(ctx, nil, reviewID)
	if err != nil {
		return Scorecard{}, err
	}
	scores, err := e.Repo.ListScores(ctx, nil, rv.ID)
	if err != nil {
		return Scorecard{}, err
	}
	return buildScorecard(rv, scores)
}

func buildScorecard(rv domain.EditorialReview, scores map[string]domain.RubricScore) (Scorecard, error) {
	sc := Scorecard{ReviewID: rv.ID, Round: rv.Round, Scores: scores, Missing: []string{}}
	for _, role := range rubric.Roles() {
		if _, ok := scores[string(role)]; !ok {
			sc.Missing = append(sc.Missing, string(role))
		}
	}
	if len(sc.Missing) > 0 {
		return sc, nil
	}
	ov, err := rubric.OverallPercent(
		scores[string(rubric.RoleReviewer1)].Scores,
		scores[string(rubric.RoleReviewer2)].Scores,
		scores[string(rubric.RoleEditor)].Scores,
	)
	if err != nil {
		return sc, err
	}
	sc.Overall = &ov
	return sc, nil
}

// otherReviewer pairs the two reviewer roles; one actor may fill only one of them.
func otherReviewer(role rubric.Role) (rubric.Role, bool) {
	switch role {
	case rubric.RoleReviewer1:
		return rubric.RoleReviewer2, true
	case rubric.RoleReviewer2:
		return rubric.RoleReviewer1, true
	}
	return "", false
}
