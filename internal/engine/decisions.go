package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/engine/auth"
	"folio/internal/events"
	"folio/internal/fault"
	"folio/internal/lifecycle"
	"folio/internal/rubric"
)

// DecisionOptions close a review round. An empty Decision takes the rubric
// recommendation, which needs all three scorecards.
type DecisionOptions struct {
	ReviewID         string
	Decision         domain.Decision
	FeedbackToAuthor string
	InternalComments string
}

type DecisionResult struct {
	Submission domain.Submission       `json:"submission"`
	Review     domain.EditorialReview  `json:"review"`
	NextReview *domain.EditorialReview `json:"next_review,omitempty"`
	// Recommendation is set when the decision was taken from the rubric.
	Recommendation *rubric.Overall `json:"recommendation,omitempty"`
}

// RecordDecision completes the review and derives the submission state from the
// updated review history. A revision opens the next round as a pending review.
// Deciding a completed review fails with "review already completed".
func (e Engine) RecordDecision(ctx context.Context, p auth.Principal, opts DecisionOptions) (DecisionResult, error) {
	if err := e.Auth.Require(p, config.PermDecide); err != nil {
		return DecisionResult{}, err
	}
	if opts.Decision != "" && !opts.Decision.Valid() {
		return DecisionResult{}, fault.Invalid("decision", "must be reject, minor-revision, revision-required or accept")
	}
	var res DecisionResult
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		res = DecisionResult{}
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
		if sub.Status != domain.StatusReviewsCompleted {
			return fault.Conflict(fmt.Sprintf("submission %s is %s, decisions need reviews_completed", sub.ID, sub.Status))
		}
		if rv.Round != sub.Round {
			return fault.Conflict(fmt.Sprintf("review %s is round %d but submission is in round %d", rv.ID, rv.Round, sub.Round))
		}
		decision := opts.Decision
		if decision == "" {
			scores, err := e.Repo.ListScores(ctx, tx, rv.ID)
			if err != nil {
				return err
			}
			sc, err := buildScorecard(rv, scores)
			if err != nil {
				return err
			}
			if sc.Overall == nil {
				return fault.Invalid("decision", fmt.Sprintf("is required while scorecards are missing: %v", sc.Missing))
			}
			decision = sc.Overall.Recommendation.Decision()
			res.Recommendation = sc.Overall
		}
		now := e.nowString()
		if err := e.Repo.CompleteReview(ctx, tx, rv.ID, decision, opts.FeedbackToAuthor, opts.InternalComments, now); err != nil {
			return err
		}
		rv.Status = domain.ReviewCompleted
		rv.Decision = &decision
		rv.FeedbackToAuthor = opts.FeedbackToAuthor
		rv.InternalComments = opts.InternalComments
		rv.UpdatedAt = now
		rv.CompletedAt = &now
		res.Review = rv
		if decision.IsRevision() {
			next := domain.EditorialReview{
				ID:           uuid.NewString(),
				SubmissionID: sub.ID,
				Round:        rv.Round + 1,
				Status:       domain.ReviewPending,
				EditorID:     rv.EditorID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := e.Repo.InsertReview(ctx, tx, next); err != nil {
				return err
			}
			res.NextReview = &next
		}
		reviews, err := e.Repo.ListReviews(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		d := lifecycle.Derive(sub, reviews)
		if err := lifecycle.Check(sub.Status, d.Status); err != nil {
			return err
		}
		prev := sub.Status
		sub.Status = d.Status
		sub.Round = d.Round
		sub.DecidedAt = &now
		sub.UpdatedAt = now
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
			return err
		}
		res.Submission = sub
		return e.appendEvent(ctx, tx, "review.decided", "review", rv.ID, p.ActorID, events.EventPayload{
			"submission_id": sub.ID,
			"decision":      decision,
			"round":         rv.Round,
			"from":          prev,
			"to":            sub.Status,
			"recommended":   res.Recommendation != nil,
		})
	})
	if err != nil {
		return DecisionResult{}, err
	}
	e.logger().WithFields(logrus.Fields{
		"module":        "engine",
		"submission_id": res.Submission.ID,
		"decision":      *res.Review.Decision,
		"status":        res.Submission.Status,
	}).Info("review decided")
	e.notifyDecision(ctx, res.Submission, *res.Review.Decision, opts.FeedbackToAuthor)
	return res, nil
}
