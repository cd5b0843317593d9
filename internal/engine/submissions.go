package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/engine/auth"
	"folio/internal/events"
	"folio/internal/fault"
	"folio/internal/lifecycle"
	"folio/internal/logging"
	"folio/internal/notify"
	"folio/internal/repo"
)

// SubmissionCreateOptions are parameters for a new manuscript.
type SubmissionCreateOptions struct {
	ID          string          `json:"id"`
	Title       string          `json:"title" validate:"required"`
	Abstract    string          `json:"abstract"`
	SubjectArea string          `json:"subject_area"`
	Language    string          `json:"language"`
	Authors     []domain.Author `json:"authors" validate:"required,min=1,dive"`
}

func normalizeAuthors(authors []domain.Author) ([]domain.Author, error) {
	out := make([]domain.Author, len(authors))
	for i, a := range authors {
		a.Name = strings.TrimSpace(a.Name)
		a.Email = normalizeEmail(a.Email)
		a.GuardianEmail = normalizeEmail(a.GuardianEmail)
		a.Institution = strings.TrimSpace(a.Institution)
		if a.IsMinor && !a.GuardianConsent {
			return nil, fault.Invalid(fmt.Sprintf("authors[%d].guardian_consent", i), "is required for minors")
		}
		out[i] = a
	}
	return out, nil
}

func (e Engine) CreateSubmission(ctx context.Context, p auth.Principal, opts SubmissionCreateOptions) (domain.Submission, error) {
	if err := e.Auth.Require(p, config.PermSubmissionCreate); err != nil {
		return domain.Submission{}, err
	}
	opts.Title = strings.TrimSpace(opts.Title)
	authors, err := normalizeAuthors(opts.Authors)
	if err != nil {
		return domain.Submission{}, err
	}
	opts.Authors = authors
	if err := validateStruct(opts); err != nil {
		return domain.Submission{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.nowString()
	s := domain.Submission{
		ID:          id,
		Title:       opts.Title,
		Abstract:    strings.TrimSpace(opts.Abstract),
		SubjectArea: opts.SubjectArea,
		Language:    opts.Language,
		Authors:     opts.Authors,
		Status:      domain.StatusSubmitted,
		OwnerID:     p.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertSubmission(ctx, tx, s); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "submission.created", "submission", s.ID, p.ActorID, events.EventPayload{
			"status": s.Status,
			"title":  s.Title,
		})
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// StartDeskReview opens review round 1 and moves the submission to desk_review.
func (e Engine) StartDeskReview(ctx context.Context, p auth.Principal, submissionID, editorID string) (domain.Submission, domain.EditorialReview, error) {
	if err := e.Auth.Require(p, config.PermDeskReview); err != nil {
		return domain.Submission{}, domain.EditorialReview{}, err
	}
	if editorID == "" {
		editorID = p.ActorID
	}
	var sub domain.Submission
	var rv domain.EditorialReview
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		sub, err = e.Repo.GetSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if err := lifecycle.Check(sub.Status, domain.StatusDeskReview); err != nil {
			return err
		}
		now := e.nowString()
		rv = domain.EditorialReview{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			Round:        1,
			Status:       domain.ReviewInProgress,
			EditorID:     editorID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.Repo.InsertReview(ctx, tx, rv); err != nil {
			return err
		}
		prev := sub.Status
		sub.Status = domain.StatusDeskReview
		sub.Round = 1
		sub.UpdatedAt = now
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "submission.desk_review", "submission", sub.ID, p.ActorID, events.EventPayload{
			"from":      prev,
			"to":        sub.Status,
			"review_id": rv.ID,
			"editor_id": editorID,
		})
	})
	if err != nil {
		return domain.Submission{}, domain.EditorialReview{}, err
	}
	return sub, rv, nil
}

type DeskDecisionOptions struct {
	SubmissionID     string
	Accept           bool
	FeedbackToAuthor string
	InternalComments string
}

// RecordDeskDecision accepts the manuscript into peer review or rejects it.
// A rejection completes the round-1 review with decision reject.
func (e Engine) RecordDeskDecision(ctx context.Context, p auth.Principal, opts DeskDecisionOptions) (domain.Submission, error) {
	if err := e.Auth.Require(p, config.PermDeskReview); err != nil {
		return domain.Submission{}, err
	}
	target := domain.StatusDeskRejected
	if opts.Accept {
		target = domain.StatusDeskAccepted
	}
	var sub domain.Submission
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		sub, err = e.Repo.GetSubmission(ctx, tx, opts.SubmissionID)
		if err != nil {
			return err
		}
		if err := lifecycle.Check(sub.Status, target); err != nil {
			return err
		}
		rv, err := e.Repo.OpenReview(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		now := e.nowString()
		if !opts.Accept {
			if err := e.Repo.CompleteReview(ctx, tx, rv.ID, domain.DecisionReject, opts.FeedbackToAuthor, opts.InternalComments, now); err != nil {
				return err
			}
			sub.DecidedAt = &now
		}
		prev := sub.Status
		sub.Status = target
		sub.DeskReviewedAt = &now
		sub.UpdatedAt = now
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "submission."+string(target), "submission", sub.ID, p.ActorID, events.EventPayload{
			"from":      prev,
			"to":        target,
			"review_id": rv.ID,
		})
	})
	if err != nil {
		return domain.Submission{}, err
	}
	if !opts.Accept {
		e.notifyDecision(ctx, sub, domain.DecisionReject, opts.FeedbackToAuthor)
	}
	return sub, nil
}

// SubmissionDetail is a submission with its review history.
type SubmissionDetail struct {
	Submission  domain.Submission           `json:"submission"`
	Reviews     []domain.EditorialReview    `json:"reviews"`
	Invitations []domain.ReviewerInvitation `json:"invitations"`
	Allowed     []domain.SubmissionStatus   `json:"allowed_transitions"`
}

// GetSubmission is open to editorial roles and to the submitting author. The
// author view leaves out internal comments and reviewer invitations.
func (e Engine) GetSubmission(ctx context.Context, p auth.Principal, id string) (SubmissionDetail, error) {
	sub, err := e.Repo.GetSubmission(ctx, nil, id)
	if err != nil {
		return SubmissionDetail{}, err
	}
	editorial := e.Auth.Can(p, config.PermSubmissionRead)
	if !editorial && sub.OwnerID != p.ActorID {
		return SubmissionDetail{}, e.Auth.Require(p, config.PermSubmissionRead)
	}
	reviews, err := e.Repo.ListReviews(ctx, nil, id)
	if err != nil {
		return SubmissionDetail{}, err
	}
	if reviews == nil {
		reviews = []domain.EditorialReview{}
	}
	invs := []domain.ReviewerInvitation{}
	if editorial {
		if invs, err = e.Repo.ListInvitations(ctx, nil, repo.InvitationFilters{SubmissionID: id}); err != nil {
			return SubmissionDetail{}, err
		}
		if invs == nil {
			invs = []domain.ReviewerInvitation{}
		}
	} else {
		for i := range reviews {
			reviews[i].InternalComments = ""
		}
	}
	return SubmissionDetail{Submission: sub, Reviews: reviews, Invitations: invs, Allowed: lifecycle.Allowed(sub.Status)}, nil
}

// ListSubmissions without read permission only returns the caller's own manuscripts.
func (e Engine) ListSubmissions(ctx context.Context, p auth.Principal, f repo.SubmissionFilters) ([]domain.Submission, error) {
	if !e.Auth.Can(p, config.PermSubmissionRead) {
		f.OwnerID = p.ActorID
	}
	if f.Status != "" && !lifecycle.Valid(domain.SubmissionStatus(f.Status)) {
		return nil, fault.Invalid("status", "unknown submission status")
	}
	return e.Repo.ListSubmissions(ctx, f)
}

// StatusSummary counts submissions per status.
func (e Engine) StatusSummary(ctx context.Context, p auth.Principal) (map[string]int, error) {
	if err := e.Auth.Require(p, config.PermSubmissionRead); err != nil {
		return nil, err
	}
	return e.Repo.CountSubmissionsByStatus(ctx)
}

type RevisionOptions struct {
	SubmissionID string
	Title        string
	Abstract     string
	Authors      []domain.Author
}

// ResubmitRevision returns a revised manuscript to review. Only the owner or an
// editor may resubmit; the pending review of the new round starts.
func (e Engine) ResubmitRevision(ctx context.Context, p auth.Principal, opts RevisionOptions) (domain.Submission, error) {
	var authors []domain.Author
	if len(opts.Authors) > 0 {
		var err error
		if authors, err = normalizeAuthors(opts.Authors); err != nil {
			return domain.Submission{}, err
		}
		for i, a := range authors {
			if err := validateStruct(a); err != nil {
				return domain.Submission{}, fmt.Errorf("authors[%d]: %w", i, err)
			}
		}
	}
	var sub domain.Submission
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		sub, err = e.Repo.GetSubmission(ctx, tx, opts.SubmissionID)
		if err != nil {
			return err
		}
		if sub.OwnerID != p.ActorID {
			if err := e.Auth.Require(p, config.PermDecide); err != nil {
				return err
			}
		}
		if err := lifecycle.Check(sub.Status, domain.StatusInReview); err != nil {
			return err
		}
		if lifecycle.Editorial(sub.Status) {
			return fault.Conflict(fmt.Sprintf("submission %s is %s, not awaiting a revision", sub.ID, sub.Status))
		}
		now := e.nowString()
		if t := strings.TrimSpace(opts.Title); t != "" {
			sub.Title = t
		}
		if a := strings.TrimSpace(opts.Abstract); a != "" {
			sub.Abstract = a
		}
		if authors != nil {
			sub.Authors = authors
		}
		sub.UpdatedAt = now
		if err := e.Repo.UpdateSubmissionContent(ctx, tx, sub); err != nil {
			return err
		}
		rv, err := e.Repo.OpenReview(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if rv.Status == domain.ReviewPending {
			if err := e.Repo.SetReviewStatus(ctx, tx, rv.ID, domain.ReviewPending, domain.ReviewInProgress, now); err != nil {
				return err
			}
		}
		prev := sub.Status
		sub.Status = domain.StatusInReview
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "submission.resubmitted", "submission", sub.ID, p.ActorID, events.EventPayload{
			"from":      prev,
			"to":        sub.Status,
			"round":     sub.Round,
			"review_id": rv.ID,
		})
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// MarkReviewsCompleted closes peer review of the current round by hand.
func (e Engine) MarkReviewsCompleted(ctx context.Context, p auth.Principal, submissionID string) (domain.Submission, error) {
	return e.transition(ctx, p, config.PermDecide, submissionID, domain.StatusReviewsCompleted, "submission.reviews_completed")
}

func (e Engine) Publish(ctx context.Context, p auth.Principal, submissionID string) (domain.Submission, error) {
	return e.transition(ctx, p, config.PermPublish, submissionID, domain.StatusPublished, "submission.published")
}

func (e Engine) transition(ctx context.Context, p auth.Principal, perm, submissionID string, to domain.SubmissionStatus, evtType string) (domain.Submission, error) {
	if err := e.Auth.Require(p, perm); err != nil {
		return domain.Submission{}, err
	}
	var sub domain.Submission
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		sub, err = e.Repo.GetSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if err := lifecycle.Check(sub.Status, to); err != nil {
			return err
		}
		prev := sub.Status
		sub.Status = to
		sub.UpdatedAt = e.nowString()
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, evtType, "submission", sub.ID, p.ActorID, events.EventPayload{"from": prev, "to": to})
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

type RepairResult struct {
	Submission   domain.Submission       `json:"submission"`
	Changed      bool                    `json:"changed"`
	OpenedReview *domain.EditorialReview `json:"opened_review,omitempty"`
}

// RepairSubmission re-derives status and round from the review history and
// rewrites the submission when it lags. Running it twice changes nothing.
func (e Engine) RepairSubmission(ctx context.Context, p auth.Principal, submissionID string) (RepairResult, error) {
	if err := e.Auth.Require(p, config.PermRepair); err != nil {
		return RepairResult{}, err
	}
	var res RepairResult
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		res = RepairResult{}
		sub, err := e.Repo.GetSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		reviews, err := e.Repo.ListReviews(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		d := lifecycle.Derive(sub, reviews)
		now := e.nowString()
		if d.OpenRound > 0 {
			editorID := reviews[len(reviews)-1].EditorID
			rv := domain.EditorialReview{
				ID:           uuid.NewString(),
				SubmissionID: sub.ID,
				Round:        d.OpenRound,
				Status:       domain.ReviewPending,
				EditorID:     editorID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := e.Repo.InsertReview(ctx, tx, rv); err != nil {
				return err
			}
			res.OpenedReview = &rv
		}
		if d.Status == sub.Status && d.Round == sub.Round && res.OpenedReview == nil {
			res.Submission = sub
			return nil
		}
		prev := sub.Status
		sub.Status = d.Status
		sub.Round = d.Round
		sub.UpdatedAt = now
		if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
			return err
		}
		res.Submission = sub
		res.Changed = true
		payload := events.EventPayload{"from": prev, "to": sub.Status, "round": sub.Round}
		if res.OpenedReview != nil {
			payload["opened_review_id"] = res.OpenedReview.ID
		}
		return e.appendEvent(ctx, tx, "submission.repaired", "submission", sub.ID, p.ActorID, payload)
	})
	if err != nil {
		return RepairResult{}, err
	}
	if res.Changed {
		e.logger().WithFields(logrus.Fields{
			"module":        "engine",
			"submission_id": res.Submission.ID,
			"status":        res.Submission.Status,
			"round":         res.Submission.Round,
		}).Warn("submission state repaired from review history")
	}
	return res, nil
}

// notifyDecision mails every author. Failures are logged and never undo the decision.
func (e Engine) notifyDecision(ctx context.Context, sub domain.Submission, decision domain.Decision, feedback string) {
	for _, a := range sub.Authors {
		to := a.Email
		if a.IsMinor && a.GuardianEmail != "" {
			to = a.GuardianEmail
		}
		msg, err := notify.RenderDecision(notify.DecisionNotice{
			To:              to,
			AuthorName:      a.Name,
			SubmissionTitle: sub.Title,
			Decision:        string(decision),
			Feedback:        feedback,
			Journal:         e.journalName(),
			Locale:          e.locale(sub.Language),
		})
		if err != nil {
			logging.LogError(e.logger(), "engine", "notifyDecision", err, logrus.Fields{"submission_id": sub.ID})
			continue
		}
		if err := e.Notifier.Send(ctx, msg); err != nil {
			logging.LogError(e.logger(), "engine", "notifyDecision", err, logrus.Fields{"submission_id": sub.ID, "to": to})
		}
	}
}
