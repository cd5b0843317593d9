package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

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

// InvitationSendOptions invite one reviewer to one review round. SubmissionID
// and Round are taken from the review when empty and checked against it otherwise.
type InvitationSendOptions struct {
	EditorialReviewID string `json:"editorial_review_id" validate:"required"`
	SubmissionID      string `json:"submission_id"`
	Round             int    `json:"round" validate:"gte=0"`
	ReviewerEmail     string `json:"reviewer_email" validate:"required,email"`
	ReviewerName      string `json:"reviewer_name" validate:"required"`
	ExpiresInDays     int    `json:"expires_in_days" validate:"gte=0,lte=90"`
	Locale            string `json:"locale"`
}

func (e Engine) expiresIn(days int) time.Duration {
	if days > 0 {
		return time.Duration(days) * 24 * time.Hour
	}
	if e.Config != nil {
		return e.Config.ExpiresIn()
	}
	return 7 * 24 * time.Hour
}

// expired reads the expiry at call time; nothing sweeps stale invitations.
func (e Engine) expired(inv domain.ReviewerInvitation) bool {
	at, err := time.Parse(time.RFC3339, inv.ExpiresAt)
	if err != nil {
		return true
	}
	return !e.now().Before(at)
}

// SendInvitation persists a pending invitation and mails the reviewer after
// commit. A desk-accepted submission enters in_review with its first invitation.
func (e Engine) SendInvitation(ctx context.Context, p auth.Principal, opts InvitationSendOptions) (domain.ReviewerInvitation, error) {
	if err := e.Auth.Require(p, config.PermInvitationSend); err != nil {
		return domain.ReviewerInvitation{}, err
	}
	opts.ReviewerEmail = normalizeEmail(opts.ReviewerEmail)
	opts.ReviewerName = strings.TrimSpace(opts.ReviewerName)
	if err := validateStruct(opts); err != nil {
		return domain.ReviewerInvitation{}, err
	}
	token, err := newToken()
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	var inv domain.ReviewerInvitation
	var sub domain.Submission
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		rv, err := e.Repo.GetReview(ctx, tx, opts.EditorialReviewID)
		if err != nil {
			return err
		}
		if rv.Status == domain.ReviewCompleted {
			return fault.Conflict("review already completed")
		}
		if opts.SubmissionID != "" && opts.SubmissionID != rv.SubmissionID {
			return fault.Invalid("submission_id", "does not match the review")
		}
		if opts.Round != 0 && opts.Round != rv.Round {
			return fault.Invalid("round", "does not match the review")
		}
		sub, err = e.Repo.GetSubmission(ctx, tx, rv.SubmissionID)
		if err != nil {
			return err
		}
		now := e.nowString()
		switch sub.Status {
		case domain.StatusInReview:
		case domain.StatusDeskAccepted:
			if err := lifecycle.Check(sub.Status, domain.StatusInReview); err != nil {
				return err
			}
			prev := sub.Status
			sub.Status = domain.StatusInReview
			sub.UpdatedAt = now
			if err := e.Repo.UpdateSubmissionState(ctx, tx, sub, prev); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, tx, "submission.in_review", "submission", sub.ID, p.ActorID, events.EventPayload{
				"from": prev, "to": sub.Status,
			}); err != nil {
				return err
			}
		default:
			return fault.Conflict(fmt.Sprintf("cannot invite reviewers while submission is %s", sub.Status))
		}
		if rv.Status == domain.ReviewPending {
			if err := e.Repo.SetReviewStatus(ctx, tx, rv.ID, domain.ReviewPending, domain.ReviewInProgress, now); err != nil {
				return err
			}
		}
		if _, err := e.Repo.FindInvitation(ctx, tx, rv.ID, opts.ReviewerEmail, rv.Round); err == nil {
			return fault.Conflict("invitation already exists for this reviewer and round")
		} else if !errors.Is(err, fault.ErrNotFound) {
			return err
		}
		inv = domain.ReviewerInvitation{
			ID:                uuid.NewString(),
			EditorialReviewID: rv.ID,
			SubmissionID:      sub.ID,
			Round:             rv.Round,
			ReviewerEmail:     opts.ReviewerEmail,
			ReviewerName:      opts.ReviewerName,
			Token:             token,
			Status:            domain.InvitationPending,
			ExpiresAt:         e.now().Add(e.expiresIn(opts.ExpiresInDays)).UTC().Format(time.RFC3339),
			CreatedAt:         now,
			InvitedBy:         p.ActorID,
		}
		if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "invitation.sent", "invitation", inv.ID, p.ActorID, events.EventPayload{
			"review_id":      rv.ID,
			"submission_id":  sub.ID,
			"round":          rv.Round,
			"reviewer_email": inv.ReviewerEmail,
			"expires_at":     inv.ExpiresAt,
		})
	})
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	if err := e.deliverInvitation(ctx, inv, sub, e.locale(opts.Locale, sub.Language), false); err == nil {
		now := e.nowString()
		if err := e.Repo.MarkInvitationNotified(ctx, inv.ID, now); err != nil {
			logging.LogError(e.logger(), "engine", "SendInvitation", err, logrus.Fields{"invitation_id": inv.ID})
		} else {
			inv.NotifiedAt = &now
		}
	}
	return inv, nil
}

func (e Engine) invitationNotice(inv domain.ReviewerInvitation, sub domain.Submission, locale string, reminder bool) notify.InvitationNotice {
	return notify.InvitationNotice{
		To:              inv.ReviewerEmail,
		ReviewerName:    inv.ReviewerName,
		SubmissionTitle: sub.Title,
		Abstract:        sub.Abstract,
		RespondURL:      e.respondURL(inv.Token, locale),
		ExpiresAt:       inv.ExpiresAt,
		Journal:         e.journalName(),
		Locale:          locale,
		Reminder:        reminder,
	}
}

// deliverInvitation renders and sends the invitation mail. The error is logged
// here; callers only decide whether to record the delivery.
func (e Engine) deliverInvitation(ctx context.Context, inv domain.ReviewerInvitation, sub domain.Submission, locale string, reminder bool) error {
	msg, err := notify.RenderInvitation(e.invitationNotice(inv, sub, locale, reminder))
	if err == nil {
		err = e.Notifier.Send(ctx, msg)
	}
	if err != nil {
		logging.LogError(e.logger(), "engine", "deliverInvitation", err, logrus.Fields{
			"invitation_id": inv.ID,
			"to":            inv.ReviewerEmail,
			"reminder":      reminder,
		})
	}
	return err
}

// InvitationView is what a reviewer sees when following the mailed link.
type InvitationView struct {
	Invitation      domain.ReviewerInvitation `json:"invitation"`
	SubmissionTitle string                    `json:"submission_title"`
	Abstract        string                    `json:"abstract,omitempty"`
	Journal         string                    `json:"journal"`
}

// GetInvitationByToken reports unknown and expired tokens alike as not found.
func (e Engine) GetInvitationByToken(ctx context.Context, token string) (InvitationView, error) {
	inv, err := e.invitationByToken(ctx, token)
	if err != nil {
		return InvitationView{}, err
	}
	sub, err := e.Repo.GetSubmission(ctx, nil, inv.SubmissionID)
	if err != nil {
		return InvitationView{}, err
	}
	return InvitationView{
		Invitation:      inv,
		SubmissionTitle: sub.Title,
		Abstract:        sub.Abstract,
		Journal:         e.journalName(),
	}, nil
}

func (e Engine) invitationByToken(ctx context.Context, token string) (domain.ReviewerInvitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ReviewerInvitation{}, fault.NotFound("invitation")
	}
	inv, err := e.Repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	if e.expired(inv) {
		return domain.ReviewerInvitation{}, fault.NotFound("invitation")
	}
	return inv, nil
}

type InvitationResponse struct {
	Accept             bool
	ConflictOfInterest string
}

// RespondByToken is the public path: the token is the reviewer's only credential.
func (e Engine) RespondByToken(ctx context.Context, token string, resp InvitationResponse) (domain.ReviewerInvitation, error) {
	inv, err := e.invitationByToken(ctx, token)
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	return e.respond(ctx, inv, resp, "reviewer:"+inv.ReviewerEmail)
}

// RespondToInvitation records a response for an invitation id. The invited
// reviewer may answer for themselves; editors may record an answer given
// out of band.
func (e Engine) RespondToInvitation(ctx context.Context, p auth.Principal, id string, resp InvitationResponse) (domain.ReviewerInvitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, nil, id)
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	if p.Email == "" || normalizeEmail(p.Email) != inv.ReviewerEmail {
		if err := e.Auth.Require(p, config.PermInvitationSend); err != nil {
			return domain.ReviewerInvitation{}, err
		}
	}
	if e.expired(inv) {
		return domain.ReviewerInvitation{}, fault.NotFound("invitation")
	}
	return e.respond(ctx, inv, resp, p.ActorID)
}

func (e Engine) respond(ctx context.Context, inv domain.ReviewerInvitation, resp InvitationResponse, actorID string) (domain.ReviewerInvitation, error) {
	if inv.Status != domain.InvitationPending {
		return domain.ReviewerInvitation{}, fault.Conflict("invitation already processed")
	}
	coi := strings.TrimSpace(resp.ConflictOfInterest)
	if resp.Accept && coi == "" {
		return domain.ReviewerInvitation{}, fault.Invalid("conflict_of_interest", "is required when accepting")
	}
	status := domain.InvitationDeclined
	if resp.Accept {
		status = domain.InvitationAccepted
	}
	var coiPtr *string
	if coi != "" {
		coiPtr = &coi
	}
	now := e.nowString()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RespondInvitation(ctx, tx, inv.ID, status, coiPtr, now); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "invitation."+string(status), "invitation", inv.ID, actorID, events.EventPayload{
			"review_id":      inv.EditorialReviewID,
			"submission_id":  inv.SubmissionID,
			"round":          inv.Round,
			"reviewer_email": inv.ReviewerEmail,
		})
	})
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	inv.Status = status
	inv.ConflictOfInterest = coiPtr
	inv.RespondedAt = &now
	return inv, nil
}

func (e Engine) ListInvitations(ctx context.Context, p auth.Principal, f repo.InvitationFilters) ([]domain.ReviewerInvitation, error) {
	if err := e.Auth.Require(p, config.PermInvitationRead); err != nil {
		return nil, err
	}
	return e.Repo.ListInvitations(ctx, nil, f)
}

// ResendInvitation issues a fresh token and expiry for a pending invitation
// and mails it again. The previous link stops working.
func (e Engine) ResendInvitation(ctx context.Context, p auth.Principal, id string) (domain.ReviewerInvitation, error) {
	if err := e.Auth.Require(p, config.PermInvitationSend); err != nil {
		return domain.ReviewerInvitation{}, err
	}
	token, err := newToken()
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	var inv domain.ReviewerInvitation
	var sub domain.Submission
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = e.Repo.GetInvitation(ctx, tx, id)
		if err != nil {
			return err
		}
		if inv.Status != domain.InvitationPending {
			return fault.Conflict("invitation already processed")
		}
		sub, err = e.Repo.GetSubmission(ctx, tx, inv.SubmissionID)
		if err != nil {
			return err
		}
		inv.Token = token
		inv.ExpiresAt = e.now().Add(e.expiresIn(0)).UTC().Format(time.RFC3339)
		inv.NotifiedAt = nil
		inv.RemindedAt = nil
		if err := e.Repo.RenewInvitation(ctx, tx, inv.ID, inv.Token, inv.ExpiresAt); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "invitation.resent", "invitation", inv.ID, p.ActorID, events.EventPayload{
			"reviewer_email": inv.ReviewerEmail,
			"expires_at":     inv.ExpiresAt,
		})
	})
	if err != nil {
		return domain.ReviewerInvitation{}, err
	}
	if err := e.deliverInvitation(ctx, inv, sub, e.locale(sub.Language), false); err == nil {
		now := e.nowString()
		if err := e.Repo.MarkInvitationNotified(ctx, inv.ID, now); err == nil {
			inv.NotifiedAt = &now
		}
	}
	return inv, nil
}

// Reminder is the structured payload of one reminder and its outcome.
type Reminder struct {
	InvitationID    string `json:"invitation_id"`
	SubmissionID    string `json:"submission_id"`
	To              string `json:"to"`
	ReviewerName    string `json:"reviewer_name"`
	SubmissionTitle string `json:"submission_title"`
	ExpiresAt       string `json:"expires_at"`
	RespondURL      string `json:"respond_url"`
	Delivered       bool   `json:"delivered"`
	Error           string `json:"error,omitempty"`
}

// SendReminders nudges reviewers whose invitations are still pending and
// unexpired after olderThan (the configured reminder delay when zero). Each
// invitation is reminded at most once.
func (e Engine) SendReminders(ctx context.Context, p auth.Principal, olderThan time.Duration) ([]Reminder, error) {
	if err := e.Auth.Require(p, config.PermNotificationRemind); err != nil {
		return nil, err
	}
	if olderThan <= 0 {
		days := 3
		if e.Config != nil && e.Config.Invitations.ReminderAfterDays > 0 {
			days = e.Config.Invitations.ReminderAfterDays
		}
		olderThan = time.Duration(days) * 24 * time.Hour
	}
	now := e.now()
	due, err := e.Repo.DueForReminder(ctx, now.UTC().Format(time.RFC3339), now.Add(-olderThan).UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	out := make([]Reminder, 0, len(due))
	for _, inv := range due {
		sub, err := e.Repo.GetSubmission(ctx, nil, inv.SubmissionID)
		if err != nil {
			return out, err
		}
		locale := e.locale(sub.Language)
		r := Reminder{
			InvitationID:    inv.ID,
			SubmissionID:    sub.ID,
			To:              inv.ReviewerEmail,
			ReviewerName:    inv.ReviewerName,
			SubmissionTitle: sub.Title,
			ExpiresAt:       inv.ExpiresAt,
			RespondURL:      e.respondURL(inv.Token, locale),
		}
		if err := e.deliverInvitation(ctx, inv, sub, locale, true); err != nil {
			r.Error = err.Error()
			out = append(out, r)
			continue
		}
		err = e.withTx(ctx, func(tx *sql.Tx) error {
			if err := e.Repo.MarkInvitationReminded(ctx, tx, inv.ID, e.nowString()); err != nil {
				return err
			}
			return e.appendEvent(ctx, tx, "invitation.reminded", "invitation", inv.ID, p.ActorID, events.EventPayload{
				"reviewer_email": inv.ReviewerEmail,
			})
		})
		if err != nil {
			return out, err
		}
		r.Delivered = true
		out = append(out, r)
	}
	return out, nil
}
