package repo

import (
	"context"
	"database/sql"
	"strings"

	"folio/internal/domain"
	"folio/internal/fault"
)

const invitationColumns = `id,editorial_review_id,submission_id,round,reviewer_email,reviewer_name,token,status,conflict_of_interest,expires_at,created_at,responded_at,invited_by,notified_at,reminded_at`

func scanInvitation(row rowScanner) (domain.ReviewerInvitation, error) {
	var inv domain.ReviewerInvitation
	var coi, respondedAt, notifiedAt, remindedAt sql.NullString
	err := row.Scan(&inv.ID, &inv.EditorialReviewID, &inv.SubmissionID, &inv.Round, &inv.ReviewerEmail, &inv.ReviewerName,
		&inv.Token, &inv.Status, &coi, &inv.ExpiresAt, &inv.CreatedAt, &respondedAt, &inv.InvitedBy, &notifiedAt, &remindedAt)
	if err == sql.ErrNoRows {
		return inv, fault.NotFound("invitation")
	}
	if err != nil {
		return inv, err
	}
	inv.ConflictOfInterest = optional(coi)
	inv.RespondedAt = optional(respondedAt)
	inv.NotifiedAt = optional(notifiedAt)
	inv.RemindedAt = optional(remindedAt)
	return inv, nil
}

// InsertInvitation persists a pending invitation. Duplicates on
// (review, email, round) are rejected by a unique index.
func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.ReviewerInvitation) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reviewer_invitations(`+invitationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.EditorialReviewID, inv.SubmissionID, inv.Round, inv.ReviewerEmail, inv.ReviewerName, inv.Token, inv.Status,
		nullableStringPtr(inv.ConflictOfInterest), inv.ExpiresAt, inv.CreatedAt, nullableStringPtr(inv.RespondedAt), inv.InvitedBy,
		nullableStringPtr(inv.NotifiedAt), nullableStringPtr(inv.RemindedAt))
	if isUniqueViolation(err) {
		return fault.Conflict("invitation already exists for this reviewer and round")
	}
	return err
}

func (r Repo) GetInvitation(ctx context.Context, tx *sql.Tx, id string) (domain.ReviewerInvitation, error) {
	return scanInvitation(r.q(tx).QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM reviewer_invitations WHERE id=?`, id))
}

func (r Repo) GetInvitationByToken(ctx context.Context, token string) (domain.ReviewerInvitation, error) {
	return scanInvitation(r.DB.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM reviewer_invitations WHERE token=?`, token))
}

// FindInvitation looks up the invitation for (review, email, round).
func (r Repo) FindInvitation(ctx context.Context, tx *sql.Tx, reviewID, email string, round int) (domain.ReviewerInvitation, error) {
	return scanInvitation(r.q(tx).QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM reviewer_invitations
WHERE editorial_review_id=? AND reviewer_email=? AND round=?`, reviewID, email, round))
}

// RespondInvitation resolves a pending invitation exactly once.
func (r Repo) RespondInvitation(ctx context.Context, tx *sql.Tx, id string, status domain.InvitationStatus, coi *string, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE reviewer_invitations SET status=?, conflict_of_interest=?, responded_at=?
WHERE id=? AND status='pending'`, status, nullableStringPtr(coi), now, id)
	return expectOne(res, err, fault.Conflict("invitation already processed"))
}

// RenewInvitation replaces the token and expiry of a pending invitation.
func (r Repo) RenewInvitation(ctx context.Context, tx *sql.Tx, id, token, expiresAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE reviewer_invitations SET token=?, expires_at=?, notified_at=NULL, reminded_at=NULL
WHERE id=? AND status='pending'`, token, expiresAt, id)
	return expectOne(res, err, fault.Conflict("invitation already processed"))
}

func (r Repo) MarkInvitationNotified(ctx context.Context, id, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE reviewer_invitations SET notified_at=? WHERE id=?`, now, id)
	return err
}

func (r Repo) MarkInvitationReminded(ctx context.Context, tx *sql.Tx, id, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE reviewer_invitations SET reminded_at=? WHERE id=? AND status='pending'`, now, id)
	return err
}

type InvitationFilters struct {
	ReviewID     string
	SubmissionID string
	Status       string
	Email        string
	Limit        int
}

func (r Repo) ListInvitations(ctx context.Context, tx *sql.Tx, f InvitationFilters) ([]domain.ReviewerInvitation, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ReviewID != "" {
		clauses = append(clauses, "editorial_review_id=?")
		args = append(args, f.ReviewID)
	}
	if f.SubmissionID != "" {
		clauses = append(clauses, "submission_id=?")
		args = append(args, f.SubmissionID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Email != "" {
		clauses = append(clauses, "reviewer_email=?")
		args = append(args, strings.ToLower(f.Email))
	}
	query := `SELECT ` + invitationColumns + ` FROM reviewer_invitations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewerInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

// DueForReminder returns pending, unexpired, never-reminded invitations created
// at or before cutoff.
func (r Repo) DueForReminder(ctx context.Context, now, cutoff string) ([]domain.ReviewerInvitation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+invitationColumns+` FROM reviewer_invitations
WHERE status='pending' AND reminded_at IS NULL AND expires_at > ? AND created_at <= ?
ORDER BY created_at ASC, id ASC`, now, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewerInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}
