package repo

import (
	"context"
	"database/sql"
	"fmt"

	"folio/internal/domain"
	"folio/internal/fault"
)

const reviewColumns = `id,submission_id,round,status,editor_id,decision,feedback_to_author,internal_comments,created_at,updated_at,completed_at`

func scanReview(row rowScanner) (domain.EditorialReview, error) {
	var rv domain.EditorialReview
	var decision, feedback, internal, completedAt sql.NullString
	err := row.Scan(&rv.ID, &rv.SubmissionID, &rv.Round, &rv.Status, &rv.EditorID, &decision, &feedback, &internal,
		&rv.CreatedAt, &rv.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return rv, fault.NotFound("editorial review")
	}
	if err != nil {
		return rv, err
	}
	if decision.Valid {
		d := domain.Decision(decision.String)
		rv.Decision = &d
	}
	rv.FeedbackToAuthor = feedback.String
	rv.InternalComments = internal.String
	rv.CompletedAt = optional(completedAt)
	return rv, nil
}

// InsertReview opens a review round. The partial unique index rejects a second
// open review for the same (submission, round).
func (r Repo) InsertReview(ctx context.Context, tx *sql.Tx, rv domain.EditorialReview) error {
	var decision any
	if rv.Decision != nil {
		decision = string(*rv.Decision)
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO editorial_reviews(`+reviewColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rv.ID, rv.SubmissionID, rv.Round, rv.Status, rv.EditorID, decision, nullable(rv.FeedbackToAuthor),
		nullable(rv.InternalComments), rv.CreatedAt, rv.UpdatedAt, nullableStringPtr(rv.CompletedAt))
	if isUniqueViolation(err) {
		return fault.Conflict(fmt.Sprintf("an open review already exists for submission %s round %d", rv.SubmissionID, rv.Round))
	}
	return err
}

func (r Repo) GetReview(ctx context.Context, tx *sql.Tx, id string) (domain.EditorialReview, error) {
	return scanReview(r.q(tx).QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM editorial_reviews WHERE id=?`, id))
}

// OpenReview returns the non-completed review of the latest round.
func (r Repo) OpenReview(ctx context.Context, tx *sql.Tx, submissionID string) (domain.EditorialReview, error) {
	return scanReview(r.q(tx).QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM editorial_reviews
WHERE submission_id=? AND status<>'completed' ORDER BY round DESC, created_at DESC LIMIT 1`, submissionID))
}

// ListReviews returns a submission's reviews oldest round first.
func (r Repo) ListReviews(ctx context.Context, tx *sql.Tx, submissionID string) ([]domain.EditorialReview, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+reviewColumns+` FROM editorial_reviews WHERE submission_id=? ORDER BY round ASC, created_at ASC, id ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EditorialReview
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

// SetReviewStatus moves an open review between pending and in_progress.
func (r Repo) SetReviewStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.ReviewStatus, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE editorial_reviews SET status=?, updated_at=? WHERE id=? AND status=?`, to, now, id, from)
	return expectOne(res, err, fault.Conflict(fmt.Sprintf("review %s is no longer %s", id, from)))
}

// CompleteReview records the decision. The status guard makes a second decision
// on the same review fail instead of overwriting the first.
func (r Repo) CompleteReview(ctx context.Context, tx *sql.Tx, id string, decision domain.Decision, feedback, internal, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE editorial_reviews
SET status='completed', decision=?, feedback_to_author=?, internal_comments=?, updated_at=?, completed_at=?
WHERE id=? AND status<>'completed'`,
		string(decision), nullable(feedback), nullable(internal), now, now, id)
	return expectOne(res, err, fault.Conflict("review already completed"))
}
