package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"folio/internal/domain"
	"folio/internal/fault"
)

const submissionColumns = `id,title,abstract,subject_area,language,authors_json,status,round,owner_id,created_at,updated_at,desk_reviewed_at,decided_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var s domain.Submission
	var abstract, subject, lang, deskAt, decidedAt sql.NullString
	var authors string
	err := row.Scan(&s.ID, &s.Title, &abstract, &subject, &lang, &authors, &s.Status, &s.Round, &s.OwnerID,
		&s.CreatedAt, &s.UpdatedAt, &deskAt, &decidedAt)
	if err == sql.ErrNoRows {
		return s, fault.NotFound("submission")
	}
	if err != nil {
		return s, err
	}
	s.Abstract = abstract.String
	s.SubjectArea = subject.String
	s.Language = lang.String
	s.DeskReviewedAt = optional(deskAt)
	s.DecidedAt = optional(decidedAt)
	if err := json.Unmarshal([]byte(authors), &s.Authors); err != nil {
		return s, fmt.Errorf("decode authors of %s: %w", s.ID, err)
	}
	return s, nil
}

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	authors, err := json.Marshal(s.Authors)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO submissions(`+submissionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Title, nullable(s.Abstract), nullable(s.SubjectArea), nullable(s.Language), string(authors), s.Status, s.Round,
		s.OwnerID, s.CreatedAt, s.UpdatedAt, nullableStringPtr(s.DeskReviewedAt), nullableStringPtr(s.DecidedAt))
	if isUniqueViolation(err) {
		return fault.Conflict(fmt.Sprintf("submission %s already exists", s.ID))
	}
	return err
}

func (r Repo) GetSubmission(ctx context.Context, tx *sql.Tx, id string) (domain.Submission, error) {
	return scanSubmission(r.q(tx).QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id))
}

// UpdateSubmissionState writes status, round and timestamps only if the stored
// status is still expected. A lost race surfaces as a ConflictError.
func (r Repo) UpdateSubmissionState(ctx context.Context, tx *sql.Tx, s domain.Submission, expected domain.SubmissionStatus) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE submissions SET status=?, round=?, updated_at=?, desk_reviewed_at=?, decided_at=?
WHERE id=? AND status=?`,
		s.Status, s.Round, s.UpdatedAt, nullableStringPtr(s.DeskReviewedAt), nullableStringPtr(s.DecidedAt), s.ID, expected)
	return expectOne(res, err, fault.Conflict(fmt.Sprintf("submission %s is no longer %s", s.ID, expected)))
}

// UpdateSubmissionContent replaces the manuscript metadata of a revision.
func (r Repo) UpdateSubmissionContent(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	authors, err := json.Marshal(s.Authors)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE submissions SET title=?, abstract=?, subject_area=?, language=?, authors_json=?, updated_at=? WHERE id=?`,
		s.Title, nullable(s.Abstract), nullable(s.SubjectArea), nullable(s.Language), string(authors), s.UpdatedAt, s.ID)
	return expectOne(res, err, fault.NotFound("submission"))
}

type SubmissionFilters struct {
	Status          string
	OwnerID         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilters) ([]domain.Submission, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CountSubmissionsByStatus feeds the dashboard summary.
func (r Repo) CountSubmissionsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
