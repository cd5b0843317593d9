package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"folio/internal/domain"
)

// UpsertScore stores a role's scorecard, replacing an earlier one.
func (r Repo) UpsertScore(ctx context.Context, tx *sql.Tx, s domain.RubricScore) error {
	data, err := json.Marshal(s.Scores)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO rubric_scores(editorial_review_id,role,scores_json,total,max,scorer_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(editorial_review_id, role) DO UPDATE SET
  scores_json=excluded.scores_json, total=excluded.total, max=excluded.max,
  scorer_id=excluded.scorer_id, updated_at=excluded.updated_at`,
		s.EditorialReviewID, s.Role, string(data), s.Total, s.Max, s.ScorerID, s.CreatedAt, s.UpdatedAt)
	return err
}

// ListScores returns the scorecards of a review keyed by role.
func (r Repo) ListScores(ctx context.Context, tx *sql.Tx, reviewID string) (map[string]domain.RubricScore, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT editorial_review_id,role,scores_json,total,max,scorer_id,created_at,updated_at
FROM rubric_scores WHERE editorial_review_id=?`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]domain.RubricScore{}
	for rows.Next() {
		var s domain.RubricScore
		var data string
		if err := rows.Scan(&s.EditorialReviewID, &s.Role, &data, &s.Total, &s.Max, &s.ScorerID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &s.Scores); err != nil {
			return nil, fmt.Errorf("decode scores %s/%s: %w", s.EditorialReviewID, s.Role, err)
		}
		out[s.Role] = s
	}
	return out, rows.Err()
}
