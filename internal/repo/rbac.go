package repo

import (
	"context"
	"database/sql"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, email, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, email, created_at) VALUES (?,?,?)`, actorID, nullable(email), now)
	return err
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, actorID, roleID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role_id) VALUES (?,?)`, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID, roleID string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID)
	return err
}

// ActorRoles returns the roles granted to an actor in the store.
func (r Repo) ActorRoles(ctx context.Context, tx *sql.Tx, actorID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RoleGrant is one actor/role pair.
type RoleGrant struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

func (r Repo) ListRoleGrants(ctx context.Context) ([]RoleGrant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id, role_id FROM actor_roles ORDER BY actor_id, role_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleGrant
	for rows.Next() {
		var g RoleGrant
		if err := rows.Scan(&g.ActorID, &g.RoleID); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountRoleGrants reports how many grants exist; zero means a fresh journal.
func (r Repo) CountRoleGrants(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM actor_roles`).Scan(&n)
	return n, err
}

// ActorEmail returns the stored e-mail of an actor, empty when unknown.
func (r Repo) ActorEmail(ctx context.Context, actorID string) (string, error) {
	var email sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT email FROM actors WHERE id=?`, actorID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email.String, err
}
