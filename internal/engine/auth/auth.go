package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"folio/internal/config"
	"folio/internal/repo"
)

// Principal is the caller as supplied by the identity source.
type Principal struct {
	ActorID string   `json:"actor_id"`
	Email   string   `json:"email,omitempty"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Required   []string
}

func (e ForbiddenError) Error() string {
	if len(e.Required) == 0 {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (one of roles %s)", e.Permission, strings.Join(e.Required, ", "))
}

// RequireAny succeeds when the principal's roles intersect required.
func RequireAny(p Principal, required ...string) error {
	for _, want := range required {
		if p.HasRole(want) {
			return nil
		}
	}
	sorted := append([]string(nil), required...)
	sort.Strings(sorted)
	return ForbiddenError{Required: sorted}
}

// Service resolves roles and checks permissions against the configured role table.
type Service struct {
	Repo   repo.Repo
	Config *config.Config
}

// Require checks that one of the principal's roles grants perm.
func (s Service) Require(p Principal, perm string) error {
	if s.Config == nil {
		return errors.New("config not loaded")
	}
	required := s.Config.RolesWith(perm)
	if err := RequireAny(p, required...); err != nil {
		fe := err.(ForbiddenError)
		fe.Permission = perm
		return fe
	}
	return nil
}

// Can is Require as a predicate.
func (s Service) Can(p Principal, perm string) bool {
	return s.Require(p, perm) == nil
}

// Permissions lists what the principal may do.
func (s Service) Permissions(p Principal) []string {
	if s.Config == nil {
		return nil
	}
	set := map[string]struct{}{}
	for _, role := range p.Roles {
		for _, perm := range s.Config.RBAC.Roles[role].Permissions {
			set[perm] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Resolve builds a principal for an actor from its stored role grants. extra
// roles, for example from a token claim, are merged in.
func (s Service) Resolve(ctx context.Context, tx *sql.Tx, actorID string, extra ...string) (Principal, error) {
	if actorID == "" {
		return Principal{}, errors.New("actor_id required")
	}
	roles, err := s.Repo.ActorRoles(ctx, tx, actorID)
	if err != nil {
		return Principal{}, err
	}
	seen := map[string]struct{}{}
	var merged []string
	for _, r := range append(roles, extra...) {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged = append(merged, r)
	}
	sort.Strings(merged)
	return Principal{ActorID: actorID, Roles: merged}, nil
}
