package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/engine/auth"
	"folio/internal/events"
	"folio/internal/fault"
	"folio/internal/reconcile"
	"folio/internal/repo"
)

// BootstrapRole is granted to the first actor of a fresh journal.
const BootstrapRole = "editor-in-chief"

// Principal resolves an authenticated actor. Roles carried by a token claim
// are merged with the grants stored for the actor; a missing e-mail is taken
// from the actor record.
func (e Engine) Principal(ctx context.Context, actorID, email string, claimRoles ...string) (auth.Principal, error) {
	p, err := e.Auth.Resolve(ctx, nil, actorID, claimRoles...)
	if err != nil {
		return auth.Principal{}, err
	}
	if email == "" {
		if email, err = e.Repo.ActorEmail(ctx, actorID); err != nil {
			return auth.Principal{}, err
		}
	}
	p.Email = normalizeEmail(email)
	return p, nil
}

// Bootstrap grants BootstrapRole to actorID when no role has been granted yet.
// It reports whether the grant happened.
func (e Engine) Bootstrap(ctx context.Context, actorID, email string) (bool, error) {
	if strings.TrimSpace(actorID) == "" {
		return false, fault.Invalid("actor_id", "is required")
	}
	granted := false
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		granted = false
		n, err := e.Repo.CountRoleGrants(ctx, tx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		now := e.nowString()
		if err := e.Repo.EnsureActor(ctx, tx, actorID, normalizeEmail(email), now); err != nil {
			return err
		}
		if err := e.Repo.AssignRole(ctx, tx, actorID, BootstrapRole); err != nil {
			return err
		}
		granted = true
		return e.appendEvent(ctx, tx, "role.granted", "actor", actorID, actorID, events.EventPayload{
			"role":      BootstrapRole,
			"bootstrap": true,
		})
	})
	return granted, err
}

func (e Engine) GrantRole(ctx context.Context, p auth.Principal, actorID, email, role string) error {
	if err := e.Auth.Require(p, config.PermRoleManage); err != nil {
		return err
	}
	if strings.TrimSpace(actorID) == "" {
		return fault.Invalid("actor_id", "is required")
	}
	if _, ok := e.Config.RBAC.Roles[role]; !ok {
		return fault.Invalid("role", "is not defined in rbac.roles")
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureActor(ctx, tx, actorID, normalizeEmail(email), e.nowString()); err != nil {
			return err
		}
		if err := e.Repo.AssignRole(ctx, tx, actorID, role); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "role.granted", "actor", actorID, p.ActorID, events.EventPayload{"role": role})
	})
}

func (e Engine) RevokeRole(ctx context.Context, p auth.Principal, actorID, role string) error {
	if err := e.Auth.Require(p, config.PermRoleManage); err != nil {
		return err
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RevokeRole(ctx, tx, actorID, role); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "role.revoked", "actor", actorID, p.ActorID, events.EventPayload{"role": role})
	})
}

func (e Engine) ListRoleGrants(ctx context.Context, p auth.Principal) ([]repo.RoleGrant, error) {
	if err := e.Auth.Require(p, config.PermRoleManage); err != nil {
		return nil, err
	}
	return e.Repo.ListRoleGrants(ctx)
}

// CreateAPIKey stores the hash of a new key and returns the raw key once.
func (e Engine) CreateAPIKey(ctx context.Context, p auth.Principal, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		actorID = p.ActorID
	}
	if actorID != p.ActorID {
		if err := e.Auth.Require(p, config.PermRoleManage); err != nil {
			return domain.APIKey{}, "", err
		}
	}
	secret, err := newToken()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "fk_" + secret
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.nowString(),
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureActor(ctx, tx, actorID, "", key.CreatedAt); err != nil {
			return err
		}
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "apikey.created", "actor", actorID, p.ActorID, events.EventPayload{
			"key_id": key.ID,
			"name":   key.Name,
		})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

// ListAPIKeys lists actorID's keys, the caller's when empty. Other actors'
// keys, or all keys with actorID "*", need role management.
func (e Engine) ListAPIKeys(ctx context.Context, p auth.Principal, actorID string) ([]domain.APIKey, error) {
	if actorID == "" {
		actorID = p.ActorID
	}
	if actorID != p.ActorID {
		if err := e.Auth.Require(p, config.PermRoleManage); err != nil {
			return nil, err
		}
	}
	if actorID == "*" {
		actorID = ""
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// RevokeAPIKey deletes a key. Owners may revoke their own keys.
func (e Engine) RevokeAPIKey(ctx context.Context, p auth.Principal, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		key, err := e.Repo.GetAPIKey(ctx, tx, id)
		if err != nil {
			return err
		}
		if key.ActorID != p.ActorID {
			if err := e.Auth.Require(p, config.PermRoleManage); err != nil {
				return err
			}
		}
		if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "apikey.revoked", "actor", key.ActorID, p.ActorID, events.EventPayload{
			"key_id": key.ID,
			"name":   key.Name,
		})
	})
}

// ActorForAPIKey maps a raw key to its actor.
func (e Engine) ActorForAPIKey(ctx context.Context, raw string) (string, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		return "", err
	}
	return key.ActorID, nil
}

func (e Engine) ListEvents(ctx context.Context, p auth.Principal, f repo.EventFilters) ([]domain.Event, error) {
	if err := e.Auth.Require(p, config.PermEventsRead); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, f)
}

// ErrNoSources is returned by WorkQueue when no spreadsheets are configured.
var ErrNoSources = errors.New("work queue sources not configured")

// WorkQueue reconciles the incoming-submissions sheet against the assignment
// sheet into the per-author queue of open work.
func (e Engine) WorkQueue(ctx context.Context, p auth.Principal) (reconcile.Result, error) {
	if err := e.Auth.Require(p, config.PermQueueRead); err != nil {
		return reconcile.Result{}, err
	}
	if e.Queue == nil {
		return reconcile.Result{}, ErrNoSources
	}
	res, err := e.Queue.WorkQueue(ctx)
	if err != nil {
		return reconcile.Result{}, err
	}
	e.logger().WithFields(logrus.Fields{
		"module":   "engine",
		"actor_id": p.ActorID,
		"authors":  len(res.Items),
	}).Debug("work queue served")
	return res, nil
}
