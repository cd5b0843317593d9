package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"folio/internal/config"
	"folio/internal/engine/auth"
	"folio/internal/events"
	"folio/internal/fault"
	"folio/internal/logging"
	"folio/internal/notify"
	"folio/internal/reconcile"
	"folio/internal/repo"
	"folio/internal/retry"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Auth     auth.Service
	Notifier notify.Sender
	// Queue reconciles the external spreadsheets; nil when no sources are configured.
	Queue  *reconcile.Service
	Logger *logrus.Logger
	// Retry covers SQLITE_BUSY on write transactions.
	Retry retry.Policy
	Now   func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	logger := logging.Discard()
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Auth:     auth.Service{Repo: r, Config: cfg},
		Notifier: notify.LogSender{Logger: logger},
		Logger:   logger,
		Retry:    retry.Policy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second},
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *logrus.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

// withTx runs fn in a write transaction. Lock contention is retried under
// e.Retry; fn must therefore assign its results on every call.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(ctx, e.Retry, func(ctx context.Context) error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return busy(err)
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return busy(err)
		}
		return busy(tx.Commit())
	})
}

func busy(err error) error {
	if err != nil && repo.IsBusy(err) {
		return fault.Transient("sqlite", err)
	}
	return err
}

// appendEvent stamps the event with the engine clock.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct reports the first failing field as a fault.ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		switch fe.Tag() {
		case "required", "required_if":
			reason = "is required"
		case "email":
			reason = "is not a valid e-mail address"
		case "min", "gte", "lte", "max":
			reason = fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
		}
		return fault.Invalid(fe.Field(), reason)
	}
	return err
}

// newToken returns 32 random bytes, base64url encoded without padding.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (e Engine) journalName() string {
	if e.Config == nil || e.Config.Journal.Name == "" {
		return "Folio"
	}
	return e.Config.Journal.Name
}

func (e Engine) locale(preferred ...string) string {
	for _, l := range preferred {
		if l != "" {
			return l
		}
	}
	if e.Config != nil && e.Config.Journal.DefaultLocale != "" {
		return e.Config.Journal.DefaultLocale
	}
	return "en"
}

// respondURL is the link mailed to reviewers; the token is the only credential.
func (e Engine) respondURL(token, locale string) string {
	base := "http://localhost:8080"
	if e.Config != nil && e.Config.Journal.BaseURL != "" {
		base = e.Config.Journal.BaseURL
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("lang", locale)
	return strings.TrimRight(base, "/") + "/v1/invitations/lookup?" + q.Encode()
}
