// Package app assembles the engine and its collaborators from folio.yml.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"folio/internal/config"
	"folio/internal/db"
	"folio/internal/engine"
	"folio/internal/logging"
	"folio/internal/migrate"
	"folio/internal/notify"
	"folio/internal/reconcile"
	"folio/internal/retry"
	"folio/internal/tabular"
)

// Options locate the workspace and carry the secrets that never live in folio.yml.
type Options struct {
	Workspace string
	LogLevel  string
	LogFormat string
	SMTPPass  string
}

// Runtime owns the open resources behind an Engine.
type Runtime struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Logger *logrus.Logger
	Redis  *redis.Client
}

// Open loads the config (the default one when folio.yml is absent), migrates
// the store and wires notifier and work queue sources.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, err
	}
	level, format := cfg.Log.Level, cfg.Log.Format
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		format = opts.LogFormat
	}
	logger := logging.NewWithWriter(os.Stderr, level, format)

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rt := &Runtime{DB: conn, Config: cfg, Logger: logger}
	policy := RetryPolicy(cfg)
	notifier, err := BuildNotifier(cfg, opts.SMTPPass, policy, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.Cache.RedisAddr != "" {
		rt.Redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			// the cache falls through to the sheets when redis is down
			logger.WithFields(logrus.Fields{"module": "app", "addr": cfg.Cache.RedisAddr}).Warn("redis unreachable: " + err.Error())
		}
	}
	queue, err := BuildQueue(cfg, policy, rt.Redis, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Notifier = notifier
	e.Queue = queue
	rt.Engine = e
	return rt, nil
}

func (rt *Runtime) Close() error {
	if rt.Redis != nil {
		rt.Redis.Close()
	}
	return rt.DB.Close()
}

// RetryPolicy reads the retry section, falling back to retry.Default.
func RetryPolicy(cfg *config.Config) retry.Policy {
	p := retry.Default()
	if cfg == nil {
		return p
	}
	if cfg.Retry.Attempts > 0 {
		p.Attempts = cfg.Retry.Attempts
	}
	if cfg.Retry.BaseDelayMS > 0 {
		p.BaseDelay = time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond
	}
	if cfg.Retry.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond
	}
	return p
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg != nil && cfg.Retry.TimeoutSeconds > 0 {
		return time.Duration(cfg.Retry.TimeoutSeconds) * time.Second
	}
	return 15 * time.Second
}

// BuildNotifier returns the SMTP sender for transport smtp, the log sender
// otherwise, wrapped with per-attempt timeouts and retries.
func BuildNotifier(cfg *config.Config, smtpPass string, policy retry.Policy, logger *logrus.Logger) (notify.Sender, error) {
	var next notify.Sender = notify.LogSender{Logger: logger}
	if cfg.Notify.Transport == "smtp" {
		s, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:          cfg.Notify.SMTPHost,
			Port:          cfg.Notify.SMTPPort,
			User:          cfg.Notify.SMTPUser,
			Pass:          smtpPass,
			From:          cfg.Notify.From,
			SkipTLSVerify: cfg.Notify.SkipTLSVerify,
			Timeout:       requestTimeout(cfg),
		})
		if err != nil {
			return nil, err
		}
		next = s
	}
	return notify.RetryingSender{Next: next, Policy: policy, Timeout: requestTimeout(cfg), Logger: logger}, nil
}

// BuildQueue returns nil when either source is unset.
func BuildQueue(cfg *config.Config, policy retry.Policy, rdb *redis.Client, logger *logrus.Logger) (*reconcile.Service, error) {
	in, ac := cfg.Sources.Incoming, cfg.Sources.Assignments
	if in.Kind == "" || ac.Kind == "" {
		return nil, nil
	}
	client := &http.Client{Timeout: requestTimeout(cfg)}
	incoming, err := buildSource(in, client, policy)
	if err != nil {
		return nil, fmt.Errorf("sources.incoming: %w", err)
	}
	assignments, err := buildSource(ac, client, policy)
	if err != nil {
		return nil, fmt.Errorf("sources.assignments: %w", err)
	}
	if rdb != nil {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		incoming = tabular.NewCachedSource(incoming, rdb, ttl, logger)
		assignments = tabular.NewCachedSource(assignments, rdb, ttl, logger)
	}
	return &reconcile.Service{
		Incoming:      incoming,
		Assignments:   assignments,
		IncomingID:    in.Locator(),
		AssignmentsID: ac.Locator(),
		Schema:        reconcile.DefaultSchema().With(cfg.Schema),
		Logger:        logger,
	}, nil
}

func buildSource(src config.SourceConfig, client *http.Client, policy retry.Policy) (tabular.Source, error) {
	switch src.Kind {
	case "csv":
		return tabular.NewCSVSource(client, policy), nil
	case "xlsx":
		return tabular.NewXLSXSource(client, policy, src.Sheet), nil
	case "static":
		return loadStatic(src.Path)
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// loadStatic reads a YAML list of rows, keyed by its own path.
func loadStatic(path string) (tabular.StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []tabular.Row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tabular.StaticSource{path: rows}, nil
}
