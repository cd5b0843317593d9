package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Permissions checked by the engine.
const (
	PermSubmissionCreate   = "submission.create"
	PermSubmissionRead     = "submission.read"
	PermDeskReview         = "submission.desk_review"
	PermDecide             = "submission.decide"
	PermPublish            = "submission.publish"
	PermRepair             = "submission.repair"
	PermInvitationSend     = "invitation.send"
	PermInvitationRead     = "invitation.read"
	PermScoreReviewer      = "score.reviewer"
	PermScoreEditor        = "score.editor"
	PermQueueRead          = "queue.read"
	PermEventsRead         = "events.read"
	PermRoleManage         = "role.manage"
	PermNotificationRemind = "invitation.remind"
)

// Config models folio.yml.
type Config struct {
	Journal struct {
		ID            string `yaml:"id"`
		Name          string `yaml:"name"`
		BaseURL       string `yaml:"base_url"`
		DefaultLocale string `yaml:"default_locale"`
	} `yaml:"journal"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Invitations struct {
		ExpiresInDays     int `yaml:"expires_in_days"`
		ReminderAfterDays int `yaml:"reminder_after_days"`
	} `yaml:"invitations"`
	Sources struct {
		Incoming    SourceConfig `yaml:"incoming"`
		Assignments SourceConfig `yaml:"assignments"`
	} `yaml:"sources"`
	// Schema maps extra sheet headers to canonical field names.
	Schema map[string]string `yaml:"schema"`
	Notify struct {
		Transport     string `yaml:"transport"`
		SMTPHost      string `yaml:"smtp_host"`
		SMTPPort      int    `yaml:"smtp_port"`
		SMTPUser      string `yaml:"smtp_user"`
		From          string `yaml:"from"`
		SkipTLSVerify bool   `yaml:"skip_tls_verify"`
	} `yaml:"notify"`
	Retry struct {
		Attempts       int `yaml:"attempts"`
		BaseDelayMS    int `yaml:"base_delay_ms"`
		MaxDelayMS     int `yaml:"max_delay_ms"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"retry"`
	Cache struct {
		RedisAddr  string `yaml:"redis_addr"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// SourceConfig locates one tabular feed. Kind is csv, xlsx or static.
type SourceConfig struct {
	Kind  string `yaml:"kind"`
	URL   string `yaml:"url"`
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
}

// Locator is the URL when set, otherwise the path.
func (s SourceConfig) Locator() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// LoadOrDefault returns the default config when folio.yml is absent.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default("journal"), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Journal.ID == "" {
		return fmt.Errorf("config.journal.id is required")
	}
	if c.Invitations.ExpiresInDays < 0 {
		return fmt.Errorf("config.invitations.expires_in_days must not be negative")
	}
	if len(c.RBAC.Roles) == 0 {
		return fmt.Errorf("config.rbac.roles is required")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for name, src := range map[string]SourceConfig{"incoming": c.Sources.Incoming, "assignments": c.Sources.Assignments} {
		switch src.Kind {
		case "", "csv", "xlsx", "static":
		default:
			return fmt.Errorf("config.sources.%s.kind must be csv, xlsx or static", name)
		}
		if src.Kind != "" && src.Locator() == "" {
			return fmt.Errorf("config.sources.%s needs url or path", name)
		}
	}
	switch c.Notify.Transport {
	case "", "log":
	case "smtp":
		if c.Notify.SMTPHost == "" || c.Notify.From == "" {
			return fmt.Errorf("config.notify smtp transport needs smtp_host and from")
		}
	default:
		return fmt.Errorf("config.notify.transport must be log or smtp")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// RolesWith returns the roles granting perm.
func (c *Config) RolesWith(perm string) []string {
	var out []string
	for id, role := range c.RBAC.Roles {
		for _, p := range role.Permissions {
			if p == perm {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// ExpiresIn is the invitation lifetime.
func (c *Config) ExpiresIn() time.Duration {
	days := c.Invitations.ExpiresInDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "folio.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(journalID string) string {
	return fmt.Sprintf(defaultTemplate, journalID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for a journal.
func Default(journalID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(journalID)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `journal:
  id: %s
  name: "Student Journal"
  base_url: "http://localhost:8080"
  default_locale: es

rbac:
  roles:
    editor-in-chief:
      description: "Runs the journal; every editorial action"
      permissions: [submission.create, submission.read, submission.desk_review, submission.decide,
        submission.publish, submission.repair, invitation.send, invitation.read, invitation.remind,
        score.reviewer, score.editor, queue.read, events.read, role.manage]
    editor:
      description: "Handles desk review, invitations and decisions"
      permissions: [submission.read, submission.desk_review, submission.decide, invitation.send,
        invitation.read, invitation.remind, score.editor, queue.read, events.read]
    reviewer:
      description: "Scores manuscripts"
      permissions: [submission.read, score.reviewer, queue.read]
    author:
      description: "Submits and revises manuscripts"
      permissions: [submission.create]

invitations:
  expires_in_days: 7
  reminder_after_days: 3

# sources:
#   incoming: {kind: csv, url: "https://docs.google.com/spreadsheets/d/<id>/export?format=csv"}
#   assignments: {kind: xlsx, path: "assignments.xlsx", sheet: "Hoja 1"}

notify:
  transport: log
  smtp_port: 587

retry:
  attempts: 3
  base_delay_ms: 500
  max_delay_ms: 5000
  timeout_seconds: 15

cache:
  ttl_seconds: 300

log:
  level: info
  format: json
`
