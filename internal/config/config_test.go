package config

import (
	"os"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestDefaultTemplateValidates(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("revista")))
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Journal.ID != "revista" || cfg.Journal.DefaultLocale != "es" {
		t.Fatalf("journal = %+v", cfg.Journal)
	}
	if cfg.ExpiresIn() != 7*24*time.Hour {
		t.Fatalf("expires in = %s", cfg.ExpiresIn())
	}
	roles := cfg.RolesWith(PermRoleManage)
	if len(roles) != 1 || roles[0] != "editor-in-chief" {
		t.Fatalf("role.manage roles = %v", roles)
	}
	roles = cfg.RolesWith(PermScoreReviewer)
	sort.Strings(roles)
	if strings.Join(roles, ",") != "editor-in-chief,reviewer" {
		t.Fatalf("score.reviewer roles = %v", roles)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"journal id", func(c *Config) { c.Journal.ID = "" }, "journal.id"},
		{"negative expiry", func(c *Config) { c.Invitations.ExpiresInDays = -1 }, "expires_in_days"},
		{"no roles", func(c *Config) { c.RBAC.Roles = nil }, "rbac.roles"},
		{"empty permission", func(c *Config) { c.RBAC.Roles["author"] = RBACRole{Permissions: []string{""}} }, "empty permission"},
		{"source kind", func(c *Config) { c.Sources.Incoming = SourceConfig{Kind: "ods", Path: "x.ods"} }, "sources.incoming.kind"},
		{"source locator", func(c *Config) { c.Sources.Assignments = SourceConfig{Kind: "xlsx"} }, "url or path"},
		{"smtp host", func(c *Config) { c.Notify.Transport = "smtp" }, "smtp_host"},
		{"transport", func(c *Config) { c.Notify.Transport = "pigeon" }, "transport"},
		{"webhook url", func(c *Config) { c.Webhooks = []WebhookConfig{{Events: []string{"*"}}} }, "webhooks[0].url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("revista")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	ws := t.TempDir()
	cfg, err := LoadOrDefault(ws)
	if err != nil || cfg.Journal.ID != "journal" {
		t.Fatalf("missing file: %+v, %v", cfg, err)
	}

	yml := GenerateDefault("revista") + `
sources:
  incoming: {kind: csv, url: "https://sheets.test/in.csv"}
  assignments: {kind: static, path: assignments.yml}
schema:
  "Correo": author_email
webhooks:
  - url: "https://hooks.test/folio"
    events: ["submission.*"]
`
	if err := os.WriteFile(Path(ws), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadOrDefault(ws)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources.Incoming.Locator() != "https://sheets.test/in.csv" || cfg.Sources.Assignments.Locator() != "assignments.yml" {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	if cfg.Schema["Correo"] != "author_email" || len(cfg.Webhooks) != 1 {
		t.Fatalf("schema/webhooks = %v %v", cfg.Schema, cfg.Webhooks)
	}

	if err := os.WriteFile(Path(ws), []byte("journal: [\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadOrDefault(ws); err == nil {
		t.Fatal("expected parse error")
	}
}
