package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.DefaultProvider.ID != "taskgate" {
		t.Fatalf("default provider %q", cfg.DefaultProvider.ID)
	}
	if cfg.AutosaveDelay() != 2*time.Second {
		t.Fatalf("autosave delay %s", cfg.AutosaveDelay())
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("base path %q", cfg.Server.BasePath)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
admins:
  emails: [admin@taskgate.app]
partners:
  accounts:
    - email: dev@anki.example
      provider_id: anki
autosave:
  delay: 1500ms
store:
  driver: postgres
  dsn: host=localhost
`))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.AutosaveDelay() != 1500*time.Millisecond {
		t.Fatalf("delay %s", cfg.AutosaveDelay())
	}
	if cfg.PartnerMap()["dev@anki.example"] != "anki" {
		t.Fatalf("partner map %v", cfg.PartnerMap())
	}
	if cfg.DefaultProvider.ID != "taskgate" || cfg.Metrics.Prefix != "taskgate" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"store:\n  driver: mongo\n":                                                 "store.driver",
		"store:\n  driver: postgres\n":                                              "store.dsn",
		"default_provider:\n  id: Task Gate\n":                                      "default_provider.id",
		"partners:\n  accounts:\n    - email: a@b.c\n":                              "provider_id",
		"partners:\n  accounts:\n    - email: a@b.c\n      provider_id: taskgate\n": "default provider",
		"server:\n  base_path: v1\n":                                                "base_path",
		"log:\n  level: loud\n":                                                     "log.level",
		"autosave:\n  delay: -1s\n":                                                 "autosave.delay",
	}
	for in, want := range cases {
		_, err := FromYAML([]byte(in))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%q: expected error containing %q, got %v", in, want, err)
		}
	}
}

func TestAdminEmailsMergesEnv(t *testing.T) {
	t.Setenv(AdminEmailsEnv, " ops@taskgate.app , ,boss@taskgate.app")
	cfg := Default()
	cfg.Admins.Emails = []string{"admin@taskgate.app"}
	got := cfg.AdminEmails()
	want := []string{"admin@taskgate.app", "ops@taskgate.app", "boss@taskgate.app"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("admin emails %v", got)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("Load should fail without a file")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil || cfg.Log.Level != "debug" {
		t.Fatalf("load: %v %+v", err, cfg)
	}
}
