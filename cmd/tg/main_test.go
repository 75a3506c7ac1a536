package main

import (
	"os"
	"path/filepath"
	"testing"

	"taskgate/internal/domain"
)

func TestSetEnvValueReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("A=1\nTASKGATE_JWT_SECRET=old\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := setEnvValue(path, jwtSecretEnv, "new"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := setEnvValue(path, "B", "2"); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "A=1\nTASKGATE_JWT_SECRET=new\nB=2\n"
	if string(got) != want {
		t.Fatalf("unexpected .env:\n%s", got)
	}
}

func TestReadBundleAcceptsLegacyPlatform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anki.json")
	data := `{
  "provider": {"id": "anki", "name": "Anki", "domain": "anki.example"},
  "tasks": [{"display_name": "Review", "description": "Review cards", "platform": "both", "tags": "study, cards"}]
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := readBundle(path)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if b.Provider.ID != "anki" || len(b.Tasks) != 1 {
		t.Fatalf("unexpected bundle %+v", b)
	}
	if len(b.Tasks[0].Platforms) != 2 || b.Tasks[0].Platforms[0] != domain.PlatformIOS {
		t.Fatalf("legacy platform not expanded: %+v", b.Tasks[0].Platforms)
	}
	if len(b.Tasks[0].Tags) != 2 {
		t.Fatalf("comma tags not split: %+v", b.Tasks[0].Tags)
	}
}

func TestReadBundleRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readBundle(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
