package app

import (
	"context"
	"testing"

	"taskgate/internal/config"
	"taskgate/internal/domain"
	"taskgate/internal/engine/auth"
)

func TestOpenSeedsDefaultOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Admins.Emails = []string{"admin@taskgate.app"}

	rt, err := Open(ctx, dir, cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	admin := auth.Principal{Email: "admin@taskgate.app"}
	def, err := rt.Engine.GetDefault(ctx, admin)
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if def.Provider.ID != "taskgate" || def.Provider.Name != "TaskGate" || len(def.Tasks) != 0 {
		t.Fatalf("unexpected seed %+v", def)
	}
	def.Tasks = []domain.Task{{ID: "breathe", DisplayName: "Breathe", Description: "Take ten slow breaths"}}
	if _, err := rt.Engine.SaveDefault(ctx, admin, def); err != nil {
		t.Fatalf("save default: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt, err = Open(ctx, dir, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	def, err = rt.Engine.GetDefault(ctx, admin)
	if err != nil || len(def.Tasks) != 1 {
		t.Fatalf("reopen must keep stored default: %v %+v", err, def)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "mongo"
	if _, err := OpenStore(context.Background(), t.TempDir(), cfg); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	cfg.Store.Driver = "postgres"
	if _, err := OpenStore(context.Background(), t.TempDir(), cfg); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}
}

func TestBlobRoot(t *testing.T) {
	if got := blobRoot("/ws", ""); got != "/ws/.taskgate/blobs" {
		t.Fatalf("default root %s", got)
	}
	if got := blobRoot("/ws", "/abs"); got != "/abs" {
		t.Fatalf("absolute root %s", got)
	}
}
