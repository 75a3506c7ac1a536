package migrate

import (
	"context"
	"testing"

	"taskgate/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		if err := MigrateContext(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	latest, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	current, err := Current(ctx, conn)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != latest || latest < 2 {
		t.Fatalf("schema version %d, latest %d", current, latest)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO documents(collection,id,body,version,updated_at) VALUES ('c','1','{}',1,'t')`); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
}
