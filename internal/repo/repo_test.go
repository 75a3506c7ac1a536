package repo

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"taskgate/internal/db"
	"taskgate/internal/domain"
	"taskgate/internal/migrate"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewSQLStore(conn)
	s.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestSQLStoreVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc := Document{Collection: "c", ID: "a", Body: []byte(`{"n":1}`)}
	d1, err := s.Put(ctx, doc, NoVersion)
	if err != nil || d1.Version != 1 {
		t.Fatalf("create: %v version=%d", err, d1.Version)
	}
	if _, err := s.Put(ctx, doc, NoVersion); !errors.Is(err, ErrConflict) {
		t.Fatalf("second create should conflict, got %v", err)
	}

	doc.Body = []byte(`{"n":2}`)
	d2, err := s.Put(ctx, doc, 1)
	if err != nil || d2.Version != 2 {
		t.Fatalf("guarded update: %v version=%d", err, d2.Version)
	}
	if _, err := s.Put(ctx, doc, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update should conflict, got %v", err)
	}

	doc.Body = []byte(`{"n":3}`)
	d3, err := s.Put(ctx, doc, AnyVersion)
	if err != nil || d3.Version != 3 {
		t.Fatalf("lww update: %v version=%d", err, d3.Version)
	}
	got, err := s.Get(ctx, "c", "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Body) != `{"n":3}` || got.Version != 3 || got.UpdatedAt == "" {
		t.Fatalf("unexpected doc %+v", got)
	}

	if err := s.Delete(ctx, "c", "a", 2); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale delete should conflict, got %v", err)
	}
	if err := s.Delete(ctx, "c", "a", 3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "c", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Delete(ctx, "c", "a", AnyVersion); err != nil {
		t.Fatalf("delete of missing doc should be idempotent: %v", err)
	}
}

func TestSQLStoreWrapsDriverErrors(t *testing.T) {
	s := newTestStore(t)
	s.DB.Close()
	_, err := s.Get(context.Background(), "c", "a")
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "get" {
		t.Fatalf("expected StoreError, got %v", err)
	}
}

func TestRepoNormalizesLegacyDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	legacy := `{"provider":{"id":"loa","name":"LoA"},"tasks":[{"id":"t","platform":"both","tags":"a, b"}]}`
	if _, err := s.Put(ctx, Document{Collection: domain.CollectionDrafts, ID: "loa", Body: []byte(legacy)}, AnyVersion); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := Repo{Store: s}
	b, version, err := r.GetDraft(ctx, "loa")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if version != 1 {
		t.Fatalf("version %d", version)
	}
	task := b.Tasks[0]
	if !reflect.DeepEqual(task.Platforms, []domain.Platform{domain.PlatformIOS, domain.PlatformAndroid}) {
		t.Fatalf("platforms %v", task.Platforms)
	}
	if !reflect.DeepEqual(task.Tags, []string{"a", "b"}) {
		t.Fatalf("tags %v", task.Tags)
	}
	if b.Provider.IconBackgroundColorLight != domain.DefaultIconBackgroundLight {
		t.Fatalf("default color missing: %+v", b.Provider)
	}
}

func TestRepoEntriesAndPartition(t *testing.T) {
	ctx := context.Background()
	r := Repo{Store: newTestStore(t)}
	entries := []domain.ReviewEntry{
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "a"}}, Status: domain.StatusPending, SubmittedAt: "2024-01-01T00:00:00Z"},
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "b"}}, Status: domain.StatusPending, SubmittedAt: "2024-02-01T00:00:00Z"},
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "c"}}, Status: domain.StatusApproved, SubmittedAt: "2024-01-15T00:00:00Z"},
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "d"}}, Status: domain.StatusDeclined, SubmittedAt: "2024-01-20T00:00:00Z"},
	}
	for _, e := range entries {
		saved, err := r.PutEntry(ctx, e, AnyVersion)
		if err != nil {
			t.Fatalf("put entry: %v", err)
		}
		if saved.Version != 1 {
			t.Fatalf("version %d", saved.Version)
		}
	}
	all, err := r.ListEntries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	q := Partition(all)
	if len(q.Pending) != 2 || q.Pending[0].Provider.ID != "b" || q.Pending[1].Provider.ID != "a" {
		t.Fatalf("pending not newest first: %+v", q.Pending)
	}
	if len(q.Approved) != 1 || len(q.Declined) != 1 {
		t.Fatalf("unexpected partition %+v", q)
	}

	got, err := r.GetEntry(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := r.DeleteEntry(ctx, "a", got.Version+1); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := r.DeleteEntry(ctx, "a", got.Version); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestRepoDefaultConfigHalves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := Repo{Store: s}
	if _, err := r.GetDefault(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	b := domain.ConfigBundle{
		Provider:  domain.Provider{ID: "taskgate", Name: "TaskGate"},
		Tasks:     []domain.Task{{ID: "breathe", ProviderID: "taskgate", Platforms: []domain.Platform{"ios"}}},
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := r.PutDefault(ctx, b); err != nil {
		t.Fatalf("put default: %v", err)
	}
	tasksDoc, err := s.Get(ctx, domain.CollectionDefaultConfig, domain.DefaultTasksDoc)
	if err != nil {
		t.Fatalf("tasks doc: %v", err)
	}
	if want := `"items":[`; !strings.Contains(string(tasksDoc.Body), want) {
		t.Fatalf("tasks doc shape %s", tasksDoc.Body)
	}
	got, err := r.GetDefault(ctx)
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if got.Provider.ID != "taskgate" || len(got.Tasks) != 1 || got.UpdatedAt != b.UpdatedAt {
		t.Fatalf("unexpected default %+v", got)
	}
}

func TestRepoPartnersAndKeys(t *testing.T) {
	ctx := context.Background()
	r := Repo{Store: newTestStore(t)}
	if err := r.PutPartnerAccount(ctx, domain.PartnerAccount{Email: " Dev@Anki.example ", ProviderID: "anki"}); err != nil {
		t.Fatalf("put partner: %v", err)
	}
	acct, err := r.GetPartnerAccount(ctx, "dev@anki.EXAMPLE")
	if err != nil || acct.ProviderID != "anki" {
		t.Fatalf("get partner: %v %+v", err, acct)
	}
	if err := r.PutPartnerAccount(ctx, domain.PartnerAccount{Email: "x@y"}); err == nil {
		t.Fatalf("provider id required")
	}

	key := domain.APIKey{ID: "k1", Email: "admin@taskgate.app", KeyHash: HashAPIKey("secret"), CreatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	if err := r.InsertAPIKey(ctx, key); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate key should conflict, got %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(" secret "))
	if err != nil || got.ID != "k1" {
		t.Fatalf("lookup: %v %+v", err, got)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInstrumentReportsCalls(t *testing.T) {
	ctx := context.Background()
	var ops []string
	s := Instrument(newTestStore(t), func(op string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("unexpected error for %s: %v", op, err)
		}
		ops = append(ops, op)
	})
	if _, err := s.Get(ctx, "c", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.AppendEvent(ctx, domain.Event{TS: "t", Type: "x", EntityKind: "k", ActorID: "a", Payload: "{}"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	evts, err := s.ListEvents(ctx, EventFilter{EntityKind: "k", Limit: 5})
	if err != nil || len(evts) != 1 || evts[0].EntityID != "" {
		t.Fatalf("list events: %v %+v", err, evts)
	}
	if !reflect.DeepEqual(ops, []string{"get", "append_event", "list_events"}) {
		t.Fatalf("ops %v", ops)
	}
}

func TestGormStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TASKGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASKGATE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenGorm(GormConfig{DSN: dsn, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	id := "gorm-" + time.Now().Format("150405.000000")
	d, err := s.Put(ctx, Document{Collection: "test", ID: id, Body: []byte(`{}`)}, NoVersion)
	if err != nil || d.Version != 1 {
		t.Fatalf("create: %v %+v", err, d)
	}
	if _, err := s.Put(ctx, Document{Collection: "test", ID: id, Body: []byte(`{}`)}, 7); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	d, err = s.Put(ctx, Document{Collection: "test", ID: id, Body: []byte(`{"a":1}`)}, AnyVersion)
	if err != nil || d.Version != 2 {
		t.Fatalf("lww: %v %+v", err, d)
	}
	if err := s.Delete(ctx, "test", id, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
