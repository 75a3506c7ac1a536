package export

import (
	"reflect"
	"testing"
	"time"

	"taskgate/internal/domain"
)

func fixture() (domain.ConfigBundle, []domain.ReviewEntry) {
	def := domain.ConfigBundle{
		Provider: domain.Provider{ID: "taskgate", Name: "TaskGate"},
		Tasks: []domain.Task{{
			ID: "t1", ProviderID: "taskgate", DisplayName: "Breathe",
			Tags: []string{"calm"}, Platforms: []domain.Platform{domain.PlatformIOS},
		}},
	}
	approved := []domain.ReviewEntry{{
		ConfigBundle: domain.ConfigBundle{
			Provider: domain.Provider{ID: "loa", Name: "Law of Attraction"},
			Tasks: []domain.Task{{
				ID: "t2", ProviderID: "somebody-else", DisplayName: "Affirm",
				Platforms: []domain.Platform{domain.PlatformAndroid},
			}},
		},
		Status: domain.StatusApproved,
	}}
	return def, approved
}

func TestCompileMergesInAppendOrder(t *testing.T) {
	def, approved := fixture()
	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	art := Compile(def, approved, now)

	if art.SchemaVersion != 1 {
		t.Fatalf("schema version %d", art.SchemaVersion)
	}
	if len(art.Providers) != 2 || art.Providers[0].ID != "taskgate" || art.Providers[1].ID != "loa" {
		t.Fatalf("unexpected providers %+v", art.Providers)
	}
	if len(art.Tasks) != 2 || art.Tasks[0].ID != "t1" || art.Tasks[1].ID != "t2" {
		t.Fatalf("unexpected tasks %+v", art.Tasks)
	}
	if art.Tasks[0].ProviderID != "taskgate" {
		t.Fatalf("default task provider changed: %s", art.Tasks[0].ProviderID)
	}
	if art.Tasks[1].ProviderID != "loa" {
		t.Fatalf("approved task provider not overwritten: %s", art.Tasks[1].ProviderID)
	}
	if art.TotalProviders != 2 || art.TotalTasks != 2 {
		t.Fatalf("totals %d/%d", art.TotalProviders, art.TotalTasks)
	}
	if art.GeneratedAt != "2024-03-04T04:06:07Z" {
		t.Fatalf("generated_at %s", art.GeneratedAt)
	}
	if approved[0].Tasks[0].ProviderID != "somebody-else" {
		t.Fatalf("compile mutated its input")
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	def, approved := fixture()
	a := Compile(def, approved, time.Unix(0, 0))
	b := Compile(def, approved, time.Unix(3600, 0))
	if !reflect.DeepEqual(a.Providers, b.Providers) || !reflect.DeepEqual(a.Tasks, b.Tasks) {
		t.Fatalf("compile not idempotent:\n%+v\n%+v", a, b)
	}
	if a.GeneratedAt == b.GeneratedAt {
		t.Fatalf("generated_at should follow the clock")
	}
}

func TestCompileKeepsDuplicateProviders(t *testing.T) {
	def, approved := fixture()
	approved[0].Provider.ID = "taskgate"
	art := Compile(def, approved, time.Now())
	if art.TotalProviders != 2 {
		t.Fatalf("duplicates must be emitted, got %d providers", art.TotalProviders)
	}
}

func TestCompileWithoutDefault(t *testing.T) {
	_, approved := fixture()
	art := Compile(domain.ConfigBundle{}, approved, time.Now())
	if art.TotalProviders != 1 || art.Providers[0].ID != "loa" {
		t.Fatalf("unexpected providers %+v", art.Providers)
	}
	empty := Compile(domain.ConfigBundle{}, nil, time.Now())
	if empty.Providers == nil || empty.Tasks == nil {
		t.Fatalf("empty artifact must carry empty arrays")
	}
}

func TestApprovedFiltersAndSorts(t *testing.T) {
	entries := []domain.ReviewEntry{
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "old"}}, Status: domain.StatusApproved, SubmittedAt: "2024-01-01T00:00:00Z"},
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "pending"}}, Status: domain.StatusPending, SubmittedAt: "2024-06-01T00:00:00Z"},
		{ConfigBundle: domain.ConfigBundle{Provider: domain.Provider{ID: "new"}}, Status: domain.StatusApproved, SubmittedAt: "2024-05-01T00:00:00Z"},
	}
	got := Approved(entries)
	if len(got) != 2 || got[0].Provider.ID != "new" || got[1].Provider.ID != "old" {
		t.Fatalf("unexpected approved list %+v", got)
	}
}

func TestFileName(t *testing.T) {
	got := FileName(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	if got != "taskgate-production-config-2024-12-31.json" {
		t.Fatalf("file name %s", got)
	}
}
