package validate

import (
	"errors"
	"strings"
	"testing"

	"taskgate/internal/domain"
)

func ankiBundle() domain.ConfigBundle {
	return domain.ConfigBundle{
		Provider: domain.Provider{
			ID:                 "anki",
			Name:               "Anki",
			Domain:             "anki.example",
			PackageNameAndroid: "com.anki",
			IconPathLight:      "https://cdn.example/a.png",
		},
		Tasks: []domain.Task{{
			ID:          "anki_1",
			DisplayName: "Review 5 cards",
			Description: "Review five spaced-repetition flashcards",
			Platforms:   []domain.Platform{domain.PlatformAndroid},
		}},
	}
}

func TestBundleValid(t *testing.T) {
	res := Bundle(ankiBundle())
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	if res.Err() != nil {
		t.Fatalf("expected nil error")
	}
}

func TestBundleReportsEveryProviderField(t *testing.T) {
	b := ankiBundle()
	b.Provider = domain.Provider{ID: "anki", Name: "  ", IconBackgroundColorDark: "black"}
	res := Bundle(b)
	for _, key := range []string{
		"provider.name",
		"provider.domain",
		"provider.packageName",
		"provider.iconPath",
		"provider.iconBackgroundColorDark",
	} {
		if _, ok := res.Errors[key]; !ok {
			t.Fatalf("missing error for %s: %v", key, res.Errors)
		}
	}
	if _, ok := res.Errors["provider.id"]; ok {
		t.Fatalf("provider.id should be valid: %v", res.Errors)
	}
}

func TestBundleProviderID(t *testing.T) {
	for _, id := range []string{"", "Anki", "an ki", "-anki"} {
		b := ankiBundle()
		b.Provider.ID = id
		if _, ok := Bundle(b).Errors["provider.id"]; !ok {
			t.Fatalf("expected provider.id error for %q", id)
		}
	}
}

func TestBundleTaskRules(t *testing.T) {
	b := ankiBundle()
	b.Tasks = append(b.Tasks, domain.Task{
		ID:          "anki_2",
		DisplayName: "",
		Description: "  short    ",
		Type:        "sleeping",
		Difficulty:  "brutal",
		Platforms:   []domain.Platform{"web"},
	}, domain.Task{
		ID:          "anki_3",
		DisplayName: "No platforms",
		Description: "This one targets nothing at all",
	})
	res := Bundle(b)
	want := []string{
		"tasks[1].displayName",
		"tasks[1].description",
		"tasks[1].type",
		"tasks[1].difficulty",
		"tasks[1].platforms",
		"tasks[2].platforms",
	}
	for _, key := range want {
		if _, ok := res.Errors[key]; !ok {
			t.Fatalf("missing error for %s: %v", key, res.Errors)
		}
	}
	if len(res.Errors) != len(want) {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
}

func TestBundleDescriptionCountsRunes(t *testing.T) {
	b := ankiBundle()
	b.Tasks[0].Description = "éééééééééé"
	if res := Bundle(b); !res.Valid() {
		t.Fatalf("ten runes should pass: %v", res.Errors)
	}
	b.Tasks[0].Description = "  123456789  "
	if _, ok := Bundle(b).Errors["tasks[0].description"]; !ok {
		t.Fatalf("nine trimmed characters should fail")
	}
}

func TestBundleDuplicateTaskIDs(t *testing.T) {
	b := ankiBundle()
	dup := b.Tasks[0]
	b.Tasks = append(b.Tasks, dup)
	res := Bundle(b)
	if res.Valid() {
		t.Fatalf("duplicate ids must be invalid")
	}
	msg, ok := res.Errors["tasks[1].id"]
	if !ok || !strings.Contains(msg, "tasks[0]") {
		t.Fatalf("expected duplicate error on later task, got %v", res.Errors)
	}
	if _, ok := res.Errors["tasks[0].id"]; ok {
		t.Fatalf("first occurrence should not be flagged")
	}

	b.Tasks[1].ID = "ANKI_1"
	if res := Bundle(b); !res.Valid() {
		t.Fatalf("ids are case-sensitive: %v", res.Errors)
	}
}

func TestBundleEmptyTasks(t *testing.T) {
	b := ankiBundle()
	b.Tasks = nil
	res := Bundle(b)
	if _, ok := res.Errors["tasks"]; !ok {
		t.Fatalf("expected tasks error: %v", res.Errors)
	}
	var verr *Error
	if !errors.As(res.Err(), &verr) {
		t.Fatalf("expected *Error, got %T", res.Err())
	}
	if !strings.Contains(verr.Error(), "tasks: ") {
		t.Fatalf("unexpected message %q", verr.Error())
	}
}
