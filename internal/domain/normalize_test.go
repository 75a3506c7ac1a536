package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestTaskDecodeLegacyPlatform(t *testing.T) {
	cases := map[string][]Platform{
		`{"id":"a","platform":"ios"}`:                         {PlatformIOS},
		`{"id":"a","platform":"android"}`:                     {PlatformAndroid},
		`{"id":"a","platform":"both"}`:                        {PlatformIOS, PlatformAndroid},
		`{"id":"a","platform":"web"}`:                         {PlatformIOS, PlatformAndroid},
		`{"id":"a","platform":"ios","platforms":["android"]}`: {PlatformAndroid},
	}
	for in, want := range cases {
		var task Task
		if err := json.Unmarshal([]byte(in), &task); err != nil {
			t.Fatalf("decode %s: %v", in, err)
		}
		if !reflect.DeepEqual(task.Platforms, want) {
			t.Fatalf("decode %s: got %v want %v", in, task.Platforms, want)
		}
	}
}

func TestTaskDecodeCommaTags(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"id":"a","tags":" focus, study ,,focus"}`), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	task.Normalize()
	if !reflect.DeepEqual(task.Tags, []string{"focus", "study"}) {
		t.Fatalf("unexpected tags %v", task.Tags)
	}

	var arr Task
	if err := json.Unmarshal([]byte(`{"id":"a","tags":["x","x"," y"]}`), &arr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr.Normalize()
	if !reflect.DeepEqual(arr.Tags, []string{"x", "y"}) {
		t.Fatalf("unexpected tags %v", arr.Tags)
	}
}

func TestTaskDecodeKeepsScalarFields(t *testing.T) {
	in := `{"id":"loa","provider_id":"taskgate","display_name":"Law of Attraction","description":"Read one page","type":"reading","difficulty":"easy","platforms":["ios","ios"]}`
	var task Task
	if err := json.Unmarshal([]byte(in), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	task.Normalize()
	if task.ID != "loa" || task.ProviderID != "taskgate" || task.DisplayName != "Law of Attraction" {
		t.Fatalf("scalar fields lost: %+v", task)
	}
	if task.Type != TaskTypeReading || task.Difficulty != DifficultyEasy {
		t.Fatalf("enum fields lost: %+v", task)
	}
	if !reflect.DeepEqual(task.Platforms, []Platform{PlatformIOS}) {
		t.Fatalf("platforms not deduplicated: %v", task.Platforms)
	}
}

func TestBundleNormalizeDefaults(t *testing.T) {
	var b ConfigBundle
	b.Normalize()
	if b.Provider.IconBackgroundColorLight != "#FFFFFF" || b.Provider.IconBackgroundColorDark != "#000000" {
		t.Fatalf("default colors not applied: %+v", b.Provider)
	}
	if b.Tasks == nil {
		t.Fatalf("expected empty task slice")
	}
	data, _ := json.Marshal(b)
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := back["tasks"].([]any); !ok {
		t.Fatalf("tasks should encode as array: %s", data)
	}
}

func TestReviewEntryFlatJSON(t *testing.T) {
	approvedAt := "2024-01-02T00:00:00Z"
	e := ReviewEntry{
		ConfigBundle: ConfigBundle{Provider: Provider{ID: "anki"}, Tasks: []Task{}},
		Status:       StatusApproved,
		SubmittedAt:  "2024-01-01T00:00:00Z",
		SubmittedBy:  "dev@anki.example",
		ApprovedAt:   &approvedAt,
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"provider", "tasks", "status", "submitted_at", "approved_at"} {
		if _, ok := flat[k]; !ok {
			t.Fatalf("missing %s in %s", k, data)
		}
	}
	if _, ok := flat["declined_at"]; ok {
		t.Fatalf("declined_at should be omitted: %s", data)
	}
}

func TestTaskNormalizeDefaultsTypeAndDifficulty(t *testing.T) {
	task := Task{ID: "anki_1", DisplayName: "Review", Description: "Review five cards"}
	task.Normalize()
	if task.Type != TaskTypeFocus || task.Difficulty != DifficultyMedium {
		t.Fatalf("defaults not applied: %+v", task)
	}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"type":"focus"`) || !strings.Contains(string(data), `"difficulty":"medium"`) {
		t.Fatalf("type and difficulty must always be encoded: %s", data)
	}
}
