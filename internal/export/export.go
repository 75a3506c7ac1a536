package export

import (
	"sort"
	"time"

	"taskgate/internal/domain"
)

// Compile merges the default bundle with approved review entries. Entries are
// appended in the order given; provider ids are not deduplicated.
func Compile(def domain.ConfigBundle, approved []domain.ReviewEntry, now time.Time) domain.ExportArtifact {
	art := domain.ExportArtifact{
		SchemaVersion: domain.SchemaVersion,
		Providers:     []domain.Provider{},
		Tasks:         []domain.Task{},
		GeneratedAt:   now.UTC().Format(time.RFC3339),
	}
	if def.Provider.ID != "" {
		art.Providers = append(art.Providers, def.Provider)
	}
	art.Tasks = append(art.Tasks, cloneTasks(def.Tasks, "")...)
	for _, e := range approved {
		art.Providers = append(art.Providers, e.Provider)
		art.Tasks = append(art.Tasks, cloneTasks(e.Tasks, e.Provider.ID)...)
	}
	art.TotalProviders = len(art.Providers)
	art.TotalTasks = len(art.Tasks)
	return art
}

// cloneTasks copies tasks so the artifact never aliases its inputs. A
// non-empty providerID overwrites each task's back-reference.
func cloneTasks(tasks []domain.Task, providerID string) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		t.Tags = append([]string{}, t.Tags...)
		t.Platforms = append([]domain.Platform{}, t.Platforms...)
		if providerID != "" {
			t.ProviderID = providerID
		}
		out = append(out, t)
	}
	return out
}

// Approved filters entries down to approved ones, newest submission first.
func Approved(entries []domain.ReviewEntry) []domain.ReviewEntry {
	var out []domain.ReviewEntry
	for _, e := range entries {
		if e.Status == domain.StatusApproved {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt > out[j].SubmittedAt })
	return out
}

// FileName is the download name for an artifact generated at now.
func FileName(now time.Time) string {
	return "taskgate-production-config-" + now.UTC().Format("2006-01-02") + ".json"
}

// Clean strips review metadata, leaving the bundle as the partner submitted it.
func Clean(e domain.ReviewEntry) domain.ConfigBundle {
	b := e.ConfigBundle
	b.Tasks = cloneTasks(b.Tasks, "")
	return b
}
