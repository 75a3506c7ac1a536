// Package validate checks a ConfigBundle against the submission rules. It
// never stops at the first problem: every violation is reported, keyed by the
// field path a form would highlight.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"taskgate/internal/domain"
)

const MinDescriptionLength = 10

var (
	slugRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	colorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// Result holds field errors keyed by path, e.g. "tasks[2].description".
type Result struct {
	Errors map[string]string `json:"errors"`
}

func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns the failure as an *Error, or nil when valid.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &Error{Fields: r.Errors}
}

func (r *Result) add(path, msg string) {
	if r.Errors == nil {
		r.Errors = map[string]string{}
	}
	if _, exists := r.Errors[path]; exists {
		return
	}
	r.Errors[path] = msg
}

// Error is returned when a bundle fails validation.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := Paths(e.Fields)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Paths returns the failing field paths in sorted order.
func Paths(errs map[string]string) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// Bundle validates b.
func Bundle(b domain.ConfigBundle) Result {
	var res Result
	provider(&res, b.Provider)

	if len(b.Tasks) == 0 {
		res.add("tasks", "at least one task is required")
	}
	seen := map[string]int{}
	for i, t := range b.Tasks {
		task(&res, i, t)
		if t.ID == "" {
			continue
		}
		if first, dup := seen[t.ID]; dup {
			res.add(fmt.Sprintf("tasks[%d].id", i), fmt.Sprintf("duplicate task id %q (also tasks[%d])", t.ID, first))
			continue
		}
		seen[t.ID] = i
	}
	return res
}

// ProviderID returns the problem with id, or "" when it is a usable slug.
func ProviderID(id string) string {
	switch {
	case blank(id):
		return "provider id is required"
	case !slugRe.MatchString(id):
		return "provider id must be lowercase letters, digits, '-' or '_'"
	}
	return ""
}

func provider(res *Result, p domain.Provider) {
	if msg := ProviderID(p.ID); msg != "" {
		res.add("provider.id", msg)
	}
	if blank(p.Name) {
		res.add("provider.name", "provider name is required")
	}
	if blank(p.Domain) {
		res.add("provider.domain", "provider domain is required")
	}
	if blank(p.PackageNameAndroid) && blank(p.PackageNameIOS) {
		res.add("provider.packageName", "an Android or iOS package name is required")
	}
	if blank(p.IconPathLight) && blank(p.IconPathDark) {
		res.add("provider.iconPath", "a light or dark icon is required")
	}
	if p.IconBackgroundColorLight != "" && !colorRe.MatchString(p.IconBackgroundColorLight) {
		res.add("provider.iconBackgroundColorLight", "must be a hex color like #FFFFFF")
	}
	if p.IconBackgroundColorDark != "" && !colorRe.MatchString(p.IconBackgroundColorDark) {
		res.add("provider.iconBackgroundColorDark", "must be a hex color like #000000")
	}
}

func task(res *Result, i int, t domain.Task) {
	key := func(field string) string { return fmt.Sprintf("tasks[%d].%s", i, field) }
	if t.ID == "" {
		res.add(key("id"), "task id is required")
	}
	if blank(t.DisplayName) {
		res.add(key("displayName"), "display name is required")
	}
	if utf8.RuneCountInString(strings.TrimSpace(t.Description)) < MinDescriptionLength {
		res.add(key("description"), fmt.Sprintf("description must be at least %d characters", MinDescriptionLength))
	}
	if len(t.Platforms) == 0 {
		res.add(key("platforms"), "select at least one platform")
	}
	for _, p := range t.Platforms {
		if !p.Valid() {
			res.add(key("platforms"), fmt.Sprintf("unknown platform %q", p))
		}
	}
	if t.Type != "" && !t.Type.Valid() {
		res.add(key("type"), fmt.Sprintf("unknown task type %q", t.Type))
	}
	if t.Difficulty != "" && !t.Difficulty.Valid() {
		res.add(key("difficulty"), fmt.Sprintf("unknown difficulty %q", t.Difficulty))
	}
}
