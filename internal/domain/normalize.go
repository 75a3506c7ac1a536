package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultIconBackgroundLight = "#FFFFFF"
	DefaultIconBackgroundDark  = "#000000"
	DefaultTaskType            = TaskTypeFocus
	DefaultDifficulty          = DifficultyMedium
)

// UnmarshalJSON accepts the legacy task shapes still found in stored
// documents: a single "platform" string instead of "platforms", and tags
// given as one comma-separated string.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var raw struct {
		plain
		Tags      json.RawMessage `json:"tags"`
		Platforms json.RawMessage `json:"platforms"`
		Platform  string          `json:"platform"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Task(raw.plain)

	tags, err := decodeTags(raw.Tags)
	if err != nil {
		return fmt.Errorf("task %q tags: %w", t.ID, err)
	}
	t.Tags = tags

	if isSet(raw.Platforms) {
		var ps []Platform
		if err := json.Unmarshal(raw.Platforms, &ps); err != nil {
			return fmt.Errorf("task %q platforms: %w", t.ID, err)
		}
		t.Platforms = ps
	} else if raw.Platform != "" {
		t.Platforms = LegacyPlatforms(raw.Platform)
	}
	return nil
}

func isSet(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func decodeTags(raw json.RawMessage) ([]string, error) {
	if !isSet(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return strings.Split(s, ","), nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// LegacyPlatforms maps the old single-value platform field. Anything that is
// not exactly ios or android means both.
func LegacyPlatforms(v string) []Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(v))) {
	case PlatformIOS:
		return []Platform{PlatformIOS}
	case PlatformAndroid:
		return []Platform{PlatformAndroid}
	default:
		return []Platform{PlatformIOS, PlatformAndroid}
	}
}

// Normalize cleans a bundle in place: icon colors and task type and difficulty
// get their defaults, tags are trimmed and deduplicated, platforms
// deduplicated, nil slices become empty.
func (b *ConfigBundle) Normalize() {
	if b.Provider.IconBackgroundColorLight == "" {
		b.Provider.IconBackgroundColorLight = DefaultIconBackgroundLight
	}
	if b.Provider.IconBackgroundColorDark == "" {
		b.Provider.IconBackgroundColorDark = DefaultIconBackgroundDark
	}
	if b.Tasks == nil {
		b.Tasks = []Task{}
	}
	for i := range b.Tasks {
		b.Tasks[i].Normalize()
	}
}

// Normalize fills in the default type and difficulty and cleans tags and
// platforms.
func (t *Task) Normalize() {
	if t.Type == "" {
		t.Type = DefaultTaskType
	}
	if t.Difficulty == "" {
		t.Difficulty = DefaultDifficulty
	}
	tags := make([]string, 0, len(t.Tags))
	seen := map[string]bool{}
	for _, tag := range t.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	t.Tags = tags

	platforms := make([]Platform, 0, len(t.Platforms))
	seenP := map[Platform]bool{}
	for _, p := range t.Platforms {
		if seenP[p] {
			continue
		}
		seenP[p] = true
		platforms = append(platforms, p)
	}
	t.Platforms = platforms
}
