// Package preset provides the preset domain entities and the matcher that
// relates saved presets to live zone topology.
package preset

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Action represents the action selected for a preset.
// The integer codes are part of the settings wire format.
type Action int

const (
	ActionEdit       Action = 0
	ActionActivate   Action = 1
	ActionDeactivate Action = 2
	ActionDelete     Action = 3
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionEdit:
		return "edit"
	case ActionActivate:
		return "activate"
	case ActionDeactivate:
		return "deactivate"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// VolumeType represents the volume policy applied when a preset is activated.
// The integer codes are part of the settings wire format.
type VolumeType int

const (
	VolumeUntouched VolumeType = 0 // leave output volumes as they are
	VolumeLastUsed  VolumeType = 1 // restore the levels captured at deactivation
	VolumePreset    VolumeType = 2 // apply fixed, user-chosen levels
)

// String returns the string representation of the volume type.
func (v VolumeType) String() string {
	switch v {
	case VolumeUntouched:
		return "untouched"
	case VolumeLastUsed:
		return "last_used"
	case VolumePreset:
		return "preset"
	default:
		return "unknown"
	}
}

// Preset represents a persisted, named recipe for grouping an ordered set of
// outputs. The first entry of OutputIDs is the primary output. Volumes holds
// captured absolute levels keyed by output id; every key appears in OutputIDs.
type Preset struct {
	Name       string         `json:"name"`
	OutputIDs  []string       `json:"output_ids"`
	VolumeType VolumeType     `json:"volume_type"`
	Volumes    map[string]int `json:"volumes"`
}

// Clone returns a deep copy of the preset.
func (p *Preset) Clone() Preset {
	c := Preset{
		Name:       p.Name,
		OutputIDs:  append([]string(nil), p.OutputIDs...),
		VolumeType: p.VolumeType,
	}
	if p.Volumes != nil {
		c.Volumes = make(map[string]int, len(p.Volumes))
		for id, level := range p.Volumes {
			c.Volumes[id] = level
		}
	}
	return c
}

// GroupingSettings is the settings form state, round-tripped through the
// settings UI on every interaction and persisted between runs.
type GroupingSettings struct {
	// Selected indexes Presets; len(Presets) is the "new preset" sentinel.
	Selected *int `json:"selected"`
	// Action defaults to ActionEdit.
	Action Action `json:"action"`
	// Add is the candidate output id being appended to the edited preset.
	Add             *string `json:"add"`
	PrimaryOutputID *string `json:"primary_output_id"`
	VolumeOutputID  *string `json:"volume_output_id"`
	// VolumeLevel holds the raw user text so invalid input survives a round trip.
	VolumeLevel string     `json:"volume_level"`
	Name        string     `json:"name"`
	OutputIDs   []string   `json:"output_ids"`
	VolumeType  VolumeType `json:"volume_type"`
	Presets     []Preset   `json:"presets"`
	// ExtractedPreset is recomputed from live topology and never persisted.
	ExtractedPreset *Preset `json:"extracted_preset"`
}

// IsNewPreset reports whether Selected holds the "new preset" sentinel.
func (s *GroupingSettings) IsNewPreset() bool {
	return s.Selected != nil && *s.Selected == len(s.Presets)
}

// SelectedPreset returns the preset Selected points at, or nil when Selected
// is unset or holds the sentinel.
func (s *GroupingSettings) SelectedPreset() *Preset {
	if s.Selected == nil || *s.Selected < 0 || *s.Selected >= len(s.Presets) {
		return nil
	}
	return &s.Presets[*s.Selected]
}

// Clone returns a deep copy of the settings.
func (s *GroupingSettings) Clone() GroupingSettings {
	c := *s
	if s.Selected != nil {
		selected := *s.Selected
		c.Selected = &selected
	}
	c.Add = cloneStringPtr(s.Add)
	c.PrimaryOutputID = cloneStringPtr(s.PrimaryOutputID)
	c.VolumeOutputID = cloneStringPtr(s.VolumeOutputID)
	c.OutputIDs = append([]string(nil), s.OutputIDs...)
	c.Presets = make([]Preset, len(s.Presets))
	for i := range s.Presets {
		c.Presets[i] = s.Presets[i].Clone()
	}
	if s.ExtractedPreset != nil {
		extracted := s.ExtractedPreset.Clone()
		c.ExtractedPreset = &extracted
	}
	return c
}

// Decode parses a persisted or submitted settings document.
func Decode(data []byte) (GroupingSettings, error) {
	var s GroupingSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return GroupingSettings{}, errors.Wrap(err, "failed to decode grouping settings")
	}
	return s, nil
}

// Encode serializes the settings for persistence. ExtractedPreset is always
// written as null; the live topology rebuilds it on the next zone update.
func Encode(s GroupingSettings) ([]byte, error) {
	s.ExtractedPreset = nil
	data, err := json.Marshal(&s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode grouping settings")
	}
	return data, nil
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
