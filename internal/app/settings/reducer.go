// Package settings provides the reducers that apply a submitted settings
// form to preset state, and the manager that owns the mutable session state
// shared between the event loop and the settings service callbacks.
package settings

import (
	"strconv"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
)

// StorePreset normalizes the working output list and writes the edited preset
// into the preset list: in place when Selected indexes an existing preset,
// appended otherwise (Selected then moves to the new entry). Returns false
// when the form is not yet actionable (missing add, primary output, name or
// selection); the state is left as is in that case apart from the output list
// normalization, which is intentionally kept so it survives the round trip.
func StorePreset(s *preset.GroupingSettings) bool {
	if s.Add == nil || s.PrimaryOutputID == nil {
		return false
	}

	if len(s.OutputIDs) == 0 {
		s.OutputIDs = append(s.OutputIDs, *s.PrimaryOutputID)
	}
	if !contains(s.OutputIDs, *s.Add) {
		s.OutputIDs = append(s.OutputIDs, *s.Add)
	}

	if s.Name == "" || s.Selected == nil {
		return false
	}

	stored := preset.Preset{
		Name:      s.Name,
		OutputIDs: append([]string(nil), s.OutputIDs...),
		Volumes:   map[string]int{},
	}

	if *s.Selected < len(s.Presets) {
		s.Presets[*s.Selected] = stored
	} else {
		index := len(s.Presets)
		s.Presets = append(s.Presets, stored)
		s.Selected = &index
	}
	return true
}

// StoreVolume syncs the working volume type into the selected preset and, in
// fixed-volume mode, stores the entered level for the chosen output. When the
// output has no captured level yet, the field is seeded from its live value so
// the UI shows a sane default instead of a blank. Unparseable input fails
// silently; the layout builder surfaces the validation error. Returns false
// when nothing was stored.
func StoreVolume(s *preset.GroupingSettings, outputs map[string]topology.Output) bool {
	selected := s.SelectedPreset()
	if selected == nil {
		return false
	}

	selected.VolumeType = s.VolumeType

	if s.VolumeType != preset.VolumePreset || s.VolumeOutputID == nil {
		return false
	}

	if _, captured := selected.Volumes[*s.VolumeOutputID]; !captured {
		output, known := outputs[*s.VolumeOutputID]
		if !known {
			return false
		}
		s.VolumeLevel = strconv.Itoa(output.Volume.Value)
	}

	level, err := strconv.Atoi(s.VolumeLevel)
	if err != nil {
		return false
	}

	if selected.Volumes == nil {
		selected.Volumes = make(map[string]int)
	}
	selected.Volumes[*s.VolumeOutputID] = level
	return true
}

// LoadPreset repopulates the edit form after the user switched context, i.e.
// the (selected, volume output) pair changed since the previous round trip.
// An indexed existing preset wins; the extracted ad-hoc preset is offered when
// Selected points past the end of the list; otherwise the form is blanked for
// a genuinely new preset.
func LoadPreset(s *preset.GroupingSettings, outputs map[string]topology.Output) {
	if s.Selected == nil {
		return
	}

	if selected := s.SelectedPreset(); selected != nil {
		s.Name = selected.Name
		if len(selected.OutputIDs) > 0 {
			primary := selected.OutputIDs[0]
			s.PrimaryOutputID = &primary
		}
		s.OutputIDs = append([]string(nil), selected.OutputIDs...)
		s.Add = nil

		if s.VolumeOutputID != nil {
			if level, captured := selected.Volumes[*s.VolumeOutputID]; captured {
				s.VolumeLevel = strconv.Itoa(level)
			} else if output, known := outputs[*s.VolumeOutputID]; known {
				if selected.Volumes == nil {
					selected.Volumes = make(map[string]int)
				}
				selected.Volumes[*s.VolumeOutputID] = output.Volume.Value
				s.VolumeLevel = strconv.Itoa(output.Volume.Value)
			}
		}
		return
	}

	if extracted := s.ExtractedPreset; extracted != nil {
		s.Name = extracted.Name
		if len(extracted.OutputIDs) > 0 {
			primary := extracted.OutputIDs[0]
			s.PrimaryOutputID = &primary
			add := extracted.OutputIDs[0]
			s.Add = &add
		}
		s.OutputIDs = append([]string(nil), extracted.OutputIDs...)
		s.Action = preset.ActionEdit
		return
	}

	s.Name = ""
	s.PrimaryOutputID = nil
	s.OutputIDs = nil
	s.Action = preset.ActionEdit
	s.Add = nil
}

// DeletePreset removes the preset Selected indexes and clears the selection.
// Returns the removed preset, or nil when Selected does not index one.
func DeletePreset(s *preset.GroupingSettings) *preset.Preset {
	removed := s.SelectedPreset()
	if removed == nil {
		return nil
	}

	deleted := removed.Clone()
	index := *s.Selected
	s.Presets = append(s.Presets[:index], s.Presets[index+1:]...)
	s.Selected = nil
	return &deleted
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
