package layout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
)

// Build renders the settings state into the form tree. Widgets are revealed
// progressively: the preset selector is always present; action and editor
// follow a selection; the editor reveals output and volume fields as the
// earlier choices are made. An out-of-range volume level attaches its error
// text to the field and raises the layout's HasError flag.
func Build(settings preset.GroupingSettings, outputs map[string]topology.Output) Layout {
	layout := Layout{Settings: settings}

	presetValues := []Option{{Title: "(select preset)", Value: nil}}
	for index, p := range settings.Presets {
		if p.Name != "" {
			presetValues = append(presetValues, Option{Title: p.Name, Value: index})
		}
	}
	presetValues = append(presetValues, Option{Title: "New Preset", Value: len(settings.Presets)})

	layout.Widgets = append(layout.Widgets, Dropdown{
		Title:   "Preset",
		Values:  presetValues,
		Setting: "selected",
	})

	if settings.Selected == nil {
		return layout
	}

	if !settings.IsNewPreset() {
		layout.Widgets = append(layout.Widgets, Dropdown{
			Title: "Action",
			Values: []Option{
				{Title: "(select action)", Value: nil},
				{Title: "Activate", Value: int(preset.ActionActivate)},
				{Title: "Deactivate", Value: int(preset.ActionDeactivate)},
				{Title: "Edit", Value: int(preset.ActionEdit)},
				{Title: "Delete", Value: int(preset.ActionDelete)},
			},
			Setting: "action",
		})
	}

	if settings.Action == preset.ActionEdit {
		layout.Widgets = append(layout.Widgets, buildEditor(&settings, outputs, &layout.HasError))
	}

	if settings.PrimaryOutputID != nil {
		if primary, known := outputs[*settings.PrimaryOutputID]; known {
			layout.Widgets = append(layout.Widgets, groupSummary(&settings, primary, outputs))
		}
	}

	return layout
}

// buildEditor assembles the collapsable "Preset Editor" group.
func buildEditor(settings *preset.GroupingSettings, outputs map[string]topology.Output, hasError *bool) Widget {
	editor := Group{
		Title:       "Preset Editor",
		Collapsable: true,
		Items:       []Widget{Textbox{Title: "Name", Setting: "name"}},
	}

	if settings.Name == "" {
		return editor
	}

	primaryValues := []Option{{Title: "(select output)", Value: nil}}
	for _, id := range sortedOutputIDs(outputs) {
		primaryValues = append(primaryValues, Option{Title: outputs[id].DisplayName, Value: id})
	}
	editor.Items = append(editor.Items, Dropdown{
		Title:   "Primary Output",
		Values:  primaryValues,
		Setting: "primary_output_id",
	})

	if settings.PrimaryOutputID == nil {
		return editor
	}
	primary, known := outputs[*settings.PrimaryOutputID]
	if !known {
		return editor
	}

	groupWith := []Option{{Title: "(select output)", Value: nil}}
	for _, id := range primary.CanGroupWithOutputIDs {
		if id == primary.OutputID {
			continue
		}
		if output, ok := outputs[id]; ok {
			groupWith = append(groupWith, Option{Title: output.DisplayName, Value: id})
		}
	}
	editor.Items = append(editor.Items, Dropdown{
		Title:   "Group With",
		Values:  groupWith,
		Setting: "add",
	})

	editor.Items = append(editor.Items, Dropdown{
		Title: "Volume Control",
		Values: []Option{
			{Title: "(select volume control)", Value: nil},
			{Title: "Untouched", Value: int(preset.VolumeUntouched)},
			{Title: "Last Used", Value: int(preset.VolumeLastUsed)},
			{Title: "Preset", Value: int(preset.VolumePreset)},
		},
		Setting: "volume_type",
	})

	if settings.VolumeType != preset.VolumePreset {
		return editor
	}

	volumeOutputs := []Option{{Title: "(select output)", Value: nil}}
	for _, id := range settings.OutputIDs {
		if output, ok := outputs[id]; ok {
			volumeOutputs = append(volumeOutputs, Option{Title: output.DisplayName, Value: id})
		}
	}
	editor.Items = append(editor.Items, Dropdown{
		Title:   "Output",
		Values:  volumeOutputs,
		Setting: "volume_output_id",
	})

	if settings.VolumeOutputID == nil {
		return editor
	}
	output, ok := outputs[*settings.VolumeOutputID]
	if !ok {
		return editor
	}

	level := IntegerField{
		Title:   "Volume Level",
		Min:     output.Volume.Min,
		Max:     output.Volume.Max,
		Setting: "volume_level",
	}
	if outOfRange(settings.VolumeLevel, level.Min, level.Max) {
		level.Error = fmt.Sprintf("Volume level should be between %d and %d", level.Min, level.Max)
		*hasError = true
	}
	editor.Items = append(editor.Items, level)

	return editor
}

// groupSummary renders the read-only overview of the edited grouping.
func groupSummary(settings *preset.GroupingSettings, primary topology.Output, outputs map[string]topology.Output) Widget {
	var subtitle strings.Builder
	subtitle.WriteString("Grouped with:")

	for _, id := range settings.OutputIDs {
		if id == primary.OutputID {
			continue
		}
		if output, ok := outputs[id]; ok {
			subtitle.WriteByte('\n')
			subtitle.WriteString(output.DisplayName)
		}
	}

	return Label{
		Title:    primary.DisplayName,
		Subtitle: subtitle.String(),
	}
}

// outOfRange reports whether the entered text is an invalid volume level. An
// empty field is not an error; malformed text is treated as out of range.
func outOfRange(text string, min, max int) bool {
	if text == "" {
		return false
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		return true
	}
	return value < min || value > max
}

func sortedOutputIDs(outputs map[string]topology.Output) []string {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
