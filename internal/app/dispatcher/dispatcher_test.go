package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/app/layout"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/app/settings"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/infra/platform"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// fakeTransport records every issued command in order.
type fakeTransport struct {
	calls []string
}

func (f *fakeTransport) SubscribeZones(context.Context) error {
	f.record("subscribe_zones")
	return nil
}
func (f *fakeTransport) SubscribeOutputs(context.Context) error {
	f.record("subscribe_outputs")
	return nil
}
func (f *fakeTransport) GetZones(context.Context) error { f.record("get_zones"); return nil }

func (f *fakeTransport) GroupOutputs(_ context.Context, outputIDs []string) error {
	f.record(fmt.Sprintf("group_outputs(%v)", outputIDs))
	return nil
}

func (f *fakeTransport) UngroupOutputs(_ context.Context, outputIDs []string) error {
	f.record(fmt.Sprintf("ungroup_outputs(%v)", outputIDs))
	return nil
}

func (f *fakeTransport) ChangeVolume(_ context.Context, outputID, how string, value int) error {
	f.record(fmt.Sprintf("change_volume(%s, %s, %d)", outputID, how, value))
	return nil
}

func (f *fakeTransport) record(call string) { f.calls = append(f.calls, call) }

// fakeStatus records published status lines.
type fakeStatus struct {
	messages []string
}

func (f *fakeStatus) SetStatus(_ context.Context, message string, isError bool) {
	f.messages = append(f.messages, message)
}

func (f *fakeStatus) last() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

// fakeStore records persisted settings.
type fakeStore struct {
	saved []preset.GroupingSettings
}

func (f *fakeStore) Save(s preset.GroupingSettings) error {
	f.saved = append(f.saved, s.Clone())
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	manager    *settings.Manager
	transport  *fakeTransport
	status     *fakeStatus
	store      *fakeStore
}

func newFixture(initial preset.GroupingSettings) *fixture {
	f := &fixture{
		manager:   settings.NewManager(initial),
		transport: &fakeTransport{},
		status:    &fakeStatus{},
		store:     &fakeStore{},
	}
	f.dispatcher = New(f.manager, f.store, f.transport, f.status)
	return f
}

func (f *fixture) upsertOutput(id string, value int) {
	f.manager.UpsertOutputs([]topology.Output{{
		OutputID:              id,
		DisplayName:           "Output " + id,
		CanGroupWithOutputIDs: []string{"A", "B", "C"},
		Volume:                topology.Volume{Min: 0, Max: 100, Value: value},
	}})
}

func confirm(t *testing.T, s preset.GroupingSettings) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(&s)
	require.NoError(t, err)
	return data
}

func zone(id, name string, outputIDs ...string) topology.Zone {
	z := topology.Zone{ZoneID: id, DisplayName: name}
	for _, outputID := range outputIDs {
		z.Outputs = append(z.Outputs, topology.Output{OutputID: outputID})
	}
	return z
}

func TestHandleCorePaired(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})

	f.dispatcher.handleEvent(context.Background(), platform.Event{Type: platform.EventCorePaired})

	assert.Equal(t, []string{"subscribe_zones", "subscribe_outputs"}, f.transport.calls)
	assert.Equal(t, "No preset active", f.status.last())
}

func TestHandleZones_MatchAndExtract(t *testing.T) {
	f := newFixture(preset.GroupingSettings{
		Presets: []preset.Preset{{Name: "Kitchen", OutputIDs: []string{"A", "B"}}},
	})

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:  platform.EventZones,
		Zones: []topology.Zone{zone("z1", "Kitchen + Bath", "A", "B")},
	})

	assert.Equal(t, `Grouped zone "Kitchen + Bath" represents the "Kitchen" preset`, f.status.last())

	extracted := f.manager.Settings().ExtractedPreset
	require.NotNil(t, extracted)
	assert.Equal(t, "Kitchen + Bath", extracted.Name)
	assert.Equal(t, []string{"A", "B"}, extracted.OutputIDs)

	// A second update must not re-match while a zone is matched.
	f.status.messages = nil
	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:  platform.EventZones,
		Zones: []topology.Zone{zone("z2", "Elsewhere", "A", "B")},
	})
	assert.Empty(t, f.status.messages)
}

func TestHandleZonesRemoved(t *testing.T) {
	f := newFixture(preset.GroupingSettings{
		Presets: []preset.Preset{{Name: "Kitchen", OutputIDs: []string{"A", "B"}}},
	})

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:  platform.EventZones,
		Zones: []topology.Zone{zone("z1", "Kitchen + Bath", "A", "B")},
	})

	// Removing an unrelated zone keeps the match.
	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:           platform.EventZonesRemoved,
		RemovedZoneIDs: []string{"z9"},
	})
	assert.NotEqual(t, "No preset active", f.status.last())

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:           platform.EventZonesRemoved,
		RemovedZoneIDs: []string{"z1"},
	})
	assert.Equal(t, "No preset active", f.status.last())

	// With the match cleared, matching runs again on the next update.
	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:  platform.EventZones,
		Zones: []topology.Zone{zone("z2", "Kitchen again", "A", "B")},
	})
	assert.Equal(t, `Grouped zone "Kitchen again" represents the "Kitchen" preset`, f.status.last())
}

func TestSave_UnchangedSelectionRunsReducers(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})
	f.upsertOutput("A", 35)
	f.upsertOutput("B", 77)

	// The fetch pins the selection the form was rendered against.
	f.manager.RecordSelection(settings.Selection{Selected: intPtr(0)})

	values := map[string]any{
		"selected":          0,
		"action":            0,
		"add":               "B",
		"primary_output_id": "A",
		"volume_output_id":  nil,
		"volume_level":      "",
		"name":              "Kitchen",
		"output_ids":        []any{},
		"volume_type":       0,
		"presets":           []any{},
		"extracted_preset":  nil,
	}

	rendered, hasError, confirmed := f.dispatcher.Save(values, false)

	assert.False(t, hasError)
	require.NotNil(t, confirmed)

	result := rendered.(layout.Layout)
	require.Len(t, result.Settings.Presets, 1)
	assert.Equal(t, preset.Preset{Name: "Kitchen", OutputIDs: []string{"A", "B"}, Volumes: map[string]int{}}, result.Settings.Presets[0])
	require.NotNil(t, result.Settings.Selected)
	assert.Equal(t, 0, *result.Settings.Selected)
}

func TestSave_ChangedSelectionLoadsPreset(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})
	f.upsertOutput("A", 35)
	f.upsertOutput("B", 77)

	f.manager.RecordSelection(settings.Selection{})

	values := map[string]any{
		"selected":     0,
		"action":       0,
		"name":         "half-typed junk",
		"output_ids":   []any{},
		"volume_level": "",
		"volume_type":  0,
		"presets": []any{map[string]any{
			"name":        "Kitchen",
			"output_ids":  []any{"A", "B"},
			"volume_type": 0,
			"volumes":     map[string]any{},
		}},
	}

	rendered, _, _ := f.dispatcher.Save(values, true)

	result := rendered.(layout.Layout)
	assert.Equal(t, "Kitchen", result.Settings.Name)
	require.NotNil(t, result.Settings.PrimaryOutputID)
	assert.Equal(t, "A", *result.Settings.PrimaryOutputID)
	assert.Equal(t, []string{"A", "B"}, result.Settings.OutputIDs)
}

func TestSave_DeleteRemovesPresetAndClearsSelection(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})
	f.manager.RecordSelection(settings.Selection{Selected: intPtr(1)})

	values := map[string]any{
		"selected": 1,
		"action":   int(preset.ActionDelete),
		"name":     "Den",
		"presets": []any{
			map[string]any{"name": "Kitchen", "output_ids": []any{"A"}, "volume_type": 0, "volumes": map[string]any{}},
			map[string]any{"name": "Den", "output_ids": []any{"B"}, "volume_type": 0, "volumes": map[string]any{}},
			map[string]any{"name": "Everywhere", "output_ids": []any{"A", "B"}, "volume_type": 0, "volumes": map[string]any{}},
		},
	}

	rendered, hasError, _ := f.dispatcher.Save(values, false)

	assert.False(t, hasError)
	result := rendered.(layout.Layout)
	require.Len(t, result.Settings.Presets, 2)
	assert.Equal(t, "Kitchen", result.Settings.Presets[0].Name)
	assert.Equal(t, "Everywhere", result.Settings.Presets[1].Name)
	assert.Nil(t, result.Settings.Selected)
}

func TestSave_ValidationErrorBlocksConfirmation(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})
	f.upsertOutput("A", 35)
	f.upsertOutput("B", 77)
	f.manager.RecordSelection(settings.Selection{Selected: intPtr(0), VolumeOutputID: strPtr("A")})

	// After LoadPreset the add field is cleared, so StorePreset no-ops and the
	// captured volume keeps the submitted text from being reseeded.
	values := map[string]any{
		"selected":          0,
		"action":            0,
		"add":               nil,
		"primary_output_id": "A",
		"volume_output_id":  "A",
		"volume_level":      "150",
		"name":              "Kitchen",
		"output_ids":        []any{"A", "B"},
		"volume_type":       int(preset.VolumePreset),
		"presets": []any{map[string]any{
			"name":        "Kitchen",
			"output_ids":  []any{"A", "B"},
			"volume_type": int(preset.VolumePreset),
			"volumes":     map[string]any{"A": 40},
		}},
	}

	rendered, hasError, confirmed := f.dispatcher.Save(values, false)

	assert.True(t, hasError)
	assert.Nil(t, confirmed)
	assert.True(t, rendered.(layout.Layout).HasError)
}

func TestSettingsSaved_ActivateWithCapturedVolumes(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})

	confirmed := preset.GroupingSettings{
		Selected:        intPtr(0),
		Action:          preset.ActionActivate,
		PrimaryOutputID: strPtr("A"),
		Name:            "Kitchen",
		OutputIDs:       []string{"A", "B"},
		Presets: []preset.Preset{{
			Name:       "Kitchen",
			OutputIDs:  []string{"A", "B"},
			VolumeType: preset.VolumePreset,
			Volumes:    map[string]int{"A": 40, "B": 60},
		}},
	}

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:     platform.EventSettingsSaved,
		Settings: confirm(t, confirmed),
	})

	assert.Equal(t, []string{
		"change_volume(A, absolute, 40)",
		"change_volume(B, absolute, 60)",
		"group_outputs([A B])",
	}, f.transport.calls)
	assert.Equal(t, `Preset "Kitchen" activated`, f.status.last())
	require.Len(t, f.store.saved, 1)
}

func TestSettingsSaved_ActivateUngroupsAdHocGroupingFirst(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})

	confirmed := preset.GroupingSettings{
		Selected:        intPtr(0),
		Action:          preset.ActionActivate,
		PrimaryOutputID: strPtr("A"),
		Name:            "Kitchen",
		OutputIDs:       []string{"A", "B"},
		Presets: []preset.Preset{{
			Name:      "Kitchen",
			OutputIDs: []string{"A", "B"},
		}},
		ExtractedPreset: &preset.Preset{Name: "Ad hoc", OutputIDs: []string{"C", "D"}},
	}

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:     platform.EventSettingsSaved,
		Settings: confirm(t, confirmed),
	})

	// Untouched volume policy: no volume commands in between.
	assert.Equal(t, []string{
		"ungroup_outputs([C D])",
		"group_outputs([A B])",
	}, f.transport.calls)
}

func TestSettingsSaved_DeactivateCapturesLastUsedVolumes(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})
	f.upsertOutput("A", 77)
	f.upsertOutput("B", 51)

	confirmed := preset.GroupingSettings{
		Selected:        intPtr(0),
		Action:          preset.ActionDeactivate,
		PrimaryOutputID: strPtr("A"),
		Name:            "Kitchen",
		OutputIDs:       []string{"A", "B"},
		Presets: []preset.Preset{{
			Name:       "Kitchen",
			OutputIDs:  []string{"A", "B"},
			VolumeType: preset.VolumeLastUsed,
		}},
	}

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:     platform.EventSettingsSaved,
		Settings: confirm(t, confirmed),
	})

	assert.Equal(t, []string{"ungroup_outputs([A B])"}, f.transport.calls)
	assert.Equal(t, `Preset "Kitchen" deactivated`, f.status.last())

	// Captured levels are persisted and kept in memory for the next activation.
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, map[string]int{"A": 77, "B": 51}, f.store.saved[0].Presets[0].Volumes)
	assert.Equal(t, map[string]int{"A": 77, "B": 51}, f.manager.Settings().Presets[0].Volumes)
}

func TestSettingsSaved_EditRefreshesZones(t *testing.T) {
	f := newFixture(preset.GroupingSettings{})

	confirmed := preset.GroupingSettings{
		Selected:        intPtr(0),
		Action:          preset.ActionEdit,
		PrimaryOutputID: strPtr("A"),
		Name:            "Kitchen",
		OutputIDs:       []string{"A", "B"},
		Presets:         []preset.Preset{{Name: "Kitchen", OutputIDs: []string{"A", "B"}}},
	}

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:     platform.EventSettingsSaved,
		Settings: confirm(t, confirmed),
	})

	assert.Equal(t, []string{"get_zones"}, f.transport.calls)
	assert.Equal(t, "Settings saved", f.status.last())
}

func TestSettingsSaved_DeleteClearsMatchedZone(t *testing.T) {
	f := newFixture(preset.GroupingSettings{
		Presets: []preset.Preset{{Name: "Kitchen", OutputIDs: []string{"A", "B"}}},
	})

	// Establish a matched zone first.
	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:  platform.EventZones,
		Zones: []topology.Zone{zone("z1", "Kitchen + Bath", "A", "B")},
	})
	require.NotNil(t, f.dispatcher.matchedZone())

	confirmed := preset.GroupingSettings{
		Action: preset.ActionDelete,
		Name:   "Kitchen",
	}

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:     platform.EventSettingsSaved,
		Settings: confirm(t, confirmed),
	})

	assert.Nil(t, f.dispatcher.matchedZone())
	assert.Equal(t, `Preset "Kitchen" deleted`, f.status.last())
	assert.Len(t, f.store.saved, 1)
}

func TestSettingsSaved_NameChangeClearsMatchedZone(t *testing.T) {
	f := newFixture(preset.GroupingSettings{
		Name:    "Kitchen",
		Presets: []preset.Preset{{Name: "Kitchen", OutputIDs: []string{"A", "B"}}},
	})

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:  platform.EventZones,
		Zones: []topology.Zone{zone("z1", "Kitchen + Bath", "A", "B")},
	})
	require.NotNil(t, f.dispatcher.matchedZone())

	confirmed := preset.GroupingSettings{
		Name:    "Scullery",
		Presets: []preset.Preset{{Name: "Scullery", OutputIDs: []string{"A", "B"}}},
	}

	f.dispatcher.handleEvent(context.Background(), platform.Event{
		Type:     platform.EventSettingsSaved,
		Settings: confirm(t, confirmed),
	})

	assert.Nil(t, f.dispatcher.matchedZone())
	assert.Equal(t, "Scullery", f.manager.Settings().Name)
}

func TestFetch_RecordsSelection(t *testing.T) {
	initial := preset.GroupingSettings{
		Selected:       intPtr(0),
		VolumeOutputID: strPtr("A"),
		Presets:        []preset.Preset{{Name: "Kitchen", OutputIDs: []string{"A"}}},
	}
	f := newFixture(initial)

	rendered := f.dispatcher.Fetch()
	require.IsType(t, layout.Layout{}, rendered)

	// The selection just rendered is considered unchanged on the next save.
	assert.False(t, f.manager.SwapSelection(settings.Selection{
		Selected:       intPtr(0),
		VolumeOutputID: strPtr("A"),
	}))
}
