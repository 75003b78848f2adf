package settings

import (
	"sync"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
)

// Selection is the (preset index, volume output) pair a settings round trip
// was rendered against. A change between round trips means the user switched
// context and in-progress edit fields must be reloaded.
type Selection struct {
	Selected       *int
	VolumeOutputID *string
}

// Equal compares two selections by value.
func (s Selection) Equal(other Selection) bool {
	if (s.Selected == nil) != (other.Selected == nil) {
		return false
	}
	if s.Selected != nil && *s.Selected != *other.Selected {
		return false
	}
	if (s.VolumeOutputID == nil) != (other.VolumeOutputID == nil) {
		return false
	}
	if s.VolumeOutputID != nil && *s.VolumeOutputID != *other.VolumeOutputID {
		return false
	}
	return true
}

// Manager owns the mutable session state: the authoritative grouping
// settings, the output cache and the last rendered selection. Each state item
// has its own lock; locks are never held across calls into collaborators.
type Manager struct {
	settingsMu sync.Mutex
	settings   preset.GroupingSettings

	outputsMu sync.RWMutex
	outputs   map[string]topology.Output

	selectionMu   sync.Mutex
	lastSelection Selection
}

// NewManager creates a manager seeded with the persisted settings.
func NewManager(initial preset.GroupingSettings) *Manager {
	return &Manager{
		settings: initial,
		outputs:  make(map[string]topology.Output),
	}
}

// Settings returns a deep copy of the authoritative settings.
func (m *Manager) Settings() preset.GroupingSettings {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	return m.settings.Clone()
}

// ReplaceSettings installs newly confirmed settings as authoritative.
func (m *Manager) ReplaceSettings(s preset.GroupingSettings) {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	m.settings = s
}

// Presets returns a deep copy of the persisted preset list.
func (m *Manager) Presets() []preset.Preset {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	presets := make([]preset.Preset, len(m.settings.Presets))
	for i := range m.settings.Presets {
		presets[i] = m.settings.Presets[i].Clone()
	}
	return presets
}

// SettingsName returns the name field of the authoritative settings.
func (m *Manager) SettingsName() string {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	return m.settings.Name
}

// SetExtractedPreset stores the promotable ad-hoc grouping candidate. It is
// recomputed idempotently from every zone update, nil when nothing is grouped.
func (m *Manager) SetExtractedPreset(p *preset.Preset) {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	if p == nil {
		m.settings.ExtractedPreset = nil
		return
	}
	extracted := p.Clone()
	m.settings.ExtractedPreset = &extracted
}

// UpsertOutputs merges reported outputs into the output cache by id.
func (m *Manager) UpsertOutputs(outputs []topology.Output) {
	m.outputsMu.Lock()
	defer m.outputsMu.Unlock()
	for _, output := range outputs {
		m.outputs[output.OutputID] = output
	}
}

// Outputs returns a snapshot copy of the output cache.
func (m *Manager) Outputs() map[string]topology.Output {
	m.outputsMu.RLock()
	defer m.outputsMu.RUnlock()
	snapshot := make(map[string]topology.Output, len(m.outputs))
	for id, output := range m.outputs {
		snapshot[id] = output
	}
	return snapshot
}

// Output looks up a single output by id.
func (m *Manager) Output(id string) (topology.Output, bool) {
	m.outputsMu.RLock()
	defer m.outputsMu.RUnlock()
	output, ok := m.outputs[id]
	return output, ok
}

// RecordSelection remembers the selection a fetch was rendered against.
func (m *Manager) RecordSelection(s Selection) {
	m.selectionMu.Lock()
	defer m.selectionMu.Unlock()
	m.lastSelection = s
}

// SwapSelection records the submitted selection and reports whether it
// differs from the previously rendered one.
func (m *Manager) SwapSelection(s Selection) (changed bool) {
	m.selectionMu.Lock()
	defer m.selectionMu.Unlock()
	changed = !s.Equal(m.lastSelection)
	m.lastSelection = s
	return changed
}
