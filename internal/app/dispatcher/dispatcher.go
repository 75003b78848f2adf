// Package dispatcher runs the extension's event loop: it reconciles live
// topology with saved presets, serves the settings form, and executes the
// grouping and volume side effects of confirmed preset actions.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/app/layout"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/app/settings"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
	"github.com/TheAppgineer/roon-extension-zone-presets/internal/infra/platform"
)

const statusNoPresetActive = "No preset active"

// Transport issues grouping and volume commands and manages the topology
// subscriptions. Commands are best effort; failures do not affect state.
type Transport interface {
	SubscribeZones(ctx context.Context) error
	SubscribeOutputs(ctx context.Context) error
	GetZones(ctx context.Context) error
	GroupOutputs(ctx context.Context, outputIDs []string) error
	UngroupOutputs(ctx context.Context, outputIDs []string) error
	ChangeVolume(ctx context.Context, outputID, how string, value int) error
}

// StatusReporter publishes the extension's status line.
type StatusReporter interface {
	SetStatus(ctx context.Context, message string, isError bool)
}

// Store persists the settings document between runs.
type Store interface {
	Save(s preset.GroupingSettings) error
}

// Dispatcher owns the session: the settings state manager, the matched-zone
// handle and the collaborator handles.
type Dispatcher struct {
	manager   *settings.Manager
	store     Store
	transport Transport
	status    StatusReporter

	matchedMu     sync.Mutex
	matchedZoneID *string
}

// New creates a dispatcher around the given collaborators.
func New(manager *settings.Manager, store Store, transport Transport, status StatusReporter) *Dispatcher {
	return &Dispatcher{
		manager:   manager,
		store:     store,
		transport: transport,
		status:    status,
	}
}

// Run consumes platform events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan platform.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.handleEvent(ctx, event)
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, event platform.Event) {
	switch event.Type {
	case platform.EventCorePaired:
		d.handleCorePaired(ctx)
	case platform.EventZones:
		d.handleZones(ctx, event.Zones)
	case platform.EventZonesRemoved:
		d.handleZonesRemoved(ctx, event.RemovedZoneIDs)
	case platform.EventOutputs:
		d.manager.UpsertOutputs(event.Outputs)
	case platform.EventSettingsSaved:
		d.handleSettingsSaved(ctx, event.Settings)
	case platform.EventCoreLost:
		zlog.Info().Msg("Waiting for core")
	}
}

func (d *Dispatcher) handleCorePaired(ctx context.Context) {
	d.status.SetStatus(ctx, statusNoPresetActive, false)

	if err := d.transport.SubscribeZones(ctx); err != nil {
		zlog.Warn().Err(err).Msg("Failed to subscribe to zones")
	}
	if err := d.transport.SubscribeOutputs(ctx); err != nil {
		zlog.Warn().Err(err).Msg("Failed to subscribe to outputs")
	}
}

// handleZones matches new topology against the saved presets while no zone is
// matched yet, and recomputes the promotable ad-hoc grouping either way.
func (d *Dispatcher) handleZones(ctx context.Context, zones []topology.Zone) {
	if d.matchedZone() == nil {
		presets := d.manager.Presets()
		if matched, zone := preset.Match(presets, zones); matched != nil {
			d.setMatchedZone(&zone.ZoneID)
			message := fmt.Sprintf("Grouped zone %q represents the %q preset", zone.DisplayName, matched.Name)
			d.status.SetStatus(ctx, message, false)
		}
	}

	d.manager.SetExtractedPreset(preset.Extract(zones))
}

func (d *Dispatcher) handleZonesRemoved(ctx context.Context, removedZoneIDs []string) {
	matched := d.matchedZone()
	if matched == nil {
		return
	}
	for _, zoneID := range removedZoneIDs {
		if zoneID == *matched {
			d.setMatchedZone(nil)
			d.status.SetStatus(ctx, statusNoPresetActive, false)
			return
		}
	}
}

// Fetch renders the current settings for the UI and remembers the selection
// the render was based on, so the next save can tell a context switch from an
// in-progress edit.
func (d *Dispatcher) Fetch() any {
	current := d.manager.Settings()
	d.manager.RecordSelection(settings.Selection{
		Selected:       current.Selected,
		VolumeOutputID: current.VolumeOutputID,
	})
	return layout.Build(current, d.manager.Outputs())
}

// Save applies a submitted form. A delete removes the preset immediately; a
// selection change reloads the edit form, an unchanged selection feeds the
// reducers. The rendered result is always reported as success; the confirmed
// document is returned only for an accepted non-dry-run submission.
func (d *Dispatcher) Save(values map[string]any, dryRun bool) (any, bool, json.RawMessage) {
	submitted, err := decodeValues(values)
	if err != nil {
		zlog.Warn().Err(err).Msg("Ignoring malformed settings submission")
		current := d.manager.Settings()
		rendered := layout.Build(current, d.manager.Outputs())
		return rendered, rendered.HasError, nil
	}

	if submitted.Action == preset.ActionDelete {
		settings.DeletePreset(&submitted)
	}

	selection := settings.Selection{
		Selected:       submitted.Selected,
		VolumeOutputID: submitted.VolumeOutputID,
	}
	outputs := d.manager.Outputs()

	if d.manager.SwapSelection(selection) {
		settings.LoadPreset(&submitted, outputs)
	} else {
		settings.StorePreset(&submitted)
		settings.StoreVolume(&submitted, outputs)
	}

	rendered := layout.Build(submitted, outputs)

	var confirmed json.RawMessage
	if !dryRun && !rendered.HasError {
		if data, err := json.Marshal(&rendered.Settings); err == nil {
			confirmed = data
		} else {
			zlog.Warn().Err(err).Msg("Failed to encode confirmed settings")
		}
	}

	return rendered, rendered.HasError, confirmed
}

// handleSettingsSaved is the authoritative commit of a save: it executes the
// confirmed action's side effects, installs the new settings in memory and
// persists them.
func (d *Dispatcher) handleSettingsSaved(ctx context.Context, document json.RawMessage) {
	confirmed, err := preset.Decode(document)
	if err != nil {
		zlog.Warn().Err(err).Msg("Ignoring malformed settings confirmation")
		return
	}

	statusMessage := "Settings saved"

	if confirmed.Selected != nil && confirmed.PrimaryOutputID != nil {
		switch confirmed.Action {
		case preset.ActionActivate:
			d.activate(ctx, &confirmed)
			statusMessage = fmt.Sprintf("Preset %q activated", confirmed.Name)
		case preset.ActionDeactivate:
			d.deactivate(ctx, &confirmed)
			statusMessage = fmt.Sprintf("Preset %q deactivated", confirmed.Name)
		case preset.ActionEdit:
			// Refresh the topology for the editor.
			if err := d.transport.GetZones(ctx); err != nil {
				zlog.Warn().Err(err).Msg("Failed to refresh zones")
			}
		}
	}

	if confirmed.Action == preset.ActionDelete {
		d.setMatchedZone(nil)
		statusMessage = fmt.Sprintf("Preset %q deleted", confirmed.Name)
	}

	d.status.SetStatus(ctx, statusMessage, false)

	// A name change invalidates the zone match.
	if d.manager.SettingsName() != confirmed.Name {
		d.setMatchedZone(nil)
	}

	d.manager.ReplaceSettings(confirmed.Clone())

	if err := d.store.Save(confirmed); err != nil {
		zlog.Error().Err(err).Msg("Failed to persist settings")
	}
}

// activate ungroups any live ad-hoc grouping first so groups cannot overlap,
// applies captured volumes unless the policy is Untouched, then groups the
// preset's outputs in saved order.
func (d *Dispatcher) activate(ctx context.Context, confirmed *preset.GroupingSettings) {
	if extracted := confirmed.ExtractedPreset; extracted != nil {
		if err := d.transport.UngroupOutputs(ctx, extracted.OutputIDs); err != nil {
			zlog.Warn().Err(err).Msg("Failed to ungroup ad-hoc grouping")
		}
	}

	if selected := confirmed.SelectedPreset(); selected != nil && selected.VolumeType != preset.VolumeUntouched {
		for _, outputID := range selected.OutputIDs {
			level, captured := selected.Volumes[outputID]
			if !captured {
				continue
			}
			if err := d.transport.ChangeVolume(ctx, outputID, "absolute", level); err != nil {
				zlog.Warn().Err(err).Str("output", outputID).Msg("Failed to apply preset volume")
			}
		}
	}

	if err := d.transport.GroupOutputs(ctx, confirmed.OutputIDs); err != nil {
		zlog.Warn().Err(err).Msg("Failed to group outputs")
	}
}

// deactivate captures the members' current levels under the LastUsed policy,
// so the next activation restores them, then ungroups.
func (d *Dispatcher) deactivate(ctx context.Context, confirmed *preset.GroupingSettings) {
	if selected := confirmed.SelectedPreset(); selected != nil && selected.VolumeType == preset.VolumeLastUsed {
		for _, outputID := range confirmed.OutputIDs {
			output, known := d.manager.Output(outputID)
			if !known {
				continue
			}
			if selected.Volumes == nil {
				selected.Volumes = make(map[string]int)
			}
			selected.Volumes[outputID] = output.Volume.Value
		}
	}

	if err := d.transport.UngroupOutputs(ctx, confirmed.OutputIDs); err != nil {
		zlog.Warn().Err(err).Msg("Failed to ungroup outputs")
	}
}

func (d *Dispatcher) matchedZone() *string {
	d.matchedMu.Lock()
	defer d.matchedMu.Unlock()
	return d.matchedZoneID
}

func (d *Dispatcher) setMatchedZone(zoneID *string) {
	d.matchedMu.Lock()
	defer d.matchedMu.Unlock()
	d.matchedZoneID = zoneID
}

// decodeValues turns the loosely typed submitted form values into settings.
func decodeValues(values map[string]any) (preset.GroupingSettings, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return preset.GroupingSettings{}, err
	}
	return preset.Decode(data)
}
