// Package platform provides the websocket link to the media-control core:
// the message envelope, the transport and status service wrappers, and the
// settings service binding that exposes the extension's form to the UI.
package platform

import (
	"encoding/json"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
)

// EventType represents an asynchronous platform event.
type EventType int

const (
	EventCorePaired    EventType = iota // registration with the core completed
	EventCoreLost                       // connection to the core dropped
	EventZones                          // zone list update
	EventZonesRemoved                   // zones disappeared from the topology
	EventOutputs                        // output list update
	EventSettingsSaved                  // the core confirmed a settings save
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventCorePaired:
		return "core_paired"
	case EventCoreLost:
		return "core_lost"
	case EventZones:
		return "zones"
	case EventZonesRemoved:
		return "zones_removed"
	case EventOutputs:
		return "outputs"
	case EventSettingsSaved:
		return "settings_saved"
	default:
		return "unknown"
	}
}

// Event represents a platform event. Only the fields relevant to the type
// are populated.
type Event struct {
	Type           EventType
	CoreName       string
	CoreVersion    string
	Zones          []topology.Zone
	RemovedZoneIDs []string
	Outputs        []topology.Output
	Settings       json.RawMessage // confirmed settings document
}
