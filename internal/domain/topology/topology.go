// Package topology provides snapshot types for the outputs and zones
// reported by the media-control core.
package topology

// Volume represents the volume state of an output.
type Volume struct {
	Min   int `json:"min" mapstructure:"min"`
	Max   int `json:"max" mapstructure:"max"`
	Value int `json:"value" mapstructure:"value"`
}

// Output represents an addressable audio endpoint.
type Output struct {
	OutputID              string   `json:"output_id" mapstructure:"output_id"`
	DisplayName           string   `json:"display_name" mapstructure:"display_name"`
	CanGroupWithOutputIDs []string `json:"can_group_with_output_ids" mapstructure:"can_group_with_output_ids"`
	Volume                Volume   `json:"volume" mapstructure:"volume"`
}

// Zone represents a live playback group as reported by the transport layer.
// A zone with more than one output is a synchronized grouping.
type Zone struct {
	ZoneID      string   `json:"zone_id" mapstructure:"zone_id"`
	DisplayName string   `json:"display_name" mapstructure:"display_name"`
	Outputs     []Output `json:"outputs" mapstructure:"outputs"`
}

// OutputIDs returns the zone's member output ids in reported order.
func (z *Zone) OutputIDs() []string {
	ids := make([]string, len(z.Outputs))
	for i, o := range z.Outputs {
		ids[i] = o.OutputID
	}
	return ids
}
