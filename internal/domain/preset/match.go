package preset

import "github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"

// Match relates saved presets to live zones. A zone matches a preset only if
// it has the same number of outputs and the output ids are equal position by
// position; set equality is not enough because the saved order determines the
// grouping order on activation. The first match in preset order wins.
func Match(presets []Preset, zones []topology.Zone) (*Preset, *topology.Zone) {
	for i := range presets {
		for j := range zones {
			if zoneMatches(&presets[i], &zones[j]) {
				return &presets[i], &zones[j]
			}
		}
	}
	return nil, nil
}

func zoneMatches(p *Preset, z *topology.Zone) bool {
	if len(z.Outputs) != len(p.OutputIDs) {
		return false
	}
	for i, output := range z.Outputs {
		if output.OutputID != p.OutputIDs[i] {
			return false
		}
	}
	return true
}

// Extract derives a promotable preset skeleton from the current ad-hoc
// grouping: the first zone with more than one output, named after the zone.
// Returns nil when no zone is grouped.
func Extract(zones []topology.Zone) *Preset {
	for i := range zones {
		zone := &zones[i]
		if len(zone.Outputs) > 1 {
			return &Preset{
				Name:      zone.DisplayName,
				OutputIDs: zone.OutputIDs(),
			}
		}
	}
	return nil
}
