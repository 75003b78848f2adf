package platform

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/topology"
)

// Transport service endpoints.
const (
	nameSubscribeZones   = "transport/subscribe_zones"
	nameSubscribeOutputs = "transport/subscribe_outputs"
	nameGetZones         = "transport/get_zones"
	nameGroupOutputs     = "transport/group_outputs"
	nameUngroupOutputs   = "transport/ungroup_outputs"
	nameChangeVolume     = "transport/change_volume"
)

// Transport wraps the core's transport service: zone/output subscriptions,
// grouping commands and volume changes.
type Transport struct {
	client *Client
}

// NewTransport creates a transport service wrapper around the client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// SubscribeZones subscribes to zone topology updates. Zone lists and removal
// notifications are delivered on the client's event stream.
func (t *Transport) SubscribeZones(ctx context.Context) error {
	return t.client.Subscribe(nameSubscribeZones, nil, func(msg Message) {
		t.emitZoneUpdate(msg.Body)
	})
}

// SubscribeOutputs subscribes to output list updates.
func (t *Transport) SubscribeOutputs(ctx context.Context) error {
	return t.client.Subscribe(nameSubscribeOutputs, nil, func(msg Message) {
		outputs, err := decodeOutputs(msg.Body)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to decode output update")
			return
		}
		t.client.emit(Event{Type: EventOutputs, Outputs: outputs})
	})
}

// GetZones requests a fresh zone snapshot; the reply is delivered on the
// event stream like a subscription update.
func (t *Transport) GetZones(ctx context.Context) error {
	msg, err := t.client.Request(ctx, nameGetZones, nil)
	if err != nil {
		return err
	}
	t.emitZoneUpdate(msg.Body)
	return nil
}

// GroupOutputs joins the given outputs into one zone. The first output
// becomes the zone's primary; order is preserved on the wire.
func (t *Transport) GroupOutputs(ctx context.Context, outputIDs []string) error {
	_, err := t.client.Request(ctx, nameGroupOutputs, map[string]any{"output_ids": outputIDs})
	return err
}

// UngroupOutputs dissolves the grouping the given outputs are part of.
func (t *Transport) UngroupOutputs(ctx context.Context, outputIDs []string) error {
	_, err := t.client.Request(ctx, nameUngroupOutputs, map[string]any{"output_ids": outputIDs})
	return err
}

// ChangeVolume adjusts one output's volume. The how argument selects the
// adjustment mode; preset activation always uses "absolute".
func (t *Transport) ChangeVolume(ctx context.Context, outputID, how string, value int) error {
	_, err := t.client.Request(ctx, nameChangeVolume, map[string]any{
		"output_id": outputID,
		"how":       how,
		"value":     value,
	})
	return err
}

func (t *Transport) emitZoneUpdate(body map[string]any) {
	if _, ok := body["zones"]; ok {
		zones, err := decodeZones(body)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to decode zone update")
			return
		}
		t.client.emit(Event{Type: EventZones, Zones: zones})
	}
	if removed, ok := body["zones_removed"]; ok {
		var zoneIDs []string
		if err := mapstructure.Decode(removed, &zoneIDs); err != nil {
			zlog.Warn().Err(err).Msg("Failed to decode zone removal")
			return
		}
		t.client.emit(Event{Type: EventZonesRemoved, RemovedZoneIDs: zoneIDs})
	}
}

func decodeZones(body map[string]any) ([]topology.Zone, error) {
	var payload struct {
		Zones []topology.Zone `mapstructure:"zones"`
	}
	if err := mapstructure.WeakDecode(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode zones")
	}
	return payload.Zones, nil
}

func decodeOutputs(body map[string]any) ([]topology.Output, error) {
	var payload struct {
		Outputs []topology.Output `mapstructure:"outputs"`
	}
	if err := mapstructure.WeakDecode(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode outputs")
	}
	return payload.Outputs, nil
}
