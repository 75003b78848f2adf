package platform

import (
	"encoding/json"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Settings service endpoints.
const (
	nameGetSettings       = "settings/get_settings"
	nameSaveSettings      = "settings/save_settings"
	nameSubscribeSettings = "settings/subscribe_settings"
)

// SettingsHandler supplies the rendered settings form and applies submitted
// values. The returned layouts must be JSON-marshalable. Save returns the
// confirmed settings document when a non-dry-run submission was accepted;
// a nil confirmation means nothing is to be committed.
type SettingsHandler interface {
	Fetch() (layout any)
	Save(values map[string]any, dryRun bool) (layout any, hasError bool, confirmed json.RawMessage)
}

// SettingsService binds the settings UI protocol to a handler: it answers
// fetch and save requests, tracks subscribers and pushes Changed updates to
// them after an accepted save.
type SettingsService struct {
	client  *Client
	handler SettingsHandler

	mu          sync.Mutex
	subscribers map[string]struct{}
}

// NewSettingsService creates the service and registers its request handlers
// on the client.
func NewSettingsService(client *Client, handler SettingsHandler) *SettingsService {
	s := &SettingsService{
		client:      client,
		handler:     handler,
		subscribers: make(map[string]struct{}),
	}

	client.HandleRequests(nameGetSettings, s.handleGet)
	client.HandleRequests(nameSubscribeSettings, s.handleSubscribe)
	client.HandleRequests(nameSaveSettings, s.handleSave)

	return s
}

func (s *SettingsService) handleGet(Message) []Message {
	return []Message{{
		Verb: verbComplete,
		Name: "Success",
		Body: map[string]any{"settings": s.handler.Fetch()},
	}}
}

func (s *SettingsService) handleSubscribe(msg Message) []Message {
	s.mu.Lock()
	s.subscribers[msg.RequestID] = struct{}{}
	s.mu.Unlock()

	return []Message{{
		Verb: verbContinue,
		Name: "Subscribed",
		Body: map[string]any{"settings": s.handler.Fetch()},
	}}
}

func (s *SettingsService) handleSave(msg Message) []Message {
	dryRun, _ := msg.Body["is_dry_run"].(bool)
	values := submittedValues(msg.Body)

	layout, hasError, confirmed := s.handler.Save(values, dryRun)

	if !dryRun && !hasError {
		s.broadcast(layout)
		if confirmed != nil {
			s.client.emit(Event{Type: EventSettingsSaved, Settings: confirmed})
		}
	}

	return []Message{{
		Verb: verbComplete,
		Name: "Success",
		Body: map[string]any{"settings": layout},
	}}
}

// broadcast pushes the new form to every settings subscriber.
func (s *SettingsService) broadcast(layout any) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		err := s.client.SendContinue(id, "Changed", map[string]any{"settings": layout})
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to push settings update")
		}
	}
}

// submittedValues digs the submitted form values out of a save request body.
func submittedValues(body map[string]any) map[string]any {
	settings, ok := body["settings"].(map[string]any)
	if !ok {
		return nil
	}
	values, ok := settings["values"].(map[string]any)
	if !ok {
		return nil
	}
	return values
}
