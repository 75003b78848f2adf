package platform

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

const nameSetStatus = "status/set_status"

// Status wraps the core's status display service. Updates are fire-and-forget
// and last-write-wins on the core side.
type Status struct {
	client *Client
}

// NewStatus creates a status service wrapper around the client.
func NewStatus(client *Client) *Status {
	return &Status{client: client}
}

// SetStatus publishes the extension's status line.
func (s *Status) SetStatus(ctx context.Context, message string, isError bool) {
	err := s.client.Notify(nameSetStatus, map[string]any{
		"message":  message,
		"is_error": isError,
	})
	if err != nil {
		zlog.Warn().Err(err).Str("status", message).Msg("Failed to publish status")
	}
}
