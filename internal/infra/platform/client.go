package platform

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// Message verbs.
const (
	verbRequest  = "REQUEST"
	verbComplete = "COMPLETE"
	verbContinue = "CONTINUE"
)

const (
	requestTimeout   = 30 * time.Second
	reconnectDelay   = 5 * time.Second
	writeWait        = 10 * time.Second
	eventBufferSize  = 16
	registerEndpoint = "registry/register"
)

// Message is the JSON envelope exchanged with the core. Requests carry a
// fresh request id; COMPLETE and CONTINUE replies echo the id they answer.
type Message struct {
	RequestID string         `json:"request_id"`
	Verb      string         `json:"verb"`
	Name      string         `json:"name"`
	Body      map[string]any `json:"body,omitempty"`
}

// ExtensionInfo identifies the extension towards the core at registration.
type ExtensionInfo struct {
	ExtensionID string `json:"extension_id"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Publisher   string `json:"publisher"`
	Email       string `json:"email"`
}

// RequestHandler serves an incoming request from the core. The returned
// messages are sent back with the request id filled in.
type RequestHandler func(msg Message) []Message

// Client maintains the websocket session to the core, correlates replies to
// in-flight requests and dispatches incoming requests to registered handlers.
type Client struct {
	url  string
	info ExtensionInfo

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]chan Message
	contSubs map[string]func(Message)
	handlers map[string]RequestHandler

	events chan Event
}

// NewClient creates a client for the core at the given websocket URL.
func NewClient(url string, info ExtensionInfo) *Client {
	return &Client{
		url:      url,
		info:     info,
		pending:  make(map[string]chan Message),
		contSubs: make(map[string]func(Message)),
		handlers: make(map[string]RequestHandler),
		events:   make(chan Event, eventBufferSize),
	}
}

// Events returns the platform event stream.
func (c *Client) Events() <-chan Event {
	return c.events
}

// HandleRequests registers the handler for incoming requests with the given
// name. Must be called before Run.
func (c *Client) HandleRequests(name string, handler RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = handler
}

// Run dials the core and serves the session, reconnecting with a fixed delay
// until the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.serve(ctx); err != nil && ctx.Err() == nil {
			zlog.Warn().Err(err).Msg("Core connection lost")
			c.emit(Event{Type: EventCoreLost})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) serve(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial core")
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.failPendingLocked()
		c.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	// The read loop must be running before registration is sent, as the
	// registration reply arrives through it like any other COMPLETE.
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- errors.Wrap(err, "failed to read core message")
				return
			}
			c.dispatch(msg)
		}
	}()

	if err := c.register(ctx); err != nil {
		return err
	}

	return <-readErr
}

// register announces the extension to the core and reports the pairing.
func (c *Client) register(ctx context.Context) error {
	body := map[string]any{
		"extension_id": c.info.ExtensionID,
		"display_name": c.info.DisplayName,
		"version":      c.info.Version,
		"publisher":    c.info.Publisher,
		"email":        c.info.Email,
	}

	id := uuid.New().String()
	reply := make(chan Message, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()

	if err := c.write(Message{RequestID: id, Verb: verbRequest, Name: registerEndpoint, Body: body}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-reply:
		if !ok {
			return errors.New("registration aborted")
		}
		coreName, _ := msg.Body["display_name"].(string)
		coreVersion, _ := msg.Body["display_version"].(string)
		zlog.Info().Str("core", coreName).Str("version", coreVersion).Msg("Paired with core")
		c.emit(Event{Type: EventCorePaired, CoreName: coreName, CoreVersion: coreVersion})
		return nil
	}
}

// dispatch routes one incoming message: replies to pending requests,
// continuations to subscriptions, requests to handlers.
func (c *Client) dispatch(msg Message) {
	switch msg.Verb {
	case verbComplete:
		c.mu.Lock()
		reply, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if ok {
			reply <- msg
		}
	case verbContinue:
		c.mu.Lock()
		handler, ok := c.contSubs[msg.RequestID]
		c.mu.Unlock()
		if ok {
			handler(msg)
		}
	case verbRequest:
		c.mu.Lock()
		handler, ok := c.handlers[msg.Name]
		c.mu.Unlock()
		if !ok {
			zlog.Debug().Str("name", msg.Name).Msg("No handler for core request")
			return
		}
		for _, reply := range handler(msg) {
			reply.RequestID = msg.RequestID
			if err := c.write(reply); err != nil {
				zlog.Warn().Err(err).Str("name", msg.Name).Msg("Failed to answer core request")
			}
		}
	}
}

// Request sends a request and waits for its COMPLETE reply.
func (c *Client) Request(ctx context.Context, name string, body map[string]any) (Message, error) {
	id := uuid.New().String()
	reply := make(chan Message, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()

	if err := c.write(Message{RequestID: id, Verb: verbRequest, Name: name, Body: body}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Message{}, err
	}

	timeout := time.NewTimer(requestTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Message{}, ctx.Err()
	case <-timeout.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Message{}, errors.Newf("request %s timed out", name)
	case msg, ok := <-reply:
		if !ok {
			return Message{}, errors.Newf("request %s aborted by disconnect", name)
		}
		return msg, nil
	}
}

// Notify sends a fire-and-forget request without waiting for a reply.
func (c *Client) Notify(name string, body map[string]any) error {
	return c.write(Message{RequestID: uuid.New().String(), Verb: verbRequest, Name: name, Body: body})
}

// Subscribe sends a subscription request; every CONTINUE reply is delivered
// to the handler until the connection drops.
func (c *Client) Subscribe(name string, body map[string]any, handler func(Message)) error {
	id := uuid.New().String()

	c.mu.Lock()
	c.contSubs[id] = handler
	c.mu.Unlock()

	if err := c.write(Message{RequestID: id, Verb: verbRequest, Name: name, Body: body}); err != nil {
		c.mu.Lock()
		delete(c.contSubs, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// SendContinue sends a CONTINUE message for an already established incoming
// subscription, identified by the request id that opened it.
func (c *Client) SendContinue(requestID, name string, body map[string]any) error {
	return c.write(Message{RequestID: requestID, Verb: verbContinue, Name: name, Body: body})
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected to core")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := c.conn.WriteJSON(&msg); err != nil {
		return errors.Wrap(err, "failed to write core message")
	}
	return nil
}

// failPendingLocked aborts all in-flight requests and drops continuation
// subscriptions; callers re-subscribe after the next pairing.
func (c *Client) failPendingLocked() {
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
	for id := range c.contSubs {
		delete(c.contSubs, id)
	}
}

func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		zlog.Warn().Str("event", event.Type.String()).Msg("Event buffer full, dropping event")
	}
}
