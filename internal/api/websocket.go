package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/location"
	"github.com/nerrad567/smarthome-core/internal/smarthome"
)

// WebSocket constants.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSEventSnapshot carries the full current list of a channel.
	WSEventSnapshot = "snapshot"

	// Channel names. Rooms and devices channels take a parent id suffix.
	ChannelHomes         = "homes"
	ChannelRoomsPrefix   = "rooms:"
	ChannelDevicesPrefix = "devices:"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub tracks WebSocket connections.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	client  *smarthome.Client
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket. Each subscribed channel holds a live
// document store subscription that is released when the channel is
// unsubscribed or the connection closes.
//
// Snapshots bypass the send buffer: each channel keeps only its latest
// unwritten snapshot, so a slow reader skips intermediate states but always
// ends on the current one.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ready  chan struct{}
	userID string
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	subscriptions map[string]*docstore.Subscription
	pending       map[string][]byte
	pendingOrder  []string
}

func newWSClient(hub *Hub, conn *websocket.Conn, userID string) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		ready:         make(chan struct{}, 1),
		userID:        userID,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*docstore.Subscription),
		pending:       make(map[string][]byte),
	}
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, client *smarthome.Client) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub and releases its subscriptions.
// Only the goroutine that removes the client from the map closes the send
// channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		client.release()
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriptionCount returns the number of live channel subscriptions.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range clients {
		c.mu.Lock()
		n += len(c.subscriptions)
		c.mu.Unlock()
	}
	return n
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.release()
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	id, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}
	// The session may have been revoked since the ticket was issued.
	if _, err := s.client.Accounts.Verify(r.Context(), id.Token); err != nil {
		writeUnauthorized(w, "invalid or expired session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, id.ID)

	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) timings() (ping, pong time.Duration, maxSize int64) {
	ping, pong, maxSize = defaultPingInterval, defaultPongTimeout, defaultMaxMessageSize
	if h.cfg.PingInterval > 0 {
		ping = time.Duration(h.cfg.PingInterval) * time.Second
	}
	if h.cfg.PongTimeout > 0 {
		pong = time.Duration(h.cfg.PongTimeout) * time.Second
	}
	if h.cfg.MaxMessageSize > 0 {
		maxSize = int64(h.cfg.MaxMessageSize)
	}
	return ping, pong, maxSize
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pingInterval, pongWait, maxSize := c.hub.timings()
	c.conn.SetReadLimit(maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump() {
	pingInterval, pongWait, _ := c.hub.timings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.ready:
			for _, snapshot := range c.takePending() {
				//nolint:errcheck // Best-effort deadline; write error caught below
				c.conn.SetWriteDeadline(time.Now().Add(pongWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
					return
				}
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "", "unknown message type: "+msg.Type)
	}
}

func decodeChannels(msg WSMessage) ([]string, error) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		return nil, err
	}
	return sub.Channels, nil
}

// handleSubscribe opens a live subscription per channel. Channels the
// caller may not see are reported as errors; the others still subscribe.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	channels, err := decodeChannels(msg)
	if err != nil {
		c.sendError(msg.ID, "", "invalid subscribe payload")
		return
	}

	subscribed := make([]string, 0, len(channels))
	for _, ch := range channels {
		if err := c.subscribe(ch); err != nil {
			c.hub.logger.Debug("websocket subscribe refused", "channel", ch, "error", err)
			c.sendError(msg.ID, ch, err.Error())
			continue
		}
		subscribed = append(subscribed, ch)
	}

	c.hub.logger.Info("websocket client subscribed", "channels", subscribed)
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"subscribed": subscribed,
	})
}

// handleUnsubscribe releases channel subscriptions.
func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	channels, err := decodeChannels(msg)
	if err != nil {
		c.sendError(msg.ID, "", "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		if sub, ok := c.subscriptions[ch]; ok {
			sub.Unsubscribe()
			delete(c.subscriptions, ch)
		}
		c.dropPendingLocked(ch)
	}
	c.mu.Unlock()

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"unsubscribed": channels,
	})
}

// subscribe checks the caller owns the channel's parent and starts the
// matching live query. Subscribing twice to a channel is a no-op.
func (c *WSClient) subscribe(channel string) error {
	c.mu.Lock()
	_, exists := c.subscriptions[channel]
	c.mu.Unlock()
	if exists {
		return nil
	}

	sub, err := c.open(channel)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, raced := c.subscriptions[channel]; raced || c.ctx.Err() != nil {
		sub.Unsubscribe()
		return nil
	}
	select {
	case <-sub.Done():
		// Failed on its first read; deliver already reported it.
	default:
		c.subscriptions[channel] = sub
	}
	return nil
}

func (c *WSClient) open(channel string) (*docstore.Subscription, error) {
	client := c.hub.client
	switch {
	case channel == ChannelHomes:
		return client.Homes.SubscribeByParent(c.ctx, c.userID, func(homes []location.Home, err error) {
			c.deliver(channel, nonNil(homes), err)
		})
	case strings.HasPrefix(channel, ChannelRoomsPrefix):
		homeID := strings.TrimPrefix(channel, ChannelRoomsPrefix)
		if _, err := client.OwnedHome(c.ctx, c.userID, homeID); err != nil {
			return nil, fmt.Errorf("home not found: %s", homeID)
		}
		return client.Rooms.SubscribeByParent(c.ctx, homeID, func(rooms []location.Room, err error) {
			c.deliver(channel, nonNil(rooms), err)
		})
	case strings.HasPrefix(channel, ChannelDevicesPrefix):
		roomID := strings.TrimPrefix(channel, ChannelDevicesPrefix)
		if _, err := client.OwnedRoom(c.ctx, c.userID, roomID); err != nil {
			return nil, fmt.Errorf("room not found: %s", roomID)
		}
		return client.Devices.SubscribeByParent(c.ctx, roomID, func(devices []device.Device, err error) {
			c.deliver(channel, nonNil(devices), err)
		})
	default:
		return nil, fmt.Errorf("unknown channel: %s", channel)
	}
}

// deliver pushes a snapshot. A subscription error is terminal: the channel
// is dropped so the client can subscribe again.
func (c *WSClient) deliver(channel string, items any, err error) {
	if err != nil {
		c.mu.Lock()
		delete(c.subscriptions, channel)
		c.mu.Unlock()
		c.hub.logger.Warn("websocket subscription failed", "channel", channel, "error", err)
		c.sendError("", channel, "subscription failed")
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: WSEventSnapshot,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   items,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal snapshot", "channel", channel, "error", err)
		return
	}
	c.queueSnapshot(channel, data)
}

// queueSnapshot replaces the channel's unwritten snapshot, if any, and wakes
// the writer.
func (c *WSClient) queueSnapshot(channel string, data []byte) {
	c.mu.Lock()
	if _, queued := c.pending[channel]; !queued {
		c.pendingOrder = append(c.pendingOrder, channel)
	}
	c.pending[channel] = data
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// takePending returns the unwritten snapshots in the order their channels
// first became pending, and clears them.
func (c *WSClient) takePending() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, 0, len(c.pendingOrder))
	for _, ch := range c.pendingOrder {
		out = append(out, c.pending[ch])
		delete(c.pending, ch)
	}
	c.pendingOrder = c.pendingOrder[:0]
	return out
}

func (c *WSClient) dropPendingLocked(channel string) {
	if _, queued := c.pending[channel]; !queued {
		return
	}
	delete(c.pending, channel)
	c.pendingOrder = slices.DeleteFunc(c.pendingOrder, func(ch string) bool { return ch == channel })
}

// release ends every subscription.
func (c *WSClient) release() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch, sub := range c.subscriptions {
		sub.Unsubscribe()
		delete(c.subscriptions, ch)
	}
}

// trySend queues a response or error for the writer. It absorbs sends on a
// closed channel (client disconnected) and drops the message when the
// buffer is full; snapshots never go through here.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket send buffer full, dropping message")
	}
}

// sendResponse sends a response message to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, channel, message string) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeError,
		ID:        id,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   map[string]string{"message": message},
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
