package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/CzarSimon/httputil/id"
	"github.com/gorilla/websocket"
	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/rtcheap/session-broker/internal/models"
	"go.uber.org/zap"
)

const sendBufferSize = 16

type client struct {
	id   string
	send chan []byte
}

// channel set of websocket clients following one session.
type channel struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func (ch *channel) join() *client {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	c := &client{
		id:   id.New(),
		send: make(chan []byte, sendBufferSize),
	}

	ch.clients[c.id] = c
	return c
}

func (ch *channel) leave(c *client) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	_, ok := ch.clients[c.id]
	if !ok {
		return
	}

	delete(ch.clients, c.id)
	close(c.send)
}

func (ch *channel) size() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	return len(ch.clients)
}

// WebsocketHandler relayer of websocket messages.
type WebsocketHandler struct {
	upgrader *websocket.Upgrader
	mu       sync.RWMutex
	channels map[string]*channel
}

// NewWebsocketHandler creates a new WebsocketHandler.
func NewWebsocketHandler() *WebsocketHandler {
	return &WebsocketHandler{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mu:       sync.RWMutex{},
		channels: make(map[string]*channel),
	}
}

// Connect upgrades the request and subscribes the connection to messages of a session.
func (h *WebsocketHandler) Connect(ctx context.Context, sessionID string, r *http.Request, w http.ResponseWriter) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "service_websocket_handler_connect")
	defer span.Finish()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		err = fmt.Errorf("failed to upgrade connetion to a websocket %w", err)
		span.LogFields(tracelog.Error(err))
		return err
	}

	ch, c := h.join(sessionID)

	go registerSocketReciever(c, ws)
	go h.registerSocketReader(sessionID, ch, c, ws)
	return nil
}

// Send sends a message to all clients connected to the channel of the message's session.
// Sending to a session without listeners is not an error.
func (h *WebsocketHandler) Send(ctx context.Context, message models.Message) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "service_websocket_handler_send")
	defer span.Finish()

	ch, ok := h.findChannel(message.SessionID)
	if !ok {
		return 0, nil
	}

	sent, err := sendToChannel(ctx, ch, message)
	if err != nil {
		span.LogFields(tracelog.Error(err))
		return 0, err
	}

	return sent, nil
}

// Listeners returns the number of connections following a session.
func (h *WebsocketHandler) Listeners(sessionID string) int {
	ch, ok := h.findChannel(sessionID)
	if !ok {
		return 0
	}

	return ch.size()
}

func sendToChannel(ctx context.Context, ch *channel, message models.Message) (int, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "service_send_to_channel")
	defer span.Finish()

	data, err := json.Marshal(message)
	if err != nil {
		err = fmt.Errorf("failed to serialize json %w", err)
		span.LogFields(tracelog.Error(err))
		return 0, err
	}

	sent := 0
	ch.mu.RLock()
	for _, client := range ch.clients {
		select {
		case client.send <- data:
			sent++
		default:
			log.Warn("dropping message for slow websocket client", zap.String("clientId", client.id))
		}
	}
	ch.mu.RUnlock()

	return sent, nil
}

func (h *WebsocketHandler) findChannel(chanID string) (*channel, bool) {
	h.mu.RLock()
	ch, ok := h.channels[chanID]
	h.mu.RUnlock()

	return ch, ok
}

// join adds a client to the channel of a session, creating the channel if needed.
// Holding h.mu keeps a concurrent leave from removing the channel in between.
func (h *WebsocketHandler) join(chanID string) (*channel, *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[chanID]
	if !ok {
		ch = &channel{
			mu:      sync.RWMutex{},
			clients: make(map[string]*client),
		}
		h.channels[chanID] = ch
	}

	return ch, ch.join()
}

// leave removes a client and drops the channel once its last client is gone.
func (h *WebsocketHandler) leave(chanID string, ch *channel, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch.leave(c)
	if ch.size() == 0 && h.channels[chanID] == ch {
		delete(h.channels, chanID)
	}
}

func registerSocketReciever(c *client, ws *websocket.Conn) {
	for data := range c.send {
		writeMessage(ws, websocket.TextMessage, data)
	}

	closeSocket(ws)
}

// registerSocketReader drains the socket so close frames are processed and leaves the channel once the peer is gone.
func (h *WebsocketHandler) registerSocketReader(chanID string, ch *channel, c *client, ws *websocket.Conn) {
	defer h.leave(chanID, ch, c)
	for {
		_, _, err := ws.ReadMessage()
		if err != nil {
			return
		}
	}
}

func closeSocket(ws *websocket.Conn) {
	writeMessage(ws, websocket.CloseMessage, []byte{})
	err := ws.Close()
	if err != nil {
		log.Warn("failed to close websocked connection", zap.Error(err))
	}
}

func writeMessage(ws *websocket.Conn, messageType int, data []byte) {
	err := ws.WriteMessage(messageType, data)
	if err != nil {
		log.Warn("failed to send message", zap.Error(err))
	}
}
