package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
)

const (
	MessageTypeSession    = "session"
	MessageTypeCompletion = "completion"
)

type WsMessage struct {
	Type       string             `json:"type"`
	Session    *domain.Snapshot   `json:"session,omitempty"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

func (m WsMessage) userID() string {
	switch {
	case m.Session != nil:
		return m.Session.UserID
	case m.Completion != nil:
		return m.Completion.UserID
	default:
		return ""
	}
}

// WsHub fans session updates out to every connection of the owning user.
type WsHub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]bool
	Broadcast  chan WsMessage
	Register   chan *Client
	Unregister chan *Client
	Logger     zerolog.Logger
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		clients:    make(map[string]map[*Client]bool),
		Broadcast:  make(chan WsMessage, 256),
		Register:   make(chan *Client, 100),
		Unregister: make(chan *Client, 100),
		Logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *WsHub) Run(ctx context.Context) error {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.UserID()] == nil {
				h.clients[client.UserID()] = make(map[*Client]bool)
			}
			h.clients[client.UserID()][client] = true
			count := len(h.clients[client.UserID()])
			h.mu.Unlock()

			h.Logger.Info().
				Str("user_id", client.UserID()).
				Int("connection_count", count).
				Msg("WebSocket client registered successfully")

		case client := <-h.Unregister:
			h.remove(client)

		case message := <-h.Broadcast:
			h.deliver(message)
		}
	}
}

func (h *WsHub) deliver(message WsMessage) {
	userID := message.userID()
	if userID == "" {
		h.Logger.Warn().Str("type", message.Type).Msg("Dropping message without user")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.Logger.Debug().Str("user_id", userID).Str("type", message.Type).Msg("No clients found for broadcast")
		return
	}

	for _, client := range targets {
		if err := client.Send(message); err == ErrClientInactive {
			h.remove(client)
		}
	}
}

func (h *WsHub) remove(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.UserID()]
	if ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.UserID())
		}
	}
	count := len(clients)
	h.mu.Unlock()

	client.Close()
	if ok {
		h.Logger.Info().
			Str("user_id", client.UserID()).
			Int("connection_count", count).
			Msg("WebSocket client unregistered")
	}
}

func (h *WsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, userID)
	}
}

// ClientCount reports the live connections of a user.
func (h *WsHub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// SessionUpdated implements interfaces.SessionNotifier. It never blocks the caller.
func (h *WsHub) SessionUpdated(snapshot domain.Snapshot) {
	h.enqueue(WsMessage{Type: MessageTypeSession, Session: &snapshot})
}

// SessionCompleted implements interfaces.SessionNotifier. It never blocks the caller.
func (h *WsHub) SessionCompleted(completion domain.Completion) {
	h.Logger.Info().
		Str("session_id", completion.SessionID).
		Str("user_id", completion.UserID).
		Msg("Preparing to broadcast completion")
	h.enqueue(WsMessage{Type: MessageTypeCompletion, Completion: &completion})
}

func (h *WsHub) enqueue(message WsMessage) {
	select {
	case h.Broadcast <- message:
	default:
		h.Logger.Warn().Str("type", message.Type).Str("user_id", message.userID()).Msg("Broadcast queue full, dropping message")
	}
}
