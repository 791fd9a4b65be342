package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var (
	ErrClientInactive = errors.New("client is inactive")
	ErrSendBufferFull = errors.New("send channel full")
)

// Client is one browser connection of a user.
type Client struct {
	id         string
	userID     string
	conn       *websocket.Conn
	send       chan WsMessage
	done       chan struct{}
	closeOnce  sync.Once
	pingPeriod time.Duration
	logger     zerolog.Logger
}

func NewClient(userID string, conn *websocket.Conn, pingPeriod time.Duration, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	return &Client{
		id:         id,
		userID:     userID,
		conn:       conn,
		send:       make(chan WsMessage, 64),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
		logger:     logger.With().Str("client_id", id).Str("user_id", userID).Logger(),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.userID }

// Send queues a message without blocking; a full buffer drops the message.
func (c *Client) Send(message WsMessage) error {
	select {
	case <-c.done:
		return ErrClientInactive
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrClientInactive
	default:
		c.logger.Warn().Str("type", message.Type).Msg("WebSocket client send channel full, dropping message")
		return ErrSendBufferFull
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump discards inbound messages and keeps the read deadline alive on pongs.
// It returns when the connection fails or the client is closed.
func (c *Client) ReadPump() {
	defer c.Close()

	pongWait := c.pingPeriod * 2
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("Unexpected WebSocket close error")
			}
			return
		}
	}
}

// WritePump writes queued messages as JSON and pings on the configured period.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error().Err(err).Str("type", message.Type).Msg("Failed to send WebSocket message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
