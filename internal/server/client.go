package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// Client is one live websocket connection.
type Client struct {
	id         string
	userId     string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        zerolog.Logger
	send       chan *ServerMessage
	// rooms and peerIds are owned by the ChatServer run loop.
	rooms    map[string]struct{}
	peerIds  map[string]struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewClient wraps conn. userId is the authenticated user and may be empty
// for anonymous connections.
func NewClient(id, userId string, conn *websocket.Conn, cs *ChatServer, l zerolog.Logger) *Client {
	return &Client{
		id:         id,
		userId:     userId,
		conn:       conn,
		chatServer: cs,
		log:        l.With().Str("conn_id", id).Str("user_id", userId).Logger(),
		send:       make(chan *ServerMessage, sendQueueSize),
		rooms:      make(map[string]struct{}),
		peerIds:    make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) UserId() string {
	return c.userId
}

// identity names the client when an event does not: the authenticated user,
// or the connection id for anonymous clients.
func (c *Client) identity() string {
	if c.userId != "" {
		return c.userId
	}
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Str("event", msg.Event).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.chatServer.Unregister(c)
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		if msgType != websocket.TextMessage {
			c.log.Warn().Int("type", msgType).Msg("dropping non-text frame")
			continue
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed event")
			continue
		}

		c.chatServer.dispatch(c, ev)
	}
}

// Greet queues the connected frame announcing c's connection id. Call it
// before registering c so the frame precedes any routed event.
func (c *Client) Greet() bool {
	return c.queueMessage(NewConnected(c.id, c.userId))
}

// queueMessage never blocks; a full send queue drops msg for this client only.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("event", msg.Event).Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}
