package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"battleship-backend/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

var DefaultSocketSettings = SocketSettings{
	WriteWait:      writeWait,
	PongWait:       pongWait,
	MaxMessageSize: maxMessageSize,
}

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotJoined        = errors.New("connection has not joined yet")
)

func newClient(router Router, conn socket, settings SocketSettings, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	c := &Client{
		id:                  id,
		router:              router,
		webSocketConnection: conn,
		settings:            settings,
		logger:              logger.With().Str("conn_id", id).Logger(),
		done:                make(chan struct{}),
	}
	c.running.Store(true)
	return c
}

// CreateNewSocketUser takes ownership of an accepted socket. The HELLO frame
// is written before the read loop starts: the peer waits for it before it
// sends anything.
func CreateNewSocketUser(router Router, conn socket, settings SocketSettings, logger zerolog.Logger) (*Client, error) {
	c := newClient(router, conn, settings, logger)

	if err := c.Send(protocol.Hello{Version: protocol.Version, ConnID: c.id}); err != nil {
		c.Close()
		return nil, fmt.Errorf("write hello: %w", err)
	}
	c.log().Debug().Msg("connection accepted")

	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Client) ID() string { return c.id }

func (c *Client) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Client) GameID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameID
}

func (c *Client) ChatID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chatID
}

func (c *Client) log() *zerolog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.logger
	return &l
}

// bind attaches the identity learned from the join handshake and marks the
// connection joined. Routers call it right before registering the client.
func (c *Client) bind(playerID, gameID, chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.joined = true
	c.playerID = playerID
	c.gameID = gameID
	c.chatID = chatID
	ctx := c.logger.With().Str("player_id", playerID)
	if gameID != "" {
		ctx = ctx.Str("game_id", gameID)
	}
	if chatID != "" {
		ctx = ctx.Str("chat_id", chatID)
	}
	c.logger = ctx.Logger()
}

func (c *Client) hasJoined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

// IsConnected is false once the connection failed or was closed.
func (c *Client) IsConnected() bool {
	if !c.running.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.sendRaw(data)
}

// sendRaw writes one frame. A failed write means the peer is gone, so the
// connection is torn down.
func (c *Client) sendRaw(data []byte) error {
	c.writeMu.Lock()
	if !c.IsConnected() {
		c.writeMu.Unlock()
		return ErrConnectionClosed
	}
	_ = c.webSocketConnection.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
	err := c.webSocketConnection.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.log().Info().Err(err).Msg("write failed")
		c.Close()
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { unRegisterAndCloseConnection(c) })
}

// unRegisterAndCloseConnection stops the input side, leaves the registry,
// then closes the output side and the socket. Close errors are only logged.
func unRegisterAndCloseConnection(c *Client) {
	c.running.Store(false)
	close(c.done)

	if c.hasJoined() {
		c.router.Leave(c)
	}

	c.writeMu.Lock()
	_ = c.webSocketConnection.SetWriteDeadline(time.Now().Add(time.Second))
	err := c.webSocketConnection.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log().Debug().Err(err).Msg("close frame not sent")
	}

	if err := c.webSocketConnection.Close(); err != nil {
		c.log().Debug().Err(err).Msg("socket close failed")
	}
	c.log().Info().Msg("connection closed")
}

func setSocketPayloadReadConfig(c *Client) {
	c.webSocketConnection.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.webSocketConnection.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.webSocketConnection.SetPongHandler(func(string) error {
		return c.webSocketConnection.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})
}

// readPump is the only reader of the socket, so messages from one
// connection are handled strictly in arrival order.
func (c *Client) readPump() {
	defer c.Close()

	setSocketPayloadReadConfig(c)

	for {
		messageType, payload, err := c.webSocketConnection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log().Warn().Err(err).Msg("unexpected close")
			} else {
				c.log().Debug().Err(err).Msg("read loop finished")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log().Warn().Int("frame_type", messageType).Msg("non-text frame dropped")
			continue
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			c.log().Warn().Err(err).Msg("protocol error, frame dropped")
			continue
		}
		handleSocketPayloadEvents(c, msg)
	}
}

func handleSocketPayloadEvents(c *Client, msg protocol.Message) {
	if c.hasJoined() {
		c.router.Dispatch(c, msg)
		return
	}

	if err := c.router.Join(c, msg); err != nil {
		c.log().Warn().Err(err).Str("type", string(msg.Type())).Msg("message before join dropped")
	}
}

// writePump keeps the peer's read deadline fresh. Frames themselves are
// written by sendRaw under writeMu.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.webSocketConnection.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			err := c.webSocketConnection.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.log().Info().Err(err).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}
