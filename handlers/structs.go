package handlers

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"battleship-backend/protocol"
)

// socket is the part of *websocket.Conn a Client needs.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Router owns the registry a connection joins. Join is called for every
// message until it succeeds; afterwards messages go to Dispatch. Leave is
// called once from the connection's cleanup.
type Router interface {
	Join(c *Client, msg protocol.Message) error
	Dispatch(c *Client, msg protocol.Message)
	Leave(c *Client)
}

type SocketSettings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (s SocketSettings) pingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// Client is one accepted websocket. Reads happen only on its readPump
// goroutine; writes from any goroutine are serialized by writeMu.
type Client struct {
	id                  string
	router              Router
	webSocketConnection socket
	settings            SocketSettings

	writeMu sync.Mutex

	mu       sync.RWMutex
	logger   zerolog.Logger
	joined   bool
	playerID string
	gameID   string
	chatID   string

	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}
