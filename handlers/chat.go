package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"battleship-backend/auth"
	"battleship-backend/protocol"
)

const verifyTimeout = 2 * time.Second

var ErrMissingRoom = errors.New("join names no chat room")

type chatRoom struct {
	observers []*Client
}

// ChatHub relays chat messages between the connections of a room. Rooms
// exist while they have at least one observer.
type ChatHub struct {
	mu       sync.RWMutex
	sessions map[string]*chatRoom

	verifier auth.Verifier
	logger   zerolog.Logger
}

var _ Router = (*ChatHub)(nil)

func NewChatHub(verifier auth.Verifier, logger zerolog.Logger) *ChatHub {
	return &ChatHub{
		sessions: make(map[string]*chatRoom),
		verifier: verifier,
		logger:   logger.With().Str("component", "chat-hub").Logger(),
	}
}

// CreateSession makes an empty room if it does not exist yet.
func (hub *ChatHub) CreateSession(chatID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, ok := hub.sessions[chatID]; !ok {
		hub.sessions[chatID] = &chatRoom{}
		hub.logger.Info().Str("chat_id", chatID).Msg("chat session created")
	}
}

func (hub *ChatHub) AddClientToSession(chatID string, c *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	room, ok := hub.sessions[chatID]
	if !ok {
		room = &chatRoom{}
		hub.sessions[chatID] = room
	}
	for _, o := range room.observers {
		if o == c {
			return
		}
	}
	room.observers = append(room.observers, c)
}

// RemoveClientFromSession detaches c and drops the room once it is empty.
func (hub *ChatHub) RemoveClientFromSession(chatID string, c *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	room, ok := hub.sessions[chatID]
	if !ok {
		return
	}
	for i, o := range room.observers {
		if o == c {
			room.observers = append(room.observers[:i], room.observers[i+1:]...)
			break
		}
	}
	if len(room.observers) == 0 {
		delete(hub.sessions, chatID)
		hub.logger.Info().Str("chat_id", chatID).Msg("chat session removed")
	}
}

// Broadcast sends msg to every observer of the room, sender included. Each
// observer gets its own writer so a stalled socket only delays itself.
func (hub *ChatHub) Broadcast(chatID string, msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		hub.logger.Error().Err(err).Msg("encode chat message")
		return
	}

	hub.mu.RLock()
	var observers []*Client
	if room, ok := hub.sessions[chatID]; ok {
		observers = append(observers, room.observers...)
	}
	hub.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range observers {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := c.sendRaw(data); err != nil {
				hub.logger.Debug().Err(err).Str("conn_id", c.ID()).Msg("chat send failed")
			}
		}(c)
	}
	wg.Wait()
}

func (hub *ChatHub) Stats() (sessions, observers int) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, room := range hub.sessions {
		observers += len(room.observers)
	}
	return len(hub.sessions), observers
}

func (hub *ChatHub) Close() {
	hub.mu.RLock()
	var all []*Client
	for _, room := range hub.sessions {
		all = append(all, room.observers...)
	}
	hub.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
}

func (hub *ChatHub) verify(token string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()
	return hub.verifier.Verify(ctx, token)
}

// Join handles the /join handshake. The room's access password is checked
// by whoever issues the token, not here.
func (hub *ChatHub) Join(c *Client, msg protocol.Message) error {
	cm, ok := msg.(*protocol.ClientMessage)
	if !ok || !cm.IsJoin() {
		return ErrNotJoined
	}
	chatID := cm.Room()
	if chatID == "" {
		return ErrMissingRoom
	}
	userID, err := hub.verify(cm.Token)
	if err != nil {
		return err
	}

	c.bind(userID, "", chatID)
	hub.CreateSession(chatID)
	hub.AddClientToSession(chatID, c)
	c.log().Info().Msg("joined chat")
	return nil
}

// Dispatch relays a chat message to the connection's room. The sender id
// comes from the token, never from the payload.
func (hub *ChatHub) Dispatch(c *Client, msg protocol.Message) {
	cm, ok := msg.(*protocol.ClientMessage)
	if !ok {
		c.log().Warn().Str("type", string(msg.Type())).Msg("unsupported on the chat port")
		return
	}
	if cm.IsJoin() {
		c.log().Debug().Msg("already joined, repeated join ignored")
		return
	}

	senderID, err := hub.verify(cm.Token)
	if err != nil {
		c.log().Warn().Err(err).Msg("chat message dropped")
		return
	}

	chatID := c.ChatID()
	hub.Broadcast(chatID, protocol.ServerMessage{
		MessageID: uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   cm.Content,
		Timestamp: time.Now().UTC(),
	})
}

func (hub *ChatHub) Leave(c *Client) {
	hub.RemoveClientFromSession(c.ChatID(), c)
}
