package protocol

import (
	"strings"
	"time"

	"battleship-backend/battleship"
)

type Type string

const (
	TypeHello         Type = "HELLO"
	TypeJoinGame      Type = "JOIN_GAME"
	TypePlaceShip     Type = "PLACE_SHIP"
	TypePlayerReady   Type = "PLAYER_READY"
	TypeTakeShot      Type = "TAKE_SHOT"
	TypeLeaveGame     Type = "LEAVE_GAME"
	TypeGameUpdate    Type = "GAME_UPDATE"
	TypeShotResult    Type = "SHOT_RESULT"
	TypeShipSunk      Type = "SHIP_SUNK"
	TypeError         Type = "ERROR"
	TypeClientMessage Type = "CLIENT_MESSAGE"
	TypeServerMessage Type = "SERVER_MESSAGE"
)

// Message is one variant of the wire protocol. The concrete type is selected
// by the envelope's type tag.
type Message interface {
	Type() Type
}

// Hello is the first frame the server writes on every connection, before it
// reads anything from the peer.
type Hello struct {
	Version int    `json:"version"`
	ConnID  string `json:"connId"`
}

type JoinGame struct {
	PlayerID string `json:"playerId" validate:"required"`
	GameID   string `json:"gameId" validate:"required"`
	ChatID   string `json:"chatId,omitempty"`
}

type PlaceShip struct {
	PlayerID   string              `json:"playerId" validate:"required"`
	GameID     string              `json:"gameId" validate:"required"`
	ShipType   battleship.ShipType `json:"shipType" validate:"required,oneof=CARRIER BATTLESHIP CRUISER SUBMARINE DESTROYER"`
	X          int                 `json:"x"`
	Y          int                 `json:"y"`
	Horizontal bool                `json:"horizontal"`
}

type PlayerReady struct {
	PlayerID string `json:"playerId" validate:"required"`
	GameID   string `json:"gameId" validate:"required"`
}

// TakeShot coordinates are not range-checked here; an off-board shot is a
// rules outcome (INVALID), not a protocol error.
type TakeShot struct {
	PlayerID string `json:"playerId" validate:"required"`
	GameID   string `json:"gameId" validate:"required"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type LeaveGame struct {
	PlayerID string `json:"playerId" validate:"required"`
	GameID   string `json:"gameId" validate:"required"`
}

type GameUpdate struct {
	battleship.Snapshot
}

type ShotResult struct {
	ShooterID string                `json:"shooterId"`
	GameID    string                `json:"gameId"`
	Result    battleship.ShotResult `json:"result"`
	X         int                   `json:"x"`
	Y         int                   `json:"y"`
}

type ShipSunk struct {
	ShooterID string             `json:"shooterId"`
	GameID    string             `json:"gameId"`
	Positions []battleship.Coord `json:"positions"`
}

type Error struct {
	Message string `json:"message"`
}

const joinCommand = "/join"

// ClientMessage is the only inbound chat frame. Content starting with /join
// is the join handshake; anything else is relayed to the room.
type ClientMessage struct {
	Content string `json:"content" validate:"required"`
	ChatID  string `json:"chatId,omitempty"`
	Token   string `json:"token" validate:"required"`
}

func (m ClientMessage) IsJoin() bool {
	return strings.HasPrefix(strings.TrimSpace(m.Content), joinCommand)
}

// Room returns the room a join targets: the chatId field, or the argument
// after /join when chatId is empty.
func (m ClientMessage) Room() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	arg := strings.TrimPrefix(strings.TrimSpace(m.Content), joinCommand)
	return strings.TrimSpace(arg)
}

type ServerMessage struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (Hello) Type() Type         { return TypeHello }
func (JoinGame) Type() Type      { return TypeJoinGame }
func (PlaceShip) Type() Type     { return TypePlaceShip }
func (PlayerReady) Type() Type   { return TypePlayerReady }
func (TakeShot) Type() Type      { return TypeTakeShot }
func (LeaveGame) Type() Type     { return TypeLeaveGame }
func (GameUpdate) Type() Type    { return TypeGameUpdate }
func (ShotResult) Type() Type    { return TypeShotResult }
func (ShipSunk) Type() Type      { return TypeShipSunk }
func (Error) Type() Type         { return TypeError }
func (ClientMessage) Type() Type { return TypeClientMessage }
func (ServerMessage) Type() Type { return TypeServerMessage }
