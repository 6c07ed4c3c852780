package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Version is the schema version carried in every envelope.
const Version = 1

var (
	ErrMalformed          = errors.New("malformed frame")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrUnknownType        = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// Envelope is the frame layout: {"v":1,"type":"TAKE_SHOT","payload":{...}}.
type Envelope struct {
	Version int             `json:"v"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var validate = validator.New()

// inbound maps every type a client may send to a constructor for its payload.
var inbound = map[Type]func() Message{
	TypeJoinGame:      func() Message { return &JoinGame{} },
	TypePlaceShip:     func() Message { return &PlaceShip{} },
	TypePlayerReady:   func() Message { return &PlayerReady{} },
	TypeTakeShot:      func() Message { return &TakeShot{} },
	TypeLeaveGame:     func() Message { return &LeaveGame{} },
	TypeClientMessage: func() Message { return &ClientMessage{} },
}

// Decode parses one inbound frame into its variant. Every error it returns
// is a protocol error: the frame should be dropped, the stream is intact.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	newMsg, ok := inbound[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	msg := newMsg()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return msg, nil
}

func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{
		Version: Version,
		Type:    msg.Type(),
		Payload: payload,
	})
}
