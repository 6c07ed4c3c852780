package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battleship-backend/protocol"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeSocket feeds frames pushed on in to ReadMessage and records every text
// frame written to it.
type fakeSocket struct {
	in chan []byte

	mu         sync.Mutex
	writes     [][]byte
	failWrites bool
	closed     bool
	closeCh    chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-s.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-s.closeCh:
		return 0, nil, io.EOF
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.failWrites {
		return errBrokenPipe
	}
	if messageType == websocket.TextMessage {
		s.writes = append(s.writes, append([]byte(nil), data...))
	}
	return nil
}

func (s *fakeSocket) SetReadLimit(int64)                {}
func (s *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error  { return nil }
func (s *fakeSocket) SetPongHandler(func(string) error) {}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) breakWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = true
}

// frames decodes everything written so far.
func (s *fakeSocket) frames(t *testing.T) []protocol.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Envelope, 0, len(s.writes))
	for _, w := range s.writes {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(w, &env))
		out = append(out, env)
	}
	return out
}

func (s *fakeSocket) types(t *testing.T) []protocol.Type {
	t.Helper()
	var out []protocol.Type
	for _, env := range s.frames(t) {
		out = append(out, env.Type)
	}
	return out
}

func (s *fakeSocket) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

func (s *fakeSocket) push(t *testing.T, msg protocol.Message) {
	t.Helper()
	s.in <- frame(t, msg)
}

func frame(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	return data
}

func decodePayload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

type recordingRouter struct {
	mu         sync.Mutex
	joined     []protocol.Message
	dispatched []protocol.Message
	leaves     int
}

func (r *recordingRouter) Join(c *Client, msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	join, ok := msg.(*protocol.JoinGame)
	if !ok {
		return ErrNotJoined
	}
	r.joined = append(r.joined, msg)
	c.bind(join.PlayerID, join.GameID, "")
	return nil
}

func (r *recordingRouter) Dispatch(_ *Client, msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = append(r.dispatched, msg)
}

func (r *recordingRouter) Leave(*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
}

func (r *recordingRouter) counts() (joined, dispatched, leaves int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joined), len(r.dispatched), r.leaves
}

func TestCreateNewSocketUser_HelloFirst(t *testing.T) {
	sock := newFakeSocket()
	router := &recordingRouter{}

	c, err := CreateNewSocketUser(router, sock, DefaultSocketSettings, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	frames := sock.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeHello, frames[0].Type)
	assert.Equal(t, protocol.Version, frames[0].Version)
	hello := decodePayload[protocol.Hello](t, frames[0])
	assert.Equal(t, c.ID(), hello.ConnID)
}

func TestCreateNewSocketUser_HelloFails(t *testing.T) {
	sock := newFakeSocket()
	sock.breakWrites()

	_, err := CreateNewSocketUser(&recordingRouter{}, sock, DefaultSocketSettings, zerolog.Nop())
	assert.Error(t, err)
	assert.True(t, sock.isClosed())
}

func TestClient_JoinThenDispatch(t *testing.T) {
	sock := newFakeSocket()
	router := &recordingRouter{}

	c, err := CreateNewSocketUser(router, sock, DefaultSocketSettings, zerolog.Nop())
	require.NoError(t, err)

	// dropped: nothing is joined yet
	sock.push(t, &protocol.TakeShot{PlayerID: "alice", GameID: "g1"})
	// malformed frames are dropped without closing
	sock.in <- []byte(`{"v":1,"type":"NOPE"}`)
	sock.in <- []byte(`not json`)
	sock.push(t, &protocol.JoinGame{PlayerID: "alice", GameID: "g1"})
	sock.push(t, &protocol.TakeShot{PlayerID: "alice", GameID: "g1", X: 1, Y: 2})

	require.Eventually(t, func() bool {
		_, dispatched, _ := router.counts()
		return dispatched == 1
	}, time.Second, 5*time.Millisecond)

	joined, _, _ := router.counts()
	assert.Equal(t, 1, joined)
	assert.Equal(t, "alice", c.PlayerID())
	assert.Equal(t, "g1", c.GameID())
	assert.True(t, c.IsConnected())

	close(sock.in)
	require.Eventually(t, func() bool { return !c.IsConnected() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, _, leaves := router.counts()
		return leaves == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, sock.isClosed, time.Second, 5*time.Millisecond)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	sock := newFakeSocket()
	router := &recordingRouter{}
	c := newClient(router, sock, DefaultSocketSettings, zerolog.Nop())
	c.bind("alice", "g1", "")

	c.Close()
	c.Close()

	_, _, leaves := router.counts()
	assert.Equal(t, 1, leaves)
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Send(protocol.Error{Message: "late"}), ErrConnectionClosed)
}

func TestClient_CloseBeforeJoinSkipsLeave(t *testing.T) {
	router := &recordingRouter{}
	c := newClient(router, newFakeSocket(), DefaultSocketSettings, zerolog.Nop())

	c.Close()

	_, _, leaves := router.counts()
	assert.Zero(t, leaves)
}

func TestClient_WriteFailureTearsDown(t *testing.T) {
	sock := newFakeSocket()
	router := &recordingRouter{}
	c := newClient(router, sock, DefaultSocketSettings, zerolog.Nop())
	c.bind("alice", "g1", "")

	sock.breakWrites()
	assert.Error(t, c.Send(protocol.Error{Message: "x"}))

	assert.False(t, c.IsConnected())
	_, _, leaves := router.counts()
	assert.Equal(t, 1, leaves)
	assert.True(t, sock.isClosed())
}

func TestClient_ConcurrentSendsDoNotInterleave(t *testing.T) {
	sock := newFakeSocket()
	c := newClient(&recordingRouter{}, sock, DefaultSocketSettings, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Send(protocol.Error{Message: "m"}))
		}()
	}
	wg.Wait()

	// every recorded frame must decode on its own
	assert.Len(t, sock.frames(t), 50)
}
