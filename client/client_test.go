package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/wire"
)

var board = strings.Repeat("123456789", 9)

// respondFunc answers one request on the server side of the test.
type respondFunc func(conn *wire.Conn, msg protocol.Message)

// fakeServer accepts a single connection and answers requests with respond.
func fakeServer(t *testing.T, respond respondFunc) (port int, serverConn <-chan *wire.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var mu sync.Mutex
	var accepted *wire.Conn
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		if accepted != nil {
			_ = accepted.Close()
		}
	})

	conns := make(chan *wire.Conn, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		conn := wire.New(raw, time.Second, logger.NewNopLogger())
		mu.Lock()
		accepted = conn
		mu.Unlock()
		conns <- conn

		for {
			msg, err := conn.Receive()
			if err != nil {
				return
			}
			respond(conn, msg)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, conns
}

func newClient(t *testing.T, port int) (*Client, *stateLog) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Port = port
	cfg.PollInterval = 10 * time.Millisecond

	c := New(cfg, logger.NewNopLogger())
	states := &stateLog{}
	c.OnStateChange(states.record)
	t.Cleanup(func() { _ = c.Close() })
	return c, states
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(ev StateEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, ev.State)
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func lobbyServer(conn *wire.Conn, msg protocol.Message) {
	switch msg.Tag {
	case protocol.TagNickname:
		if msg.Payload == "taken" {
			conn.Send(protocol.TagNotOK, "Name in use")
			return
		}
		conn.Send(protocol.TagNotify, "No sessions available. Create one!")
		conn.Send(protocol.TagSessionsList, "No sessions available. Create one!")
	case protocol.TagJoinNew:
		conn.Send(protocol.TagNotify, "alice joined game\nPlayer numbers 1/2")
		conn.Send(protocol.TagWaiting, "")
	case protocol.TagJoinExisting:
		if msg.Payload == "full" {
			conn.Send(protocol.TagNotOK, "Session full")
			return
		}
		conn.Send(protocol.TagTable, board)
	case protocol.TagPutNumber:
		conn.Send(protocol.TagNotify, "Scores: alice 1")
		conn.Send(protocol.TagMoveResult, "Correct")
	}
}

func TestClient_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("approved name reaches the lobby", func(t *testing.T) {
		port, _ := fakeServer(t, lobbyServer)
		c, states := newClient(t, port)

		require.NoError(t, c.SetName("alice"))
		assert.Equal(t, NotConnected, c.State())

		listing, err := c.Connect(ctx, "127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "No sessions available. Create one!", listing)
		assert.Equal(t, NeedSession, c.State())
		assert.Equal(t, []State{NotConnected, NeedSession}, states.all())

		note, err := c.NextNotification()
		require.NoError(t, err)
		assert.Equal(t, protocol.TagNotify, note.Tag)
	})

	t.Run("refused name can be retried", func(t *testing.T) {
		port, _ := fakeServer(t, lobbyServer)
		c, _ := newClient(t, port)

		require.NoError(t, c.SetName("taken"))
		_, err := c.Connect(ctx, "127.0.0.1")

		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "Name in use", rejected.Reason)
		assert.Equal(t, RefusedName, c.State())

		require.NoError(t, c.SetName("bob"))
		assert.Equal(t, RefusedName, c.State())
		_, err = c.Login(ctx)
		require.NoError(t, err)
		assert.Equal(t, NeedSession, c.State())
		assert.Equal(t, "bob", c.Nickname())
	})

	t.Run("invalid names never leave the client", func(t *testing.T) {
		c, _ := newClient(t, 1)
		assert.ErrorIs(t, c.SetName(""), ErrInvalidName)
		assert.ErrorIs(t, c.SetName("waytoolong"), ErrInvalidName)
		assert.ErrorIs(t, c.SetName("a|b"), ErrInvalidName)
		assert.Equal(t, NeedName, c.State())
	})

	t.Run("connect before naming", func(t *testing.T) {
		c, _ := newClient(t, 1)
		_, err := c.Connect(ctx, "127.0.0.1")
		assert.ErrorIs(t, err, ErrWrongState)
	})
}

func loggedIn(t *testing.T, respond respondFunc) (*Client, *stateLog, <-chan *wire.Conn) {
	t.Helper()
	port, conns := fakeServer(t, respond)
	c, states := newClient(t, port)
	require.NoError(t, c.SetName("alice"))
	_, err := c.Connect(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	return c, states, conns
}

func TestClient_Sessions(t *testing.T) {
	ctx := context.Background()

	t.Run("create then wait for the table", func(t *testing.T) {
		c, _, conns := loggedIn(t, lobbyServer)
		server := <-conns

		started, err := c.CreateSession(ctx, "S1", 2)
		require.NoError(t, err)
		assert.False(t, started)
		assert.Equal(t, WaitForPlayers, c.State())

		go func() {
			time.Sleep(30 * time.Millisecond)
			server.Send(protocol.TagNotify, "bob joined game\nPlayer numbers 2/2")
			server.Send(protocol.TagTable, board)
		}()

		got, err := c.WaitForPlayers(ctx)
		require.NoError(t, err)
		assert.Equal(t, board, got)
		assert.Equal(t, NeedMove, c.State())
		assert.Equal(t, board, c.Board())
	})

	t.Run("join that fills the session starts it", func(t *testing.T) {
		c, _, _ := loggedIn(t, lobbyServer)

		started, err := c.JoinSession(ctx, "S1")
		require.NoError(t, err)
		assert.True(t, started)
		assert.Equal(t, NeedMove, c.State())
		assert.Equal(t, board, c.Board())

		result, err := c.PutNumber(ctx, "213")
		require.NoError(t, err)
		assert.Equal(t, "Correct", result)
	})

	t.Run("rejected join stays in the lobby", func(t *testing.T) {
		c, _, _ := loggedIn(t, lobbyServer)

		_, err := c.JoinSession(ctx, "full")
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "Session full", rejected.Reason)
		assert.Equal(t, NeedSession, c.State())
	})

	t.Run("local validation", func(t *testing.T) {
		c, _, _ := loggedIn(t, lobbyServer)

		_, err := c.CreateSession(ctx, "S1", 1)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
		_, err = c.CreateSession(ctx, "bad name", 2)
		assert.ErrorIs(t, err, ErrInvalidName)
		_, err = c.PutNumber(ctx, "213")
		assert.ErrorIs(t, err, ErrWrongState)
		_, err = c.PutNumber(ctx, "203")
		assert.ErrorIs(t, err, ErrInvalidMove)
	})
}

func TestClient_GameOverPush(t *testing.T) {
	ctx := context.Background()
	c, states, conns := loggedIn(t, lobbyServer)
	server := <-conns

	_, err := c.CreateSession(ctx, "S1", 2)
	require.NoError(t, err)

	server.Send(protocol.TagGameOver, "Too few players. Winner(s): alice - 0 points")

	_, err = c.WaitForPlayers(ctx)
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, NeedSession, c.State())
	assert.Equal(t, []State{NotConnected, NeedSession, WaitForPlayers, NeedSession}, states.all())

	var got protocol.Message
	for got.Tag != protocol.TagGameOver {
		got, err = c.NextNotification()
		require.NoError(t, err)
	}
	assert.Contains(t, got.Payload, "Winner(s): alice")
}

func TestClient_BoardNotificationUpdatesBoard(t *testing.T) {
	c, _, conns := loggedIn(t, lobbyServer)
	server := <-conns

	updated := strings.Repeat("987654321", 9)
	server.Send(protocol.TagNotify, BoardPrefix+updated)

	assert.Eventually(t, func() bool { return c.Board() == updated }, time.Second, 5*time.Millisecond)
}

func TestClient_CloseReleasesWaiters(t *testing.T) {
	c, _, _ := loggedIn(t, lobbyServer)
	_, err := c.CreateSession(context.Background(), "S1", 2)
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() {
		for {
			if _, err := c.NextNotification(); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		_, err := c.WaitForPlayers(context.Background())
		errs <- err
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, c.Close())
	assert.Equal(t, Closed, c.State())

	for range 2 {
		select {
		case err := <-errs:
			assert.True(t, errors.Is(err, ErrClosed) || errors.Is(err, ErrWrongState), err)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter was not released")
		}
	}

	assert.NoError(t, c.Close())
}

func TestClient_ServerGoneFailsRequests(t *testing.T) {
	c, _, conns := loggedIn(t, lobbyServer)
	server := <-conns
	require.NoError(t, server.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.JoinSession(ctx, "S1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestValidMove(t *testing.T) {
	assert.True(t, ValidMove("213"))
	assert.True(t, ValidMove("999"))
	assert.False(t, ValidMove("21"))
	assert.False(t, ValidMove("2134"))
	assert.False(t, ValidMove("013"))
	assert.False(t, ValidMove("2a3"))
}
