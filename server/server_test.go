package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sudokunet/client"
	"github.com/cyberinferno/sudokunet/config"
	"github.com/cyberinferno/sudokunet/game"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/sudoku"
	"github.com/cyberinferno/sudokunet/tcpserver"
)

const solvedText = "534678912" +
	"672195348" +
	"198342567" +
	"859761423" +
	"426853791" +
	"713924856" +
	"961537284" +
	"287419635" +
	"345286179"

// twoHoles opens (col 2,row 1)=3 and (col 6,row 3)=2.
func twoHoles() (*sudoku.Puzzle, error) {
	solution, err := sudoku.ParseGrid(solvedText)
	if err != nil {
		return nil, err
	}
	current := solution
	current[0][1] = 0
	current[2][5] = 0
	return sudoku.NewPuzzle(solution, current), nil
}

func startServer(t *testing.T) (*tcpserver.TCPServer, *game.Registry, int) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.WriteTimeout = time.Second

	log := logger.NewNopLogger()
	reg := game.NewRegistry(game.Options{Logger: log, NewPuzzle: twoHoles})
	srv := New("127.0.0.1", cfg, reg, log)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv, reg, srv.ListenAddr().(*net.TCPAddr).Port
}

// rawPeer speaks the wire format directly, bypassing client-side checks.
type rawPeer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialRaw(t *testing.T, port int) *rawPeer {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawPeer{conn: conn, reader: bufio.NewReader(conn)}
}

func (p *rawPeer) send(t *testing.T, raw string) {
	t.Helper()
	_, err := p.conn.Write([]byte(raw + string(protocol.Terminator)))
	require.NoError(t, err)
}

func (p *rawPeer) next(t *testing.T) protocol.Message {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := protocol.ReadFrame(p.reader)
	require.NoError(t, err)
	msg, err := protocol.Decode(frame)
	require.NoError(t, err)
	return msg
}

// reply skips pushes and returns the next reply-class message.
func (p *rawPeer) reply(t *testing.T) protocol.Message {
	t.Helper()
	for {
		msg := p.next(t)
		if msg.Tag.IsReply() {
			return msg
		}
	}
}

func TestHandler_ProtocolErrors(t *testing.T) {
	_, _, port := startServer(t)
	peer := dialRaw(t, port)

	tests := []struct {
		name   string
		frame  string
		reason string
	}{
		{"too short", "a", "received too short message"},
		{"unknown tag", "z:hello", "unknown control message"},
		{"extra field separator", "c:a|2|3", "received malformed message"},
		{"join before naming", "b:S1", "Specify name"},
		{"create before naming", "c:S1|2", "Specify name"},
		{"move before naming", "d:213", "Not in session"},
		{"server tag from a client", "6:hi", reasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer.send(t, tt.frame)
			msg := peer.reply(t)
			assert.Equal(t, protocol.TagNotOK, msg.Tag)
			assert.Equal(t, tt.reason, msg.Payload)
		})
	}

	t.Run("connection stays usable", func(t *testing.T) {
		peer.send(t, "a:alice")
		msg := peer.reply(t)
		assert.Equal(t, protocol.TagSessionsList, msg.Tag)
		assert.Equal(t, game.NoSessions, msg.Payload)
	})

	t.Run("named player requests", func(t *testing.T) {
		cases := []struct {
			frame  string
			reason string
		}{
			{"a:bob", "Name already set"},
			{"d:213", "Not in session"},
			{"c:S1|x", reasonBadCapacity},
			{"c:S1", reasonNeedFields},
			{"c:S1|1", "Too few max players specified"},
			{"b:nope", "No such session"},
		}
		for _, c := range cases {
			peer.send(t, c.frame)
			msg := peer.reply(t)
			assert.Equal(t, protocol.TagNotOK, msg.Tag, c.frame)
			assert.Equal(t, c.reason, msg.Payload, c.frame)
		}
	})

	t.Run("moves before the game starts", func(t *testing.T) {
		peer.send(t, "c:S1|2")
		assert.Equal(t, protocol.TagWaiting, peer.reply(t).Tag)

		peer.send(t, "b:S1")
		assert.Equal(t, "Leave current session", peer.reply(t).Payload)

		peer.send(t, "d:213")
		assert.Equal(t, "Game not running", peer.reply(t).Payload)

		peer.send(t, "d:21")
		assert.Equal(t, reasonMoveLength, peer.reply(t).Payload)

		peer.send(t, "d:203")
		assert.Equal(t, reasonMoveRange, peer.reply(t).Payload)

		peer.send(t, "d:2a3")
		assert.Equal(t, reasonMoveNumeric, peer.reply(t).Payload)
	})
}

func TestHandler_DuplicateNickname(t *testing.T) {
	_, _, port := startServer(t)
	first := dialRaw(t, port)
	second := dialRaw(t, port)

	first.send(t, "a:alice")
	assert.Equal(t, protocol.TagSessionsList, first.reply(t).Tag)

	second.send(t, "a:alice")
	msg := second.reply(t)
	assert.Equal(t, protocol.TagNotOK, msg.Tag)
	assert.Equal(t, "Name in use", msg.Payload)
}

func TestHandler_DisconnectFreesNickname(t *testing.T) {
	_, reg, port := startServer(t)
	first := dialRaw(t, port)
	first.send(t, "a:alice")
	require.Equal(t, protocol.TagSessionsList, first.reply(t).Tag)
	require.NoError(t, first.conn.Close())

	second := dialRaw(t, port)
	assert.Eventually(t, func() bool {
		second.send(t, "a:alice")
		return second.reply(t).Tag == protocol.TagSessionsList
	}, 2*time.Second, 20*time.Millisecond)
	assert.Empty(t, reg.Sessions())
}

func newPlayer(t *testing.T, port int, name string) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.Port = port
	cfg.PollInterval = 10 * time.Millisecond

	c := client.New(cfg, logger.NewNopLogger())
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.SetName(name))
	_, err := c.Connect(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	return c
}

func TestEndToEnd_GameToCompletion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, reg, port := startServer(t)
	alice := newPlayer(t, port, "alice")
	bob := newPlayer(t, port, "bob")

	started, err := alice.CreateSession(ctx, "S1", 2)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, client.WaitForPlayers, alice.State())

	started, err = bob.JoinSession(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, started)

	board, err := alice.WaitForPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, board, bob.Board())
	assert.Equal(t, client.NeedMove, alice.State())
	assert.Equal(t, game.Running, reg.Find("S1").State())

	result, err := alice.PutNumber(ctx, "213")
	require.NoError(t, err)
	assert.Equal(t, "Correct", result)

	result, err = bob.PutNumber(ctx, "213")
	require.NoError(t, err)
	assert.Equal(t, "Cell full", result)

	result, err = bob.PutNumber(ctx, "639")
	require.NoError(t, err)
	assert.Equal(t, "Wrong", result)

	result, err = alice.PutNumber(ctx, "632")
	require.NoError(t, err)
	assert.Equal(t, "Correct", result)

	for _, c := range []*client.Client{alice, bob} {
		var over protocol.Message
		for over.Tag != protocol.TagGameOver {
			over, err = c.NextNotification()
			require.NoError(t, err)
		}
		assert.Equal(t, "Puzzle solved. Winner(s): alice - 2 points", over.Payload)
		assert.Eventually(t, func() bool { return c.State() == client.NeedSession }, time.Second, 5*time.Millisecond)
	}

	assert.Empty(t, reg.Sessions())
	assert.Equal(t, solvedText, alice.Board())
}

func TestEndToEnd_DropoutEndsGame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, reg, port := startServer(t)
	alice := newPlayer(t, port, "alice")
	bob := newPlayer(t, port, "bob")

	_, err := alice.CreateSession(ctx, "S1", 2)
	require.NoError(t, err)
	_, err = bob.JoinSession(ctx, "S1")
	require.NoError(t, err)

	require.NoError(t, bob.Close())

	var over protocol.Message
	for over.Tag != protocol.TagGameOver {
		over, err = alice.NextNotification()
		require.NoError(t, err)
	}
	assert.Equal(t, "Too few players. Winner(s): alice - 0 points", over.Payload)
	assert.Eventually(t, func() bool { return len(reg.Sessions()) == 0 }, time.Second, 5*time.Millisecond)

	_, err = alice.CreateSession(ctx, "S2", 3)
	assert.NoError(t, err, "a returned player can start over")
}

func TestServer_StopClosesConnections(t *testing.T) {
	srv, _, port := startServer(t)
	peer := dialRaw(t, port)
	peer.send(t, "a:alice")
	require.Equal(t, protocol.TagSessionsList, peer.reply(t).Tag)

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	require.NoError(t, peer.conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := protocol.ReadFrame(peer.reader)
	assert.Error(t, err)
	assert.Equal(t, 0, srv.Handlers.Len())

	_, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	assert.Error(t, err, "listener is closed")
}

func TestParseMove(t *testing.T) {
	col, row, value, reason := ParseMove("213")
	assert.Empty(t, reason)
	assert.Equal(t, []int{2, 1, 3}, []int{col, row, value})

	for _, bad := range []string{"", "21", "2134"} {
		_, _, _, reason := ParseMove(bad)
		assert.Equal(t, reasonMoveLength, reason, bad)
	}
	for _, bad := range []string{"013", "200", "990"} {
		_, _, _, reason := ParseMove(bad)
		assert.Equal(t, reasonMoveRange, reason, bad)
	}
	for _, bad := range []string{"2x3", "99:", "-12", " 13"} {
		_, _, _, reason := ParseMove(bad)
		assert.Equal(t, reasonMoveNumeric, reason, bad)
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, "Name in use", Reason(game.ErrNameInUse))
	assert.Equal(t, "Session full", Reason(fmt.Errorf("join: %w", game.ErrSessionFull)))
	assert.Equal(t, reasonInternal, Reason(fmt.Errorf("boom")))
}
