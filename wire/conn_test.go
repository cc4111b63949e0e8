package wire

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return New(local, time.Second, logger.NewNopLogger()), remote
}

func TestConn_Send(t *testing.T) {
	c, remote := pipe(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := remote.Read(buf)
		done <- buf[:n]
	}()

	assert.True(t, c.Send(protocol.TagNotify, "hello"))
	assert.Equal(t, "6:hello#", string(<-done))
}

func TestConn_SendRejectsTerminator(t *testing.T) {
	c, _ := pipe(t)
	assert.False(t, c.Send(protocol.TagNotify, "a#b"))
	assert.False(t, c.OutputClosed())
}

func TestConn_SendAfterPeerGoneClosesConnection(t *testing.T) {
	c, remote := pipe(t)
	require.NoError(t, remote.Close())

	assert.False(t, c.Send(protocol.TagNotify, "x"))
	assert.True(t, c.OutputClosed())
	assert.False(t, c.Send(protocol.TagNotify, "y"))
}

func TestConn_Receive(t *testing.T) {
	c, remote := pipe(t)

	go func() {
		_, _ = io.WriteString(remote, "a:alice#x#d:213#")
		_ = remote.Close()
	}()

	msg, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{Tag: protocol.TagNickname, Payload: "alice"}, msg)

	_, err = c.Receive()
	var de *protocol.DecodeError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, protocol.ErrTooShort)

	msg, err = c.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagPutNumber, msg.Tag)

	_, err = c.Receive()
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, c.InputClosed())
}

func TestConn_CloseInputUnblocksReceive(t *testing.T) {
	c, _ := pipe(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.CloseInput()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after CloseInput")
	}
}

func TestConn_CloseOutputUnblocksSend(t *testing.T) {
	c, _ := pipe(t)

	okCh := make(chan bool, 1)
	go func() {
		okCh <- c.Send(protocol.TagNotify, "nobody reads this")
	}()

	time.Sleep(20 * time.Millisecond)
	c.CloseOutput()

	select {
	case ok := <-okCh:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not unblock after CloseOutput")
	}
	assert.False(t, c.InputClosed())
}

func TestConn_ConcurrentSendsDoNotInterleave(t *testing.T) {
	c, remote := pipe(t)

	const senders = 20
	received := make(chan string, senders)
	go func() {
		rc := New(remote, 0, logger.NewNopLogger())
		for range senders {
			msg, err := rc.Receive()
			if err != nil {
				return
			}
			received <- msg.Payload
		}
	}()

	var wg sync.WaitGroup
	wg.Add(senders)
	for range senders {
		go func() {
			defer wg.Done()
			assert.True(t, c.Send(protocol.TagNotify, "0123456789abcdefghij"))
		}()
	}
	wg.Wait()

	for range senders {
		select {
		case p := <-received:
			assert.Equal(t, "0123456789abcdefghij", p)
		case <-time.After(2 * time.Second):
			t.Fatal("missing frame")
		}
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	c, _ := pipe(t)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.True(t, c.InputClosed())
	assert.True(t, c.OutputClosed())
}
