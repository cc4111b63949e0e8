// Package wire owns a single framed connection: it serializes outbound frames
// under a send lock and exposes a blocking receive that yields decoded
// messages until the peer or the local side closes the stream.
package wire

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
)

// ErrClosed is returned by Receive once the input side is closed, the peer
// has gone away, or a read failed.
var ErrClosed = errors.New("connection closed")

// Conn is a framed connection. Send is safe for concurrent use; Receive must
// be driven by a single goroutine.
type Conn struct {
	raw          net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
	log          logger.Logger

	sendMu    sync.Mutex
	inClosed  atomic.Bool
	outClosed atomic.Bool
	closeOnce sync.Once
}

// New wraps raw. A writeTimeout of 0 disables write deadlines.
//
// Parameters:
//   - raw: The accepted or dialed network connection
//   - writeTimeout: Maximum duration of a single frame write
//   - log: Logger for frame-level debug output and I/O failures
//
// Returns:
//   - A Conn ready for Send and Receive
func New(raw net.Conn, writeTimeout time.Duration, log logger.Logger) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReader(raw),
		writeTimeout: writeTimeout,
		log:          log,
	}
}

// RemoteAddr returns the peer address as text.
func (c *Conn) RemoteAddr() string {
	if addr := c.raw.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}

// Send encodes and writes one frame. It returns false when the frame could
// not be delivered; a write failure closes the connection in both directions.
//
// Parameters:
//   - tag: The message tag
//   - payload: The payload text
//
// Returns:
//   - true if the whole frame was written
func (c *Conn) Send(tag protocol.Tag, payload string) bool {
	frame, err := protocol.Encode(tag, payload)
	if err != nil {
		c.log.Error("refusing to send frame", logger.Err(err), logger.Field{Key: "tag", Value: tag.String()})
		return false
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.outClosed.Load() {
		return false
	}

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}

	if _, err := c.raw.Write(frame); err != nil {
		if c.outClosed.Swap(true) {
			return false
		}

		c.log.Warn("write failed, closing connection", logger.Err(err))
		go c.Close()
		return false
	}

	c.log.Debug("frame sent", logger.Field{Key: "tag", Value: tag.String()}, logger.Field{Key: "payload", Value: payload})
	return true
}

// Receive blocks until the next frame arrives. A frame that cannot be decoded
// is returned as a *protocol.DecodeError and the connection stays open; any
// other failure, including a clean close by the peer, is ErrClosed.
//
// Returns:
//   - The decoded message
//   - A *protocol.DecodeError, or ErrClosed
func (c *Conn) Receive() (protocol.Message, error) {
	if c.inClosed.Load() {
		return protocol.Message{}, ErrClosed
	}

	raw, err := protocol.ReadFrame(c.reader)
	if err != nil {
		if !errors.Is(err, io.EOF) && !c.inClosed.Load() {
			c.log.Debug("read failed", logger.Err(err))
		}

		c.inClosed.Store(true)
		return protocol.Message{}, ErrClosed
	}

	if c.inClosed.Load() {
		return protocol.Message{}, ErrClosed
	}

	c.log.Debug("frame received", logger.Field{Key: "raw", Value: raw})
	return protocol.Decode(raw)
}

// CloseInput stops reading. A goroutine blocked in Receive returns ErrClosed.
func (c *Conn) CloseInput() {
	if c.inClosed.Swap(true) {
		return
	}

	if tcp, ok := c.raw.(interface{ CloseRead() error }); ok {
		_ = tcp.CloseRead()
	}

	_ = c.raw.SetReadDeadline(time.Now())
}

// CloseOutput stops writing. A goroutine blocked in Send returns false and
// later Send calls return false immediately.
func (c *Conn) CloseOutput() {
	if c.outClosed.Swap(true) {
		return
	}

	_ = c.raw.SetWriteDeadline(time.Now())
	if tcp, ok := c.raw.(interface{ CloseWrite() error }); ok {
		_ = tcp.CloseWrite()
	}
}

// Close closes both directions and the underlying socket. It is safe to
// call multiple times.
func (c *Conn) Close() error {
	c.inClosed.Store(true)
	c.outClosed.Store(true)

	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
	})

	return err
}

// InputClosed reports whether Receive can still yield messages.
func (c *Conn) InputClosed() bool {
	return c.inClosed.Load()
}

// OutputClosed reports whether Send can still deliver frames.
func (c *Conn) OutputClosed() bool {
	return c.outClosed.Load()
}
