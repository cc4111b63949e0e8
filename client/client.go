// Package client is the player side of the sudoku contest. It dials the
// server, runs a demultiplexer over the connection so replies and pushes
// never mix, and tracks where the player is in the game flow.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/sudokunet/demux"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/utils"
	"github.com/cyberinferno/sudokunet/wire"
)

var (
	ErrClosed          = errors.New("client closed")
	ErrNotConnected    = errors.New("not connected")
	ErrInvalidName     = errors.New("names must be 1-8 letters or digits")
	ErrInvalidCapacity = errors.New("a session needs at least two players")
	ErrInvalidMove     = errors.New("a move is three digits 1-9: column, row, value")
	ErrWrongState      = errors.New("request not allowed in the current state")
	ErrSessionEnded    = errors.New("session ended")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// RejectedError carries the reason of a not-ok reply.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "server rejected request: " + e.Reason
}

// BoardPrefix starts the notification that carries the updated grid.
const BoardPrefix = "Sudoku table\n"

// Config holds client connection settings.
type Config struct {
	// Port is the server port; the host is chosen at Connect.
	Port int
	// ConnectionTimeout bounds dialing.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds one frame write; 0 disables it.
	WriteTimeout time.Duration
	// PollInterval is how often WaitForPlayers re-checks for the table.
	PollInterval time.Duration
}

// DefaultConfig returns the settings used by the console client.
//
// Returns:
//   - A Config with Port 7777, ConnectionTimeout 10s, WriteTimeout 10s and
//     PollInterval 100ms
func DefaultConfig() Config {
	return Config{
		Port:              7777,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		PollInterval:      100 * time.Millisecond,
	}
}

// Client is one player's connection and game state. It is safe for
// concurrent use: one goroutine issues requests while another drains
// notifications.
type Client struct {
	config Config
	log    logger.Logger

	mu       sync.RWMutex
	state    State
	nickname string
	board    string
	endings  uint64
	onState  StateHandler
	conn     *wire.Conn
	dmx      *demux.Demux
	closed   bool

	wg sync.WaitGroup
}

// New creates a client in the NeedName state.
func New(config Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		log:    log.With(logger.Field{Key: "component", Value: "client"}),
		state:  NeedName,
	}
}

// OnStateChange registers the state handler, replacing any previous one.
// Pass nil to clear it.
func (c *Client) OnStateChange(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Nickname returns the chosen nickname, approved or not.
func (c *Client) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

// Board returns the last grid seen, as 81 digits.
func (c *Client) Board() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.board
}

// SetName validates and stores the nickname to claim. From NeedName it moves
// the client to NotConnected; from RefusedName it stays put until Login.
func (c *Client) SetName(name string) error {
	if !utils.IsValidName(name) {
		return ErrInvalidName
	}

	c.mu.Lock()
	switch c.state {
	case NeedName, RefusedName:
		c.nickname = name
	default:
		c.mu.Unlock()
		return ErrWrongState
	}
	c.mu.Unlock()

	c.transition([]State{NeedName}, NotConnected)
	return nil
}

// Connect dials host on the configured port, starts the read loop and claims
// the nickname.
//
// Parameters:
//   - ctx: Bounds dialing and the nickname exchange
//   - host: Server host or IP
//
// Returns:
//   - The session listing sent with the nickname approval
//   - A dial error, ErrWrongState, ErrClosed or *RejectedError
func (c *Client) Connect(ctx context.Context, host string) (string, error) {
	if c.State() != NotConnected {
		return "", ErrWrongState
	}

	addr := net.JoinHostPort(host, strconv.Itoa(c.config.Port))
	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.log.Warn("dial failed", logger.Field{Key: "addr", Value: addr}, logger.Err(err))
		return "", fmt.Errorf("connect %s: %w", addr, err)
	}

	connLog := c.log.With(logger.Field{Key: "remote", Value: addr})
	conn := wire.New(raw, c.config.WriteTimeout, connLog)
	dmx := demux.New(conn, connLog, c.onPush)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return "", ErrClosed
	}
	c.conn = conn
	c.dmx = dmx
	c.mu.Unlock()

	c.wg.Go(dmx.Run)
	c.log.Info("connected", logger.Field{Key: "addr", Value: addr})

	return c.Login(ctx)
}

// Login claims the stored nickname on an open connection. It is called by
// Connect and again after SetName in the RefusedName state.
func (c *Client) Login(ctx context.Context) (string, error) {
	if s := c.State(); s != NotConnected && s != RefusedName {
		return "", ErrWrongState
	}

	reply, err := c.request(ctx, protocol.TagNickname, c.Nickname())
	if err != nil {
		return "", err
	}

	switch reply.Tag {
	case protocol.TagSessionsList:
		c.transition([]State{NotConnected, RefusedName}, NeedSession)
		return reply.Payload, nil
	case protocol.TagNotOK:
		c.transition([]State{NotConnected}, RefusedName)
		return "", &RejectedError{Reason: reply.Payload}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedReply, reply)
	}
}

// CreateSession opens a session and takes its first seat.
//
// Returns:
//   - true if the game already started, which only happens when another
//     player could not have joined first; normally false
//   - ErrInvalidName, ErrInvalidCapacity, ErrWrongState, ErrClosed or *RejectedError
func (c *Client) CreateSession(ctx context.Context, name string, capacity int) (bool, error) {
	if !utils.IsValidName(name) {
		return false, ErrInvalidName
	}
	if capacity < 2 {
		return false, ErrInvalidCapacity
	}

	return c.join(ctx, protocol.TagJoinNew, name+string(protocol.FieldSep)+strconv.Itoa(capacity))
}

// JoinSession takes a seat in an existing session.
//
// Returns:
//   - true if this join filled the session and the game started
//   - ErrInvalidName, ErrWrongState, ErrClosed or *RejectedError
func (c *Client) JoinSession(ctx context.Context, name string) (bool, error) {
	if !utils.IsValidName(name) {
		return false, ErrInvalidName
	}

	return c.join(ctx, protocol.TagJoinExisting, name)
}

func (c *Client) join(ctx context.Context, tag protocol.Tag, payload string) (bool, error) {
	if c.State() != NeedSession {
		return false, ErrWrongState
	}

	c.mu.RLock()
	endings := c.endings
	c.mu.RUnlock()

	reply, err := c.request(ctx, tag, payload)
	if err != nil {
		return false, err
	}

	switch reply.Tag {
	case protocol.TagWaiting:
		c.enterSession(endings, WaitForPlayers)
		return false, nil
	case protocol.TagTable:
		c.setBoard(reply.Payload)
		c.enterSession(endings, NeedMove)
		return true, nil
	case protocol.TagNotOK:
		return false, &RejectedError{Reason: reply.Payload}
	default:
		return false, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply)
	}
}

// enterSession moves to next unless a game-over arrived after the request
// was sent, in which case the session is already gone.
func (c *Client) enterSession(endings uint64, next State) {
	c.mu.Lock()
	if c.endings != endings || c.state != NeedSession {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.transition([]State{NeedSession}, next)
}

// WaitForPlayers polls for the table that starts the game. It re-checks
// every PollInterval so a cancelled ctx or a closed connection is noticed
// promptly.
//
// Returns:
//   - The starting grid
//   - ErrSessionEnded if the session closed first, ErrWrongState, ErrClosed or ctx.Err()
func (c *Client) WaitForPlayers(ctx context.Context) (string, error) {
	dmx, err := c.demux()
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		switch c.State() {
		case WaitForPlayers:
		case NeedSession:
			return "", ErrSessionEnded
		default:
			return "", ErrWrongState
		}

		if reply, ok := dmx.TryReply(); ok {
			if reply.Tag != protocol.TagTable {
				c.log.Warn("ignoring reply while waiting for players", logger.Field{Key: "reply", Value: reply.String()})
				continue
			}

			c.setBoard(reply.Payload)
			c.transition([]State{WaitForPlayers}, NeedMove)
			return reply.Payload, nil
		}

		if dmx.Closed() {
			return "", ErrClosed
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// PutNumber submits a move written as three digits: column, row, value.
//
// Returns:
//   - The move result text: Correct, Wrong or Cell full
//   - ErrInvalidMove, ErrWrongState, ErrClosed or *RejectedError
func (c *Client) PutNumber(ctx context.Context, move string) (string, error) {
	if !ValidMove(move) {
		return "", ErrInvalidMove
	}
	if c.State() != NeedMove {
		return "", ErrWrongState
	}

	reply, err := c.request(ctx, protocol.TagPutNumber, move)
	if err != nil {
		return "", err
	}

	switch reply.Tag {
	case protocol.TagMoveResult:
		return reply.Payload, nil
	case protocol.TagNotOK:
		return "", &RejectedError{Reason: reply.Payload}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedReply, reply)
	}
}

// ValidMove reports whether move is exactly three digits 1-9.
func ValidMove(move string) bool {
	if len(move) != 3 {
		return false
	}
	for i := range 3 {
		if move[i] < '1' || move[i] > '9' {
			return false
		}
	}
	return true
}

// NextNotification blocks until the server pushes a notification or a
// game-over, returning them in arrival order.
//
// Returns:
//   - The pushed message
//   - ErrNotConnected before Connect, ErrClosed once the connection is gone
func (c *Client) NextNotification() (protocol.Message, error) {
	dmx, err := c.demux()
	if err != nil {
		return protocol.Message{}, err
	}

	msg, err := dmx.NextNotification()
	if errors.Is(err, demux.ErrClosed) {
		return msg, ErrClosed
	}
	return msg, err
}

// Close closes the connection, waits for the read loop and releases every
// blocked caller. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, dmx := c.conn, c.dmx
	c.mu.Unlock()

	if conn != nil {
		conn.CloseInput()
		_ = conn.Close()
	}
	c.wg.Wait()
	if dmx != nil {
		dmx.Close()
	}

	c.setState(Closed)
	return nil
}

func (c *Client) demux() (*demux.Demux, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.dmx == nil {
		return nil, ErrNotConnected
	}
	return c.dmx, nil
}

func (c *Client) request(ctx context.Context, tag protocol.Tag, payload string) (protocol.Message, error) {
	dmx, err := c.demux()
	if err != nil {
		return protocol.Message{}, err
	}

	reply, err := dmx.Request(ctx, tag, payload)
	if errors.Is(err, demux.ErrClosed) {
		return reply, ErrClosed
	}
	return reply, err
}

// onPush runs on the read loop for every pushed message.
func (c *Client) onPush(msg protocol.Message) {
	switch msg.Tag {
	case protocol.TagGameOver:
		c.mu.Lock()
		c.endings++
		c.mu.Unlock()
		c.transition([]State{WaitForPlayers, NeedMove}, NeedSession)
	case protocol.TagNotify:
		if board, ok := strings.CutPrefix(msg.Payload, BoardPrefix); ok {
			c.setBoard(board)
		}
	}
}

func (c *Client) setBoard(board string) {
	c.mu.Lock()
	c.board = board
	c.mu.Unlock()
}

// transition moves to next only from one of the listed states.
func (c *Client) transition(from []State, next State) bool {
	c.mu.Lock()
	prev := c.state
	if !slices.Contains(from, prev) {
		c.mu.Unlock()
		return false
	}
	c.state = next
	handler := c.onState
	c.mu.Unlock()

	c.log.Debug("state changed", logger.Field{Key: "from", Value: prev.String()}, logger.Field{Key: "to", Value: next.String()})
	c.emit(handler, prev, next)
	return true
}

func (c *Client) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	handler := c.onState
	c.mu.Unlock()

	if prev != next {
		c.emit(handler, prev, next)
	}
}

func (c *Client) emit(handler StateHandler, prev, next State) {
	if handler == nil {
		return
	}

	handler(StateEvent{State: next, Previous: prev, Timestamp: time.Now()})
}
