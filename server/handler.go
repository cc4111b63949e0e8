// Package server runs the sudoku contest over TCP: one Handler per accepted
// connection reads requests, applies them to the shared game.Registry and
// writes the reply.
package server

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/cyberinferno/sudokunet/game"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/wire"
)

// Reply texts that do not come from a game error.
const (
	reasonMoveLength  = "The input must contain 3 numbers\nFor example, '213' puts '3' at (x=2, y=1)."
	reasonMoveRange   = "The number must be in [1..9]."
	reasonMoveNumeric = "Unexpected error: Parsing int failed!"
	reasonBadCapacity = "Unable to parse integer"
	reasonNeedFields  = "Specify session name and player count"
	reasonUnexpected  = "Unexpected message"
	reasonInternal    = "Internal server error"
)

var reasons = map[error]string{
	game.ErrNameInUse:        "Name in use",
	game.ErrInvalidName:      "Names must be 1-8 letters or digits",
	game.ErrAlreadyNamed:     "Name already set",
	game.ErrNotNamed:         "Specify name",
	game.ErrSessionNameInUse: "Session name in use",
	game.ErrCapacityTooLow:   "Too few max players specified",
	game.ErrSessionFull:      "Session full",
	game.ErrSessionNotFound:  "No such session",
	game.ErrAlreadyInSession: "Leave current session",
	game.ErrNotInSession:     "Not in session",
	game.ErrGameNotRunning:   "Game not running",
	game.ErrBadMove:          reasonMoveRange,
}

// Reason maps a game error to the not-ok text shown to the player.
func Reason(err error) string {
	for target, text := range reasons {
		if errors.Is(err, target) {
			return text
		}
	}

	return reasonInternal
}

// Handler serves one player connection.
type Handler struct {
	id     uint32
	conn   *wire.Conn
	player *game.Player
	reg    *game.Registry
	log    logger.Logger
}

// NewHandler wraps an accepted connection.
//
// Parameters:
//   - id: Connection ID assigned by the listener
//   - raw: The accepted connection
//   - reg: Registry shared by all handlers
//   - writeTimeout: Maximum duration of one frame write
//   - log: Parent logger
//
// Returns:
//   - A Handler; run Handle in its own goroutine
func NewHandler(id uint32, raw net.Conn, reg *game.Registry, writeTimeout time.Duration, log logger.Logger) *Handler {
	l := log.With(logger.Field{Key: "conn", Value: id}, logger.Field{Key: "remote", Value: raw.RemoteAddr().String()})
	conn := wire.New(raw, writeTimeout, l)

	return &Handler{
		id:     id,
		conn:   conn,
		player: game.NewPlayer(conn),
		reg:    reg,
		log:    l,
	}
}

func (h *Handler) ID() uint32 {
	return h.id
}

// Handle reads and answers requests until the connection closes, then takes
// the player out of the registry.
func (h *Handler) Handle() {
	h.log.Info("client connected")
	defer func() {
		h.reg.Disconnect(h.player)
		_ = h.conn.Close()
		h.log.Info("client disconnected")
	}()

	for {
		msg, err := h.conn.Receive()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				h.log.Warn("bad frame", logger.Err(err))
				if !h.conn.Send(protocol.TagNotOK, decodeErr.Reason()) {
					return
				}
				continue
			}

			return
		}

		h.log.Debug("request", logger.Field{Key: "tag", Value: msg.Tag.String()}, logger.Field{Key: "payload", Value: msg.Payload})
		tag, payload, reply := h.dispatch(msg)
		if !reply {
			continue
		}

		if !h.conn.Send(tag, payload) {
			return
		}
	}
}

func (h *Handler) Close() error {
	return h.conn.Close()
}

// dispatch applies one request. reply is false when the registry already
// answered, which happens for the join that starts a game.
func (h *Handler) dispatch(msg protocol.Message) (tag protocol.Tag, payload string, reply bool) {
	switch msg.Tag {
	case protocol.TagNickname:
		listing, err := h.reg.AssignNickname(h.player, msg.Payload)
		if err != nil {
			return h.reject(err)
		}
		return protocol.TagSessionsList, listing, true

	case protocol.TagJoinExisting:
		res, err := h.reg.JoinSession(h.player, msg.Payload)
		return h.joinReply(res, err)

	case protocol.TagJoinNew:
		name, count, ok := msg.Fields()
		if !ok {
			return protocol.TagNotOK, reasonNeedFields, true
		}
		capacity, err := strconv.Atoi(count)
		if err != nil {
			return protocol.TagNotOK, reasonBadCapacity, true
		}
		_, res, err := h.reg.CreateSession(h.player, name, capacity)
		return h.joinReply(res, err)

	case protocol.TagPutNumber:
		col, row, value, reason := ParseMove(msg.Payload)
		if reason != "" {
			return protocol.TagNotOK, reason, true
		}
		out, err := h.reg.SubmitMove(h.player, col, row, value)
		if err != nil {
			return h.reject(err)
		}
		return protocol.TagMoveResult, out.String(), true

	default:
		h.log.Warn("unexpected message from client", logger.Field{Key: "tag", Value: msg.Tag.String()})
		return protocol.TagNotOK, reasonUnexpected, true
	}
}

func (h *Handler) joinReply(res game.JoinResult, err error) (protocol.Tag, string, bool) {
	if err != nil {
		return h.reject(err)
	}
	if res == game.Started {
		return protocol.TagInvalid, "", false
	}
	return protocol.TagWaiting, "", true
}

func (h *Handler) reject(err error) (protocol.Tag, string, bool) {
	text := Reason(err)
	if text == reasonInternal {
		h.log.Error("request failed", logger.Err(err))
	} else {
		h.log.Debug("request rejected", logger.Err(err))
	}
	return protocol.TagNotOK, text, true
}

// ParseMove splits a put-number payload into 1-indexed column, row and value.
// A non-empty reason tells apart a wrong length, a non-digit and a digit
// outside 1-9.
func ParseMove(payload string) (col, row, value int, reason string) {
	if len(payload) != 3 {
		return 0, 0, 0, reasonMoveLength
	}

	var digits [3]int
	for i := range 3 {
		ch := payload[i]
		if ch < '0' || ch > '9' {
			return 0, 0, 0, reasonMoveNumeric
		}
		if ch == '0' {
			return 0, 0, 0, reasonMoveRange
		}
		digits[i] = int(ch - '0')
	}

	return digits[0], digits[1], digits[2], ""
}
