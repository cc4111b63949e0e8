// Package protocol implements the line-framed wire format shared by the sudoku
// server and its clients. A frame is TAG HEADER_SEP PAYLOAD TERMINATOR, where
// TAG is a single character drawn from a closed table and PAYLOAD never
// contains the terminator.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// HeaderSep separates the tag character from the payload.
	HeaderSep = ':'
	// FieldSep splits a structured payload into two sub-fields.
	FieldSep = '|'
	// Terminator ends every frame and must never occur inside a payload.
	Terminator = '#'

	// MaxFrameSize bounds a single frame. A peer that streams more bytes
	// without a terminator is treated as broken.
	MaxFrameSize = 64 * 1024
)

var (
	ErrTooShort            = errors.New("received too short message")
	ErrMalformed           = errors.New("received malformed message")
	ErrUnknownTag          = errors.New("unknown control message")
	ErrTerminatorInPayload = errors.New("payload contains the frame terminator")
	ErrFrameTooLarge       = errors.New("frame exceeds maximum size")
)

// DecodeError reports a frame that was read completely but could not be
// decoded. The connection that produced it stays usable.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reason returns the human-readable text sent back in a not-ok reply.
func (e *DecodeError) Reason() string {
	return e.Err.Error()
}

// Message is one decoded frame. It is a value type and is never mutated after
// decoding.
type Message struct {
	Tag     Tag
	Payload string
}

// Fields splits the payload on the field separator. ok is false when the
// payload has no separator.
func (m Message) Fields() (first, second string, ok bool) {
	return strings.Cut(m.Payload, string(FieldSep))
}

func (m Message) String() string {
	return fmt.Sprintf("%s(%q)", m.Tag, m.Payload)
}

// Encode produces the wire form of a frame.
//
// Parameters:
//   - tag: The message tag; must be a known tag
//   - payload: The payload text; must not contain the terminator
//
// Returns:
//   - The framed bytes
//   - ErrUnknownTag or ErrTerminatorInPayload when the frame cannot be emitted
func Encode(tag Tag, payload string) ([]byte, error) {
	def, ok := lookup(tag)
	if !ok {
		return nil, ErrUnknownTag
	}

	if strings.IndexByte(payload, Terminator) >= 0 {
		return nil, ErrTerminatorInPayload
	}

	buf := make([]byte, 0, len(payload)+3)
	buf = append(buf, def.wire, HeaderSep)
	buf = append(buf, payload...)
	buf = append(buf, Terminator)
	return buf, nil
}

// ReadFrame reads bytes up to and including the next terminator and returns
// the frame without it. A peer that closes the stream yields io.EOF, also when
// a partial frame was pending.
func ReadFrame(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.ReadSlice(Terminator)
		if sb.Len()+len(chunk) > MaxFrameSize {
			return "", ErrFrameTooLarge
		}

		switch {
		case err == nil:
			sb.Write(chunk[:len(chunk)-1])
			return sb.String(), nil
		case errors.Is(err, bufio.ErrBufferFull):
			sb.Write(chunk)
		case errors.Is(err, io.EOF):
			return "", io.EOF
		default:
			return "", err
		}
	}
}

// Decode turns a raw frame (terminator already stripped) into a Message.
// Structured tags accept no header separator inside the payload and at most
// one field separator; free-text tags accept anything but the terminator.
func Decode(raw string) (Message, error) {
	if len(raw) < 2 {
		return Message{}, &DecodeError{Raw: raw, Err: ErrTooShort}
	}

	if raw[1] != HeaderSep {
		return Message{}, &DecodeError{Raw: raw, Err: ErrMalformed}
	}

	def, ok := lookupWire(raw[0])
	if !ok {
		return Message{}, &DecodeError{Raw: raw, Err: ErrUnknownTag}
	}

	payload := raw[2:]
	if !def.freeText {
		if strings.IndexByte(payload, HeaderSep) >= 0 ||
			strings.Count(payload, string(FieldSep)) > def.maxFieldSeps {
			return Message{}, &DecodeError{Raw: raw, Err: ErrMalformed}
		}
	}

	return Message{Tag: def.tag, Payload: payload}, nil
}
