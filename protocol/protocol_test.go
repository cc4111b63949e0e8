package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("frames tag and payload", func(t *testing.T) {
		b, err := Encode(TagNickname, "alice")
		require.NoError(t, err)
		assert.Equal(t, "a:alice#", string(b))
	})

	t.Run("empty payload", func(t *testing.T) {
		b, err := Encode(TagWaiting, "")
		require.NoError(t, err)
		assert.Equal(t, "2:#", string(b))
	})

	t.Run("rejects terminator in payload", func(t *testing.T) {
		_, err := Encode(TagNotify, "bad # text")
		assert.ErrorIs(t, err, ErrTerminatorInPayload)
	})

	t.Run("rejects unknown tag", func(t *testing.T) {
		_, err := Encode(TagInvalid, "x")
		assert.ErrorIs(t, err, ErrUnknownTag)
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Message
		wantErr error
	}{
		{"nickname", "a:alice", Message{Tag: TagNickname, Payload: "alice"}, nil},
		{"join new with field", "c:S1|2", Message{Tag: TagJoinNew, Payload: "S1|2"}, nil},
		{"put number", "d:213", Message{Tag: TagPutNumber, Payload: "213"}, nil},
		{"free text keeps separators", "6:Scores: alice 1", Message{Tag: TagNotify, Payload: "Scores: alice 1"}, nil},
		{"empty payload", "2:", Message{Tag: TagWaiting}, nil},
		{"too short", "a", Message{}, ErrTooShort},
		{"empty", "", Message{}, ErrTooShort},
		{"missing header separator", "aalice", Message{}, ErrMalformed},
		{"extra header separator", "a:ali:ce", Message{}, ErrMalformed},
		{"too many field separators", "c:S1|2|3", Message{}, ErrMalformed},
		{"field separator not allowed", "b:S1|2", Message{}, ErrMalformed},
		{"unknown tag", "z:hello", Message{}, ErrUnknownTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)

				var de *DecodeError
				require.True(t, errors.As(err, &de))
				assert.Equal(t, tt.wantErr.Error(), de.Reason())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage_Fields(t *testing.T) {
	name, capacity, ok := Message{Tag: TagJoinNew, Payload: "S1|3"}.Fields()
	assert.True(t, ok)
	assert.Equal(t, "S1", name)
	assert.Equal(t, "3", capacity)

	_, _, ok = Message{Tag: TagJoinNew, Payload: "S1"}.Fields()
	assert.False(t, ok)
}

func TestReadFrame(t *testing.T) {
	t.Run("splits consecutive frames", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("a:alice#b:S1#"))

		f, err := ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, "a:alice", f)

		f, err = ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, "b:S1", f)

		_, err = ReadFrame(r)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("partial frame at close is a closed signal", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("a:ali"))
		_, err := ReadFrame(r)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("frames longer than the reader buffer", func(t *testing.T) {
		long := strings.Repeat("x", 100)
		r := bufio.NewReaderSize(strings.NewReader("6:"+long+"#"), 16)
		f, err := ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, "6:"+long, f)
	})

	t.Run("oversized frame fails", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader(strings.Repeat("x", MaxFrameSize+10)))
		_, err := ReadFrame(r)
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestRoundTripEveryTag(t *testing.T) {
	for _, def := range tagTable {
		b, err := Encode(def.tag, "p")
		require.NoError(t, err)

		raw := strings.TrimSuffix(string(b), string(Terminator))
		msg, err := Decode(raw)
		require.NoError(t, err, def.name)
		assert.Equal(t, def.tag, msg.Tag)
	}
}

func TestTag_Class(t *testing.T) {
	for _, tag := range []Tag{TagSessionsList, TagWaiting, TagMoveResult, TagTable, TagNotOK} {
		assert.True(t, tag.IsReply(), tag.String())
		assert.False(t, tag.IsPush(), tag.String())
	}

	for _, tag := range []Tag{TagNotify, TagGameOver} {
		assert.True(t, tag.IsPush(), tag.String())
		assert.False(t, tag.IsReply(), tag.String())
	}

	assert.Equal(t, ClientToServer, TagPutNumber.Direction())
	assert.Equal(t, "invalid", TagInvalid.String())
}
