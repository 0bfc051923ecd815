package ipc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MsgGetStatus)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, ProtocolVersion, msg.Version)
	assert.Equal(t, MsgGetStatus, msg.Type)
	assert.NotZero(t, msg.Timestamp)
}

func TestMessagePayloadRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewMessage(MsgResult).WithPayload(&StatusPayload{
		Running:   true,
		PID:       4242,
		StartedAt: started,
		BotDir:    "/opt/gofshell/gofbot",
	})

	var decoded StatusPayload
	require.NoError(t, msg.ParsePayload(&decoded))
	assert.True(t, decoded.Running)
	assert.Equal(t, 4242, decoded.PID)
	assert.True(t, started.Equal(decoded.StartedAt))
}

func TestParsePayloadEmpty(t *testing.T) {
	var out StatusPayload
	assert.NoError(t, NewMessage(MsgPing).ParsePayload(&out))
}

func TestErrorPayload(t *testing.T) {
	err := fmt.Errorf("start: %w", NewError(CodeAlreadyRunning, "bot is already running"))

	assert.True(t, IsCode(err, CodeAlreadyRunning))
	assert.False(t, IsCode(err, CodeFailed))
	assert.False(t, IsCode(errors.New("plain"), CodeFailed))
	assert.Equal(t, "ALREADY_RUNNING: bot is already running", NewError(CodeAlreadyRunning, "bot is already running").Error())
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	first := NewMessage(MsgStartBot).WithPayload(map[string]string{"auth": "ptc"})
	second := NewMessage(MsgLogout)
	require.NoError(t, enc.Encode(first))
	require.NoError(t, enc.Encode(second))

	dec := NewDecoder(&buf)

	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.JSONEq(t, `{"auth":"ptc"}`, string(got.Payload))

	got, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, MsgLogout, got.Type)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderRejectsOversizedFrame(t *testing.T) {
	frame := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	_, err := NewDecoder(bytes.NewReader(frame)).Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestDecoderTruncatedFrame(t *testing.T) {
	frame, err := EncodeMessage(NewMessage(MsgPing))
	require.NoError(t, err)

	_, err = NewDecoder(bytes.NewReader(frame[:len(frame)-3])).Decode()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEncodeMessageTooLarge(t *testing.T) {
	msg := NewMessage(MsgStartBot).WithPayload(strings.Repeat("x", MaxMessageSize))
	_, err := EncodeMessage(msg)
	assert.Error(t, err)
}
