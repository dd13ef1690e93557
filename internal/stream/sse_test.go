package stream

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_Events(t *testing.T) {
	input := "event: update\ndata: {\"a\":1}\n\n: keepalive\n\ndata: first\ndata: second\n\n"
	s := NewScanner(strings.NewReader(input))

	require.True(t, s.Next())
	assert.Equal(t, Event{Name: "update", Data: `{"a":1}`}, s.Event())

	require.True(t, s.Next())
	assert.Equal(t, "", s.Event().Name)
	assert.Equal(t, "first\nsecond", s.Event().Data)

	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestScanner_IDAndRetryCarryOver(t *testing.T) {
	input := "id: 7\nretry: 1500\ndata: a\n\ndata: b\n\n"
	s := NewScanner(strings.NewReader(input))

	require.True(t, s.Next())
	assert.Equal(t, "7", s.Event().ID)
	assert.Equal(t, 1500*time.Millisecond, s.Event().Retry)

	require.True(t, s.Next())
	assert.Equal(t, "7", s.Event().ID, "id persists until replaced")
	assert.Equal(t, "7", s.LastID())
	assert.Equal(t, 1500*time.Millisecond, s.Retry())
}

func TestScanner_IgnoresInvalidRetry(t *testing.T) {
	s := NewScanner(strings.NewReader("retry: soon\ndata: x\n\n"))
	require.True(t, s.Next())
	assert.Equal(t, time.Duration(0), s.Retry())
}

func TestScanner_CRLFAndNoSpace(t *testing.T) {
	s := NewScanner(strings.NewReader("data:{}\r\n\r\n"))
	require.True(t, s.Next())
	assert.Equal(t, "{}", s.Event().Data)
}

func TestScanner_FinalEventWithoutTerminator(t *testing.T) {
	s := NewScanner(strings.NewReader("data: tail"))
	require.True(t, s.Next())
	assert.Equal(t, "tail", s.Event().Data)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestScanner_EventWithoutDataSkipped(t *testing.T) {
	s := NewScanner(strings.NewReader("event: ping\n\ndata: real\n\n"))
	require.True(t, s.Next())
	assert.Equal(t, "", s.Event().Name)
	assert.Equal(t, "real", s.Event().Data)
}

func TestScanner_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	s := NewScanner(iotest.ErrReader(boom))
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestScanner_OversizedLineDiscarded(t *testing.T) {
	huge := strings.Repeat("x", 3*maxLineSize)
	input := "id: 1\ndata: " + huge + "\ndata: tail\n\nid: 2\ndata: next\n\n"
	s := NewScanner(strings.NewReader(input))

	require.True(t, s.Next())
	assert.True(t, s.Event().Oversized)
	assert.Equal(t, "", s.Event().Data)
	assert.Equal(t, "1", s.Event().ID)

	require.True(t, s.Next())
	assert.False(t, s.Event().Oversized)
	assert.Equal(t, "next", s.Event().Data)
	assert.Equal(t, "2", s.LastID())

	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestScanner_OversizedLineAtEOF(t *testing.T) {
	s := NewScanner(strings.NewReader("data: " + strings.Repeat("y", 2*maxLineSize)))
	require.True(t, s.Next())
	assert.True(t, s.Event().Oversized)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}
