package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscript(t *testing.T) {
	frame, err := ParseTranscript([]byte(`{"transcript":"play vocals from imagine","isFinal":true}`))
	require.NoError(t, err)
	assert.Equal(t, TranscriptFrame{Transcript: "play vocals from imagine", IsFinal: true}, frame)
}

func TestParseTranscriptAcceptsEmptyText(t *testing.T) {
	frame, err := ParseTranscript([]byte(`{"transcript":"","isFinal":false}`))
	require.NoError(t, err)
	assert.Empty(t, frame.Transcript)
}

func TestParseTranscriptRejectsOtherShapes(t *testing.T) {
	cases := []string{
		`not json`,
		`[]`,
		`{"transcript":"hi"}`,
		`{"isFinal":true}`,
		`{"transcript":42,"isFinal":true}`,
		`{"transcript":"hi","isFinal":"yes"}`,
		`{"type":"Results","channel":{}}`,
	}
	for _, raw := range cases {
		_, err := ParseTranscript([]byte(raw))
		if !errors.Is(err, ErrMalformedTranscript) {
			t.Fatalf("ParseTranscript(%s) error = %v, want ErrMalformedTranscript", raw, err)
		}
	}
}

func TestParseHostMessageHello(t *testing.T) {
	msg, err := ParseHostMessage([]byte(`{"type":"hello","touch":true}`))
	require.NoError(t, err)

	hello, ok := msg.(Hello)
	require.True(t, ok, "message type = %T, want Hello", msg)
	assert.True(t, hello.Touch)
}

func TestParseHostMessageSignal(t *testing.T) {
	msg, err := ParseHostMessage([]byte(`{"type":"signal","name":"voice-split-success","song_id":"s1"}`))
	require.NoError(t, err)

	sig, ok := msg.(SignalEvent)
	require.True(t, ok)
	assert.Equal(t, "voice-split-success", sig.Name)
	assert.Equal(t, "s1", sig.SongID)

	_, err = ParseHostMessage([]byte(`{"type":"signal"}`))
	require.Error(t, err)
}

func TestParseHostMessagePickerResultRequiresID(t *testing.T) {
	_, err := ParseHostMessage([]byte(`{"type":"picker_result","opened":true}`))
	require.Error(t, err)

	msg, err := ParseHostMessage([]byte(`{"type":"picker_result","id":"p1","opened":false,"error":"NotAllowedError"}`))
	require.NoError(t, err)
	res := msg.(PickerResult)
	assert.False(t, res.Opened)
	assert.Equal(t, "NotAllowedError", res.Error)
}

func TestParseHostMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseHostMessage([]byte(`{"type":"wat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf(SpeakEvent{Type: TypeSpeak})
	assert.True(t, ok)
	assert.Equal(t, TypeSpeak, typ)

	_, ok = TypeOf("nope")
	assert.False(t, ok)
}
