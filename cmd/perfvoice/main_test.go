package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/stemvoice/internal/protocol"
)

func TestHostWSURL(t *testing.T) {
	got, err := hostWSURL("http://127.0.0.1:8090/")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8090/v1/host/ws", got)

	got, err = hostWSURL("https://voice.example/app")
	require.NoError(t, err)
	assert.Equal(t, "wss://voice.example/app/v1/host/ws", got)

	_, err = hostWSURL("ftp://voice.example")
	assert.Error(t, err)
}

func TestReplyForActsAsHeadlessHost(t *testing.T) {
	picker := replyFor(wsEnvelope{Type: "picker_request", ID: "p1"})
	assert.Equal(t, protocol.PickerResult{Type: protocol.TypePickerResult, ID: "p1", Opened: true}, picker)

	speech := replyFor(wsEnvelope{Type: "speak", ID: "s1", Text: "hello"})
	assert.Equal(t, protocol.SpeechEnded{Type: protocol.TypeSpeechEnded, ID: "s1"}, speech)

	assert.Nil(t, replyFor(wsEnvelope{Type: "state", State: "online"}))
}

func TestAwaitStateSkipsOtherStates(t *testing.T) {
	states := make(chan string, 3)
	states <- "connecting"
	states <- "online"
	require.NoError(t, awaitState(states, nil, "online", time.Second))

	err := awaitState(states, nil, "offline", 20*time.Millisecond)
	assert.ErrorContains(t, err, "timeout")
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{
		50 * time.Millisecond,
		10 * time.Millisecond,
		40 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
	}
	assert.Equal(t, 30*time.Millisecond, percentile(samples, 0.50))
	assert.Equal(t, 50*time.Millisecond, percentile(samples, 0.95))
	assert.Equal(t, time.Duration(0), percentile(nil, 0.5))
}
