package session

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/stemvoice/internal/flow"
	"github.com/ent0n29/stemvoice/internal/library"
)

// ConnectionState is the lifecycle of the voice session.
type ConnectionState string

const (
	StateOffline    ConnectionState = "offline"
	StateConnecting ConnectionState = "connecting"
	StateOnline     ConnectionState = "online"
)

var (
	ErrCaptureDenied = errors.New("microphone access was denied")
	ErrConnectFailed = errors.New("could not open the transcription channel")
	// ErrPickerBlocked is returned by Host.OpenFilePicker when the UI refused
	// to open the picker without a user gesture.
	ErrPickerBlocked = errors.New("file picker blocked")
)

// LiveTranscript is the transcript currently shown to the user.
type LiveTranscript struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	ReceivedAt time.Time `json:"received_at"`
}

// Status is a consistent snapshot of the controller.
type Status struct {
	State          ConnectionState     `json:"state"`
	SessionID      string              `json:"session_id,omitempty"`
	StartedAt      time.Time           `json:"started_at,omitempty"`
	LastActivityAt time.Time           `json:"last_activity_at,omitempty"`
	Flow           flow.Mode           `json:"flow"`
	FlowSongID     string              `json:"flow_song_id,omitempty"`
	Pending        *flow.PendingAction `json:"pending,omitempty"`
	Transcript     *LiveTranscript     `json:"transcript,omitempty"`
	Speaking       bool                `json:"speaking"`
	IdleTimeoutMS  int64               `json:"idle_timeout_ms"`
}

// Host is the application surface the controller drives.
type Host interface {
	Navigate(to string)
	Logout()
	Reload()
	PlayAll(song library.Song)
	StopAllPlayback()
	ClearLibrary()
	ClearFileSelection()
	PlayToggle(trackKey, file string, song library.Song)
	// OpenFilePicker returns ErrPickerBlocked when the picker could not be
	// opened programmatically.
	OpenFilePicker(ctx context.Context) error
	IsTouchDevice() bool
	Notify(level, message string)
	// ShowTranscript displays text; an empty text clears the display.
	ShowTranscript(text string, final bool)
	StateChanged(status Status)
}

// Speaker is the spoken-feedback emitter.
type Speaker interface {
	Speak(text string)
	Cancel()
	Speaking() bool
}
