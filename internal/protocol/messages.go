package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies host websocket payload variants.
type MessageType string

const (
	// Outbound, controller to host UI.
	TypeState         MessageType = "state"
	TypeTranscript    MessageType = "transcript"
	TypeEffect        MessageType = "effect"
	TypeSignal        MessageType = "signal"
	TypeNotify        MessageType = "notify"
	TypeSpeak         MessageType = "speak"
	TypeSpeakCancel   MessageType = "speak_cancel"
	TypePickerRequest MessageType = "picker_request"

	// Inbound, host UI to controller.
	TypeHello        MessageType = "hello"
	TypePickerResult MessageType = "picker_result"
	TypeSpeechEnded  MessageType = "speech_ended"
)

var (
	ErrUnsupportedType     = errors.New("unsupported message type")
	ErrMalformedTranscript = errors.New("malformed transcript frame")
)

// TranscriptFrame is the only inbound shape accepted from the transcription
// service.
type TranscriptFrame struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// ParseTranscript decodes a transcription frame. Both fields must be present
// with the right JSON types; anything else is ErrMalformedTranscript.
func ParseTranscript(raw []byte) (TranscriptFrame, error) {
	var wire struct {
		Transcript *string `json:"transcript"`
		IsFinal    *bool   `json:"isFinal"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return TranscriptFrame{}, fmt.Errorf("%w: %v", ErrMalformedTranscript, err)
	}
	if wire.Transcript == nil || wire.IsFinal == nil {
		return TranscriptFrame{}, fmt.Errorf("%w: missing transcript or isFinal", ErrMalformedTranscript)
	}
	return TranscriptFrame{Transcript: *wire.Transcript, IsFinal: *wire.IsFinal}, nil
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type StateEvent struct {
	Type           MessageType `json:"type"`
	State          string      `json:"state"`
	SessionID      string      `json:"session_id,omitempty"`
	Flow           string      `json:"flow"`
	PendingKind    string      `json:"pending_kind,omitempty"`
	PendingLabel   string      `json:"pending_label,omitempty"`
	StartedAtMS    int64       `json:"started_at_ms,omitempty"`
	LastActivityMS int64       `json:"last_activity_ms,omitempty"`
}

type TranscriptEvent struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	IsFinal bool        `json:"is_final"`
}

// EffectEvent asks the host UI to perform an application action.
type EffectEvent struct {
	Type     MessageType `json:"type"`
	Action   string      `json:"action"`
	Path     string      `json:"path,omitempty"`
	SongID   string      `json:"song_id,omitempty"`
	TrackKey string      `json:"track_key,omitempty"`
	File     string      `json:"file,omitempty"`
}

type SignalEvent struct {
	Type   MessageType `json:"type"`
	Name   string      `json:"name"`
	StemID string      `json:"stem_id,omitempty"`
	SongID string      `json:"song_id,omitempty"`
}

type NotifyEvent struct {
	Type    MessageType `json:"type"`
	Level   string      `json:"level"`
	Message string      `json:"message"`
}

type SpeakEvent struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
	Text string      `json:"text"`
}

type SpeakCancelEvent struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

type PickerRequest struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

type Hello struct {
	Type  MessageType `json:"type"`
	Touch bool        `json:"touch"`
}

type PickerResult struct {
	Type   MessageType `json:"type"`
	ID     string      `json:"id"`
	Opened bool        `json:"opened"`
	Error  string      `json:"error,omitempty"`
}

type SpeechEnded struct {
	Type  MessageType `json:"type"`
	ID    string      `json:"id"`
	Error string      `json:"error,omitempty"`
}

// ParseHostMessage decodes a message sent by an attached host UI.
func ParseHostMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeHello:
		var msg Hello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSignal:
		var msg SignalEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, errors.New("invalid signal: missing name")
		}
		return msg, nil
	case TypePickerResult:
		var msg PickerResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, errors.New("invalid picker_result: missing id")
		}
		return msg, nil
	case TypeSpeechEnded:
		var msg SpeechEnded
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, errors.New("invalid speech_ended: missing id")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the message type of any protocol value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case StateEvent:
		return m.Type, true
	case TranscriptEvent:
		return m.Type, true
	case EffectEvent:
		return m.Type, true
	case SignalEvent:
		return m.Type, true
	case NotifyEvent:
		return m.Type, true
	case SpeakEvent:
		return m.Type, true
	case SpeakCancelEvent:
		return m.Type, true
	case PickerRequest:
		return m.Type, true
	case Hello:
		return m.Type, true
	case PickerResult:
		return m.Type, true
	case SpeechEnded:
		return m.Type, true
	default:
		return "", false
	}
}
