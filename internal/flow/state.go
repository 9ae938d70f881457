// Package flow is the conversational state machine. It is pure: Step and
// OnSignal take the current state plus an environment snapshot and return the
// next state with the effects the session controller must carry out.
package flow

import (
	"time"

	"github.com/ent0n29/stemvoice/internal/command"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/signals"
)

// DefaultCooldown is how long after the ToS announcement replies are ignored.
const DefaultCooldown = 2000 * time.Millisecond

// Mode tags the FlowState variant.
type Mode string

const (
	ModeIdle               Mode = "idle"
	ModeTosVerification    Mode = "tos_verification"
	ModeUploadConfirmation Mode = "upload_confirmation"
	ModeStemSelection      Mode = "stem_selection_prompt"
)

type PendingKind string

const (
	PendingUpload PendingKind = "upload"
	PendingSelect PendingKind = "select"
)

// PendingAction is a UI affordance the host renders when a step needs a
// manual gesture.
type PendingAction struct {
	Kind  PendingKind `json:"kind"`
	Label string      `json:"label"`
}

// State is the current dialogue mode plus its variant data.
type State struct {
	Mode        Mode
	AnnouncedAt time.Time      // TosVerification
	Pending     *PendingAction // UploadConfirmation
	SongID      string         // StemSelectionPrompt
}

func Idle() State { return State{Mode: ModeIdle} }

func TosVerification(announcedAt time.Time) State {
	return State{Mode: ModeTosVerification, AnnouncedAt: announcedAt}
}

func UploadConfirmation(p PendingAction) State {
	return State{Mode: ModeUploadConfirmation, Pending: &p}
}

func StemSelectionPrompt(songID string) State {
	return State{Mode: ModeStemSelection, SongID: songID}
}

// Transcript is one recognized utterance.
type Transcript struct {
	Text       string
	IsFinal    bool
	ReceivedAt time.Time
}

// Env is the read-only context a transition sees.
type Env struct {
	Speaking    bool
	Now         time.Time
	TouchDevice bool
	Songs       []library.Song
	Cooldown    time.Duration
}

type EffectKind string

const (
	EffectSpeak        EffectKind = "speak"
	EffectRaise        EffectKind = "raise"
	EffectDispatch     EffectKind = "dispatch"
	EffectOpenPicker   EffectKind = "open_picker"
	EffectSetPending   EffectKind = "set_pending"
	EffectClearPending EffectKind = "clear_pending"
	EffectPlayAll      EffectKind = "play_all"
	EffectPlayFile     EffectKind = "play_file"
	EffectNotify       EffectKind = "notify"
	EffectStopSession  EffectKind = "stop_session"
)

// Effect is a side effect requested by a transition. Text carries the
// utterance for Speak and the message for Notify; Song, Layer and File
// describe playback targets.
type Effect struct {
	Kind     EffectKind
	Text     string
	Level    string
	Signal   signals.Signal
	Command  command.Command
	Pending  PendingAction
	Song     library.Song
	Layer    library.Layer
	File     string
	Announce bool // OpenPicker: speak the outcome
}

// Result is the outcome of one transition.
type Result struct {
	Next    State
	Effects []Effect
	// Command is the interpreted standard command, if the interpreter ran.
	Command *command.Command
	// Suppressed is set when self-trigger suppression discarded the input.
	Suppressed bool
}

func speak(text string) Effect { return Effect{Kind: EffectSpeak, Text: text} }

func raise(sig signals.Signal) Effect { return Effect{Kind: EffectRaise, Signal: sig} }

func notify(level, text string) Effect { return Effect{Kind: EffectNotify, Level: level, Text: text} }

// transition builds a Result, clearing any pending action when the flow
// leaves a non-idle mode.
func transition(from, to State, effects ...Effect) Result {
	if from.Mode != ModeIdle && to.Mode != from.Mode {
		effects = append([]Effect{{Kind: EffectClearPending}}, effects...)
	}
	return Result{Next: to, Effects: effects}
}
