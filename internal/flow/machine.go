package flow

import (
	"fmt"

	"github.com/ent0n29/stemvoice/internal/command"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/signals"
)

// Spoken lines. Kept together so hosts and tests can reference them.
const (
	SayTosSummary = "Before I split this song, please review the terms of service. " +
		"You confirm that you own this audio or have permission to use it, " +
		"and that the separated stems are for personal use. Say yes to agree, or no to cancel."
	SayTosProceed   = "Thanks. Splitting your song now."
	SayTosCancelled = "Okay, I won't split the song."
	SayTosAgreed    = "Terms accepted. Splitting your song now."

	SayUploadPrompt    = "Tap the button to choose a file, or say yes and I'll try again."
	SayUploadCancelled = "Okay, upload cancelled."
	SayFileReceived    = "Got your file."

	SayStemPrompt  = "Your stems are ready. Which one would you like to hear? Say all to play everything."
	SayStemClosing = "Enjoy your stems."

	UploadLabel = "Tap to choose a file"
)

// Step advances the flow on a final transcript. Non-final transcripts never
// change state.
func Step(state State, t Transcript, env Env) Result {
	if !t.IsFinal {
		return Result{Next: state}
	}
	text := command.Normalize(t.Text)
	if text == "" {
		return Result{Next: state}
	}

	switch state.Mode {
	case ModeTosVerification:
		return stepTos(state, text, env)
	case ModeUploadConfirmation:
		return stepUpload(state, text, env)
	case ModeStemSelection:
		return stepStemSelection(state, text, env)
	default:
		return interpret(state, text, env)
	}
}

// Suppressed reports whether transcripts are currently ignored as likely
// echoes of the system's own announcement.
func Suppressed(state State, env Env) bool {
	if state.Mode != ModeTosVerification {
		return false
	}
	if env.Speaking {
		return true
	}
	cooldown := env.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return env.Now.Sub(state.AnnouncedAt) < cooldown
}

func stepTos(state State, text string, env Env) Result {
	if Suppressed(state, env) {
		return Result{Next: state, Suppressed: true}
	}
	switch {
	case command.IsNegative(text):
		return transition(state, Idle(), speak(SayTosCancelled))
	case command.IsAffirmative(text):
		return transition(state, Idle(),
			speak(SayTosProceed),
			raise(signals.Signal{Name: signals.TriggerSplit}),
		)
	case command.IsTermination(text):
		return transition(state, Idle(), Effect{Kind: EffectStopSession})
	default:
		return Result{Next: state}
	}
}

func stepUpload(state State, text string, env Env) Result {
	switch {
	case command.IsNegative(text) || text == "stop":
		return transition(state, Idle(), speak(SayUploadCancelled))
	case command.IsAffirmative(text):
		return Result{Next: state, Effects: []Effect{{Kind: EffectOpenPicker, Announce: true}}}
	default:
		return interpret(state, text, env)
	}
}

func stepStemSelection(state State, text string, env Env) Result {
	song, ok := songByID(env.Songs, state.SongID)
	if !ok {
		// The song vanished from the library; nothing left to prompt for.
		return transition(state, Idle(), speak(SayStemClosing))
	}

	switch {
	case isStemExit(text):
		return transition(state, Idle(), speak(SayStemClosing))
	case isPlayAll(text):
		return Result{Next: state, Effects: []Effect{{Kind: EffectPlayAll, Song: song}}}
	}

	if layer, ok := command.ResolveLayer(song, text); ok {
		if file := song.FileForLayer(layer.ID); file != "" {
			return Result{Next: state, Effects: []Effect{
				{Kind: EffectPlayFile, Song: song, Layer: layer, File: file},
			}}
		}
		return Result{Next: state, Effects: []Effect{
			notify("warning", fmt.Sprintf("No %s file for %s", layer.Name, song.Title)),
		}}
	}
	return interpret(state, text, env)
}

func isStemExit(text string) bool {
	switch text {
	case "nothing", "no thanks", "no thank you", "stop", "that's it", "thats it",
		"goodbye", "bye", "no", "done", "cancel", "i'm done":
		return true
	}
	return false
}

func isPlayAll(text string) bool {
	switch text {
	case "all", "everything", "play all", "play everything", "all of them", "play all stems":
		return true
	}
	return false
}

// interpret runs the standard grammar. The current state persists unless
// the command itself starts or ends a flow.
func interpret(state State, text string, env Env) Result {
	cmd := command.Interpret(text, env.Songs)
	res := dispatch(state, cmd, env)
	res.Command = &cmd
	return res
}

func dispatch(state State, cmd command.Command, env Env) Result {
	switch cmd.Kind {
	case command.KindNoMatch:
		return Result{Next: state}

	case command.KindStopSession:
		return transition(state, Idle(), Effect{Kind: EffectStopSession})

	case command.KindStartTosFlow:
		return transition(state, TosVerification(env.Now),
			speak(SayTosSummary),
			raise(signals.Signal{Name: signals.ViewTos}),
		)

	case command.KindOpenFilePicker:
		if env.TouchDevice {
			pending := PendingAction{Kind: PendingUpload, Label: UploadLabel}
			return transition(state, UploadConfirmation(pending),
				Effect{Kind: EffectOpenPicker},
				Effect{Kind: EffectSetPending, Pending: pending},
				speak(SayUploadPrompt),
			)
		}
		return Result{Next: state, Effects: []Effect{{Kind: EffectOpenPicker, Announce: true}}}

	case command.KindSelectStems:
		return Result{Next: state, Effects: []Effect{
			raise(signals.Signal{Name: signals.SelectStem, StemID: cmd.Selector}),
		}}

	case command.KindPlayAllTracks:
		song, ok := library.Song{}, false
		if cmd.Song != nil {
			song, ok = *cmd.Song, true
		} else if len(env.Songs) > 0 {
			song, ok = env.Songs[0], true
		}
		if !ok {
			return Result{Next: state, Effects: []Effect{notify("info", "Your library is empty")}}
		}
		return Result{Next: state, Effects: []Effect{{Kind: EffectPlayAll, Song: song}}}

	case command.KindPlayStemForSong:
		if cmd.Target == nil {
			return Result{Next: state, Effects: []Effect{notify("warning", notFoundMessage(cmd))}}
		}
		return Result{Next: state, Effects: []Effect{{
			Kind:  EffectPlayFile,
			Song:  cmd.Target.Song,
			Layer: cmd.Target.Layer,
			File:  cmd.Target.File,
		}}}

	default:
		return Result{Next: state, Effects: []Effect{{Kind: EffectDispatch, Command: cmd}}}
	}
}

func notFoundMessage(cmd command.Command) string {
	switch cmd.NotFound {
	case command.NotFoundSong:
		return fmt.Sprintf("Couldn't find a song matching %q", cmd.SongQuery)
	case command.NotFoundStem:
		return fmt.Sprintf("Couldn't find a %s stem for %q", cmd.StemAlias, cmd.SongQuery)
	default:
		return fmt.Sprintf("The %s stem for %q hasn't been delivered yet", cmd.StemAlias, cmd.SongQuery)
	}
}

// OnSignal advances the flow on a host signal.
func OnSignal(state State, sig signals.Signal, env Env) Result {
	switch sig.Name {
	case signals.TosAgreed:
		if state.Mode != ModeTosVerification {
			return Result{Next: state}
		}
		return transition(state, Idle(), speak(SayTosAgreed))

	case signals.FileSelected:
		if state.Mode == ModeUploadConfirmation {
			return transition(state, Idle(), speak(SayFileReceived))
		}
		// Clears a pending tap affordance left by a blocked picker.
		return Result{Next: state, Effects: []Effect{{Kind: EffectClearPending}}}

	case signals.SplitSuccess:
		if state.Mode == ModeTosVerification {
			return Result{Next: state}
		}
		song, ok := songByID(env.Songs, sig.SongID)
		if !ok {
			return Result{Next: state}
		}
		return transition(state, StemSelectionPrompt(song.ID), speak(SayStemPrompt))

	default:
		return Result{Next: state}
	}
}

// songByID finds a song by id; an empty id selects the newest song.
func songByID(songs []library.Song, id string) (library.Song, bool) {
	if id == "" {
		if len(songs) == 0 {
			return library.Song{}, false
		}
		return songs[0], true
	}
	for _, s := range songs {
		if s.ID == id {
			return s, true
		}
	}
	return library.Song{}, false
}
