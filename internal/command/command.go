// Package command maps normalized transcript text to application commands.
//
// The grammar is an ordered list of rules and the first rule that matches
// wins, so rule order is the disambiguation policy: "stop listening" must be
// seen before "stop all", "select file" before "select <stem>", and
// "play all" before "play <stem> for <song>".
package command

import "github.com/ent0n29/stemvoice/internal/library"

// Kind identifies a command variant.
type Kind string

const (
	KindNavigate           Kind = "navigate"
	KindPlayAllTracks      Kind = "play_all_tracks"
	KindStopAllPlayback    Kind = "stop_all_playback"
	KindClearLibrary       Kind = "clear_library"
	KindReload             Kind = "reload"
	KindLogout             Kind = "logout"
	KindStopSession        Kind = "stop_session"
	KindClearFileSelection Kind = "clear_file_selection"
	KindOpenFilePicker     Kind = "open_file_picker"
	KindStartTosFlow       Kind = "start_tos_flow"
	KindSelectStems        Kind = "select_stems"
	KindPlayStemForSong    Kind = "play_stem_for_song"
	KindNoMatch            Kind = "no_match"
)

// NavigateBack is the Navigate path meaning "history back".
const NavigateBack = "-1"

// Selector values for SelectStems besides a stem name.
const (
	SelectAll  = "all"
	SelectNone = "none"
)

// NotFound explains why a targeted playback command could not be resolved.
type NotFound string

const (
	NotFoundNone NotFound = ""
	NotFoundSong NotFound = "song"
	NotFoundStem NotFound = "stem"
	NotFoundFile NotFound = "file"
)

// Target is a resolved song layer and its delivered file.
type Target struct {
	Song  library.Song
	Layer library.Layer
	File  string
}

// Command is one interpreted utterance. Only the fields relevant to Kind are
// set.
type Command struct {
	Kind Kind

	// Navigate
	Path string

	// SelectStems
	Selector string

	// PlayStemForSong, and PlayAllTracks when a song was named.
	StemAlias string
	SongQuery string
	Target    *Target
	Song      *library.Song
	NotFound  NotFound
}

// Matched reports whether the command is anything other than NoMatch.
func (c Command) Matched() bool {
	return c.Kind != KindNoMatch && c.Kind != ""
}
