package command

import (
	"regexp"
	"strings"

	"github.com/ent0n29/stemvoice/internal/library"
)

type rule struct {
	name  string
	match func(text string, songs []library.Song) (Command, bool)
}

// navigation maps spoken destinations to host routes.
var navigation = []struct {
	path    string
	phrases []string
}{
	{"/", []string{"go home", "go to home", "home page", "go to the home page", "take me home"}},
	{NavigateBack, []string{"go back", "back", "previous page"}},
	{"/library", []string{"go to library", "go to my library", "open library", "show library", "my songs", "show my songs"}},
	{"/upload", []string{"go to upload", "upload page", "go to the upload page"}},
	{"/settings", []string{"open settings", "go to settings", "settings"}},
	{"/terms", []string{"view terms", "show terms", "open terms"}},
}

var targetedPlay = regexp.MustCompile(`^play (.+?) (?:for|from) (.+)$`)

// grammar is evaluated top to bottom; see the package comment.
var grammar = []rule{
	{"termination", func(text string, _ []library.Song) (Command, bool) {
		return Command{Kind: KindStopSession}, oneOf(text, terminationPhrases...)
	}},
	{"navigation", func(text string, _ []library.Song) (Command, bool) {
		for _, nav := range navigation {
			if oneOf(text, nav.phrases...) {
				return Command{Kind: KindNavigate, Path: nav.path}, true
			}
		}
		return Command{}, false
	}},
	{"playback", func(text string, _ []library.Song) (Command, bool) {
		switch {
		case oneOf(text, "play all", "play all tracks", "play everything", "play all stems"):
			return Command{Kind: KindPlayAllTracks}, true
		case oneOf(text, "stop all", "stop playback", "stop music", "stop the music", "pause all", "stop playing", "stop all tracks"):
			return Command{Kind: KindStopAllPlayback}, true
		case oneOf(text, "clear library", "clear the library", "delete all songs", "clear all songs"):
			return Command{Kind: KindClearLibrary}, true
		}
		return Command{}, false
	}},
	{"system", func(text string, _ []library.Song) (Command, bool) {
		switch {
		case oneOf(text, "reload", "reload page", "reload the page", "refresh", "refresh page", "refresh the page"):
			return Command{Kind: KindReload}, true
		case oneOf(text, "log out", "logout", "sign out", "log me out"):
			return Command{Kind: KindLogout}, true
		}
		return Command{}, false
	}},
	{"file_selection", func(text string, _ []library.Song) (Command, bool) {
		switch {
		case oneOf(text, "clear file", "clear selection", "remove file", "clear selected file", "clear the file", "remove the file"):
			return Command{Kind: KindClearFileSelection}, true
		case oneOf(text, "upload", "upload file", "upload a file", "upload a song", "choose file", "choose a file",
			"open file picker", "open the file picker", "select file", "select a file", "pick a file"):
			return Command{Kind: KindOpenFilePicker}, true
		}
		return Command{}, false
	}},
	{"terms_of_service", func(text string, _ []library.Song) (Command, bool) {
		ok := containsAny(text, "terms of service", "terms and conditions",
			"split this song", "split the song", "split song", "separate stems", "separate the stems")
		return Command{Kind: KindStartTosFlow}, ok
	}},
	{"stem_selection", func(text string, _ []library.Song) (Command, bool) {
		switch {
		case oneOf(text, "select all", "select all stems", "select everything"):
			return Command{Kind: KindSelectStems, Selector: SelectAll}, true
		case oneOf(text, "deselect all", "unselect all", "clear stems", "deselect everything", "select none"):
			return Command{Kind: KindSelectStems, Selector: SelectNone}, true
		case strings.HasPrefix(text, "select "):
			stem := strings.TrimSpace(strings.TrimPrefix(text, "select "))
			if stem == "" {
				return Command{}, false
			}
			return Command{Kind: KindSelectStems, Selector: NormalizeSelector(stem)}, true
		}
		return Command{}, false
	}},
	{"targeted_playback", func(text string, songs []library.Song) (Command, bool) {
		m := targetedPlay.FindStringSubmatch(text)
		if m == nil {
			return Command{}, false
		}
		return resolveTargetedPlay(strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), songs), true
	}},
}

// Interpret maps text to the first matching command, or NoMatch. songs is the
// read-only catalog used by targeted playback, newest first.
func Interpret(text string, songs []library.Song) Command {
	text = Normalize(text)
	if text == "" {
		return Command{Kind: KindNoMatch}
	}
	for _, r := range grammar {
		if cmd, ok := r.match(text, songs); ok {
			return cmd
		}
	}
	return Command{Kind: KindNoMatch}
}

// NormalizeSelector folds spoken stem names onto the selector vocabulary.
func NormalizeSelector(stem string) string {
	stem = strings.TrimPrefix(Normalize(stem), "the ")
	switch {
	case containsAny(stem, "drum", "percussion"):
		return "percussion"
	case strings.Contains(stem, "vocal"):
		return "vocals"
	case strings.Contains(stem, "instrument"):
		return "instrumental"
	case containsAny(stem, "original", "source"):
		return "original audio"
	case strings.Contains(stem, "bas"):
		return "bass"
	default:
		return stem
	}
}
