package command

import (
	"strings"

	"github.com/ent0n29/stemvoice/internal/library"
)

// Layer ids the spoken aliases resolve to.
const (
	LayerOriginal = "original"
	LayerDrums    = "drums"
)

func resolveTargetedPlay(stem, songQuery string, songs []library.Song) Command {
	cmd := Command{Kind: KindPlayStemForSong, StemAlias: stem, SongQuery: songQuery}

	song, ok := FindSong(songQuery, songs)
	if !ok {
		cmd.NotFound = NotFoundSong
		return cmd
	}
	if oneOf(stem, "all", "all stems", "all tracks", "everything") {
		return Command{Kind: KindPlayAllTracks, SongQuery: songQuery, Song: &song}
	}

	layer, ok := ResolveLayer(song, stem)
	if !ok {
		cmd.NotFound = NotFoundStem
		return cmd
	}
	file := song.FileForLayer(layer.ID)
	if file == "" {
		cmd.NotFound = NotFoundFile
		return cmd
	}
	cmd.Target = &Target{Song: song, Layer: layer, File: file}
	return cmd
}

// FindSong returns the first song whose title contains query, falling back to
// the first title contained in query ("imagine by john lennon").
func FindSong(query string, songs []library.Song) (library.Song, bool) {
	query = Normalize(query)
	if query == "" {
		return library.Song{}, false
	}
	for _, s := range songs {
		if strings.Contains(Normalize(s.Title), query) {
			return s, true
		}
	}
	for _, s := range songs {
		title := Normalize(s.Title)
		if title != "" && strings.Contains(query, title) {
			return s, true
		}
	}
	return library.Song{}, false
}

// layerAlias maps spoken stem names onto canonical layer ids.
func layerAlias(stem string) string {
	switch {
	case oneOf(stem, "original audio", "original", "source", "original track", "the original"):
		return LayerOriginal
	case containsAny(stem, "percussion", "drum"):
		return LayerDrums
	default:
		return ""
	}
}

// ResolveLayer finds the song layer a spoken stem refers to: alias first,
// then exact id/name, then substring either way.
func ResolveLayer(song library.Song, stem string) (library.Layer, bool) {
	stem = Normalize(stem)
	stem = strings.TrimPrefix(stem, "play ")
	stem = strings.TrimPrefix(stem, "the ")
	stem = strings.TrimSuffix(stem, " track")
	stem = strings.TrimSuffix(stem, " stem")
	if stem == "" {
		return library.Layer{}, false
	}

	if id := layerAlias(stem); id != "" {
		for _, l := range song.Layers {
			if strings.EqualFold(l.ID, id) {
				return l, true
			}
		}
		if id == LayerOriginal && song.FileForLayer(LayerOriginal) != "" {
			return library.Layer{ID: LayerOriginal, Name: "Original audio"}, true
		}
	}

	for _, l := range song.Layers {
		if strings.EqualFold(l.ID, stem) || Normalize(l.Name) == stem {
			return l, true
		}
	}
	for _, l := range song.Layers {
		name := Normalize(l.Name)
		id := strings.ToLower(l.ID)
		if strings.Contains(name, stem) || strings.Contains(id, stem) {
			return l, true
		}
		if (name != "" && strings.Contains(stem, name)) || (id != "" && strings.Contains(stem, id)) {
			return l, true
		}
	}
	return library.Layer{}, false
}
