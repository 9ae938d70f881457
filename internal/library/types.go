// Package library holds the catalog of known songs the voice grammar
// resolves titles and stems against.
package library

import (
	"context"
	"path"
	"strings"
	"time"
)

// Layer is one isolated stem of a song.
type Layer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Song is a catalog entry. DeliveredFiles are the rendered stem files; the
// file for a layer is the one whose basename (sans extension) equals the
// layer id.
type Song struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Layers         []Layer   `json:"layers"`
	DeliveredFiles []string  `json:"delivered_files"`
	CreatedAt      time.Time `json:"created_at"`
}

// FileForLayer returns the delivered file matching layerID, or "".
func (s Song) FileForLayer(layerID string) string {
	for _, f := range s.DeliveredFiles {
		if strings.EqualFold(FileStem(f), layerID) {
			return f
		}
	}
	return ""
}

// TrackKey identifies a song layer for playback toggling.
func TrackKey(songID, layerID string) string {
	return songID + ":" + layerID
}

// FileStem strips any query/fragment, directories and extension from a file
// path or URL: "https://cdn/x/vocals.mp3?sig=1" -> "vocals".
func FileStem(file string) string {
	if i := strings.IndexAny(file, "?#"); i >= 0 {
		file = file[:i]
	}
	base := path.Base(strings.ReplaceAll(file, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Store persists the song catalog. List returns newest first.
type Store interface {
	List(ctx context.Context) ([]Song, error)
	Upsert(ctx context.Context, song Song) (Song, error)
	Clear(ctx context.Context) error
	Close() error
}
