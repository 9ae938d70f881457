package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStem(t *testing.T) {
	cases := map[string]string{
		"vocals.mp3":                              "vocals",
		"/data/out/song-1/drums.wav":              "drums",
		"https://cdn.example.com/a/bass.mp3?sig=1": "bass",
		"original":                                "original",
		`C:\stems\other.flac`:                     "other",
	}
	for in, want := range cases {
		assert.Equal(t, want, FileStem(in), "FileStem(%q)", in)
	}
}

func TestSongFileForLayer(t *testing.T) {
	song := Song{
		ID:             "s1",
		DeliveredFiles: []string{"out/Vocals.mp3", "out/drums.mp3", "out/original.mp3"},
	}
	assert.Equal(t, "out/Vocals.mp3", song.FileForLayer("vocals"))
	assert.Equal(t, "out/original.mp3", song.FileForLayer("original"))
	assert.Equal(t, "", song.FileForLayer("bass"))
	assert.Equal(t, "s1:drums", TrackKey(song.ID, "drums"))
}

func TestInMemoryStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now().UTC()

	_, err := store.Upsert(ctx, Song{ID: "old", Title: "Yesterday", CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, Song{ID: "new", Title: "Imagine", CreatedAt: now})
	require.NoError(t, err)

	songs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, "new", songs[0].ID)
	assert.Equal(t, "old", songs[1].ID)
}

func TestInMemoryStoreUpsertKeepsCreatedAtAndDefaultsLayerNames(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first, err := store.Upsert(ctx, Song{Title: "Imagine", Layers: []Layer{{ID: "vocals"}}})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, "vocals", first.Layers[0].Name)

	second, err := store.Upsert(ctx, Song{ID: first.ID, Title: "Imagine (remaster)", CreatedAt: first.CreatedAt.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	songs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Imagine (remaster)", songs[0].Title)
}

func TestInMemoryStoreRejectsEmptyTitleAndClears(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Upsert(ctx, Song{Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidSong)

	_, err = store.Upsert(ctx, Song{Title: "Imagine"})
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	songs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, songs)
}

func TestNewStoreWithoutDatabaseURLIsInMemory(t *testing.T) {
	store, err := NewStore(context.Background(), " ")
	require.NoError(t, err)
	_, ok := store.(*InMemoryStore)
	assert.True(t, ok)
}
