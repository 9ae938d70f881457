package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/stemvoice/internal/library"
)

func testSongs() []library.Song {
	return []library.Song{
		{
			ID:    "song-imagine",
			Title: "Imagine",
			Layers: []library.Layer{
				{ID: "vocals", Name: "vocals"},
				{ID: "drums", Name: "Drums"},
				{ID: "bass", Name: "Bass"},
			},
			DeliveredFiles: []string{
				"stems/song-imagine/vocals.mp3",
				"stems/song-imagine/drums.mp3",
				"stems/song-imagine/bass.mp3",
				"stems/song-imagine/original.mp3",
			},
		},
		{
			ID:             "song-yesterday",
			Title:          "Yesterday",
			Layers:         []library.Layer{{ID: "vocals", Name: "Vocals"}, {ID: "instrumental", Name: "Instrumental"}},
			DeliveredFiles: []string{"stems/song-yesterday/vocals.wav"},
		},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "play vocals from imagine", Normalize("  Play Vocals, from IMAGINE!  "))
	assert.Equal(t, "don't agree", Normalize("Don’t agree."))
	assert.Equal(t, "", Normalize(" ?! "))
}

func TestInterpretTargetedPlaybackResolvesFile(t *testing.T) {
	cmd := Interpret("play vocals from imagine", testSongs())

	require.Equal(t, KindPlayStemForSong, cmd.Kind)
	assert.Equal(t, "vocals", cmd.StemAlias)
	assert.Equal(t, "imagine", cmd.SongQuery)
	assert.Equal(t, NotFoundNone, cmd.NotFound)
	require.NotNil(t, cmd.Target)
	assert.Equal(t, "song-imagine", cmd.Target.Song.ID)
	assert.Equal(t, "vocals", cmd.Target.Layer.ID)
	assert.Equal(t, "stems/song-imagine/vocals.mp3", cmd.Target.File)
}

func TestInterpretTargetedPlaybackAliases(t *testing.T) {
	songs := testSongs()

	cmd := Interpret("play percussion for imagine", songs)
	require.NotNil(t, cmd.Target)
	assert.Equal(t, "drums", cmd.Target.Layer.ID)

	cmd = Interpret("play the original audio from imagine", songs)
	require.NotNil(t, cmd.Target, "original resolves through its delivered file")
	assert.Equal(t, "original", cmd.Target.Layer.ID)
	assert.Equal(t, "stems/song-imagine/original.mp3", cmd.Target.File)

	cmd = Interpret("play bass for imagine by john lennon", songs)
	require.NotNil(t, cmd.Target)
	assert.Equal(t, "bass", cmd.Target.Layer.ID)
}

func TestInterpretTargetedPlaybackNotFoundIsConsumed(t *testing.T) {
	songs := testSongs()

	cmd := Interpret("play vocals for bohemian rhapsody", songs)
	assert.Equal(t, KindPlayStemForSong, cmd.Kind)
	assert.Equal(t, NotFoundSong, cmd.NotFound)
	assert.Nil(t, cmd.Target)

	cmd = Interpret("play guitar from imagine", songs)
	assert.Equal(t, KindPlayStemForSong, cmd.Kind)
	assert.Equal(t, NotFoundStem, cmd.NotFound)

	cmd = Interpret("play instrumental from yesterday", songs)
	assert.Equal(t, KindPlayStemForSong, cmd.Kind)
	assert.Equal(t, NotFoundFile, cmd.NotFound)

	cmd = Interpret("play vocals from imagine", nil)
	assert.Equal(t, NotFoundSong, cmd.NotFound)
}

func TestInterpretPlayAllForSong(t *testing.T) {
	cmd := Interpret("play all stems for yesterday", testSongs())
	require.Equal(t, KindPlayAllTracks, cmd.Kind)
	require.NotNil(t, cmd.Song)
	assert.Equal(t, "song-yesterday", cmd.Song.ID)
}

func TestInterpretSelectAliases(t *testing.T) {
	cases := map[string]string{
		"select drums":        "percussion",
		"select percussion":   "percussion",
		"select the drum":     "percussion",
		"select vocal":        "vocals",
		"select vocals":       "vocals",
		"select instrument":   "instrumental",
		"select instrumental": "instrumental",
		"select original":     "original audio",
		"select source":       "original audio",
		"select bass":         "bass",
		"select base":         "bass",
		"select guitar":       "guitar",
		"select all":          SelectAll,
		"deselect all":        SelectNone,
	}
	for in, want := range cases {
		cmd := Interpret(in, nil)
		assert.Equal(t, KindSelectStems, cmd.Kind, in)
		assert.Equal(t, want, cmd.Selector, in)
	}
}

func TestInterpretPriorityOrder(t *testing.T) {
	cases := []struct {
		text string
		want Kind
	}{
		{"stop listening", KindStopSession},
		{"Stop listening.", KindStopSession},
		{"stop all", KindStopAllPlayback},
		{"select file", KindOpenFilePicker},
		{"play all", KindPlayAllTracks},
		{"go back", KindNavigate},
		{"reload", KindReload},
		{"sign out", KindLogout},
		{"clear library", KindClearLibrary},
		{"clear selection", KindClearFileSelection},
		{"show me the terms of service", KindStartTosFlow},
		{"split this song", KindStartTosFlow},
		{"what's the weather", KindNoMatch},
		{"", KindNoMatch},
	}
	for _, tc := range cases {
		got := Interpret(tc.text, testSongs())
		assert.Equal(t, tc.want, got.Kind, "Interpret(%q)", tc.text)
	}
}

func TestInterpretNavigationPaths(t *testing.T) {
	assert.Equal(t, "/", Interpret("go home", nil).Path)
	assert.Equal(t, NavigateBack, Interpret("go back", nil).Path)
	assert.Equal(t, "/library", Interpret("open library", nil).Path)
}

func TestAffirmativeAndNegative(t *testing.T) {
	for _, s := range []string{"yes", "Yes.", "agree", "i agree", "confirm", "i do", "yes please", "yes i agree", "agreed"} {
		assert.True(t, IsAffirmative(s), s)
	}
	for _, s := range []string{"no", "cancel", "disagree", "don't agree", "I don't agree", "i disagree", "yes i think that we should"} {
		assert.False(t, IsAffirmative(s), s)
	}
	for _, s := range []string{"no", "cancel", "disagree", "don't agree", "I do not agree"} {
		assert.True(t, IsNegative(s), s)
	}
	assert.False(t, IsNegative("yes"))
}

func TestIsTermination(t *testing.T) {
	assert.True(t, IsTermination("Stop listening!"))
	assert.False(t, IsTermination("please stop listening to me sometime"))
}

func TestResolveLayer(t *testing.T) {
	song := testSongs()[0]

	l, ok := ResolveLayer(song, "drum")
	require.True(t, ok)
	assert.Equal(t, "drums", l.ID)

	l, ok = ResolveLayer(song, "play the bass")
	require.True(t, ok)
	assert.Equal(t, "bass", l.ID)

	_, ok = ResolveLayer(song, "kazoo")
	assert.False(t, ok)
}
