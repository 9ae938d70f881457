package library

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidSong = errors.New("song title is required")

// InMemoryStore is a simple in-process catalog for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	songs map[string]Song
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{songs: make(map[string]Song)}
}

func (s *InMemoryStore) List(_ context.Context) ([]Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Song, 0, len(s.songs))
	for _, song := range s.songs {
		out = append(out, cloneSong(song))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, song Song) (Song, error) {
	song, err := normalizeSong(song)
	if err != nil {
		return Song{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.songs[song.ID]; ok {
		song.CreatedAt = existing.CreatedAt
	}
	s.songs[song.ID] = cloneSong(song)
	return song, nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.songs = make(map[string]Song)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func normalizeSong(song Song) (Song, error) {
	song.Title = strings.TrimSpace(song.Title)
	if song.Title == "" {
		return Song{}, ErrInvalidSong
	}
	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	if song.CreatedAt.IsZero() {
		song.CreatedAt = time.Now().UTC()
	}
	for i := range song.Layers {
		song.Layers[i].ID = strings.TrimSpace(song.Layers[i].ID)
		if song.Layers[i].Name == "" {
			song.Layers[i].Name = song.Layers[i].ID
		}
	}
	return song, nil
}

func cloneSong(song Song) Song {
	song.Layers = append([]Layer(nil), song.Layers...)
	song.DeliveredFiles = append([]string(nil), song.DeliveredFiles...)
	return song
}
