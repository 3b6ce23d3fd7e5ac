package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/repository"
)

// ErrSongNotFound indicates the requested song does not exist.
var ErrSongNotFound = errors.New("song not found")

// SongInput carries the fields accepted on song create and update.
type SongInput struct {
	Title         string
	Instrument    string
	Lyrics        []domain.LyricSection
	ChordDiagrams []string
	Documents     []string
}

// CatalogService manages the song catalog and per-user favorites.
type CatalogService struct {
	songs     port.SongRepository
	favorites port.FavoritesRepository
	now       func() time.Time
}

// NewCatalogService constructs a CatalogService instance.
func NewCatalogService(songs port.SongRepository, favorites port.FavoritesRepository) *CatalogService {
	return &CatalogService{
		songs:     songs,
		favorites: favorites,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *CatalogService) WithClock(now func() time.Time) *CatalogService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateSong adds a catalog entry.
func (s *CatalogService) CreateSong(ctx context.Context, input SongInput) (*domain.Song, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}

	now := s.now().UTC()
	song := &domain.Song{
		ID:            uuid.NewString(),
		Title:         input.Title,
		Instrument:    input.Instrument,
		Lyrics:        input.Lyrics,
		ChordDiagrams: input.ChordDiagrams,
		Documents:     input.Documents,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.songs.Create(ctx, song); err != nil {
		return nil, fmt.Errorf("create song: %w", err)
	}

	return song, nil
}

// GetSong fetches one song.
func (s *CatalogService) GetSong(ctx context.Context, id string) (*domain.Song, error) {
	song, err := s.songs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, fmt.Errorf("get song: %w", err)
	}
	return song, nil
}

// ListSongs returns the catalog, optionally filtered by instrument.
func (s *CatalogService) ListSongs(ctx context.Context, instrument string) ([]domain.Song, error) {
	songs, err := s.songs.List(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	return songs, nil
}

// UpdateSong rewrites a song's fields.
func (s *CatalogService) UpdateSong(ctx context.Context, id string, input SongInput) (*domain.Song, error) {
	song, err := s.GetSong(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != "" {
		song.Title = input.Title
	}
	if input.Instrument != "" {
		song.Instrument = input.Instrument
	}
	if input.Lyrics != nil {
		song.Lyrics = input.Lyrics
	}
	if input.ChordDiagrams != nil {
		song.ChordDiagrams = input.ChordDiagrams
	}
	if input.Documents != nil {
		song.Documents = input.Documents
	}
	song.UpdatedAt = s.now().UTC()

	if err := s.songs.Update(ctx, song); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, fmt.Errorf("update song: %w", err)
	}

	return song, nil
}

// DeleteSong removes a catalog entry.
func (s *CatalogService) DeleteSong(ctx context.Context, id string) error {
	if err := s.songs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSongNotFound
		}
		return fmt.Errorf("delete song: %w", err)
	}
	return nil
}

// GetFavorites returns the user's bookmarked song ids.
func (s *CatalogService) GetFavorites(ctx context.Context, userID string) (*domain.Favorites, error) {
	favorites, err := s.favorites.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get favorites: %w", err)
	}
	return favorites, nil
}

// ToggleFavorite adds the song to the user's set when absent and removes it
// when present, returning the updated set and whether the song is now
// bookmarked. The song must exist.
func (s *CatalogService) ToggleFavorite(ctx context.Context, userID, songID string) (*domain.Favorites, bool, error) {
	if _, err := s.GetSong(ctx, songID); err != nil {
		return nil, false, err
	}

	favorites, err := s.favorites.Get(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("get favorites: %w", err)
	}

	added := true
	if favorites.Contains(songID) {
		filtered := favorites.SongIDs[:0]
		for _, id := range favorites.SongIDs {
			if id != songID {
				filtered = append(filtered, id)
			}
		}
		favorites.SongIDs = filtered
		added = false
	} else {
		favorites.SongIDs = append(favorites.SongIDs, songID)
	}

	if err := s.favorites.Save(ctx, favorites); err != nil {
		return nil, false, fmt.Errorf("save favorites: %w", err)
	}

	return favorites, added, nil
}
