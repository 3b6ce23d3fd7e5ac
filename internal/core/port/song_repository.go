package port

import (
	"context"

	"github.com/annamusic/anna-api/internal/core/domain"
)

// SongRepository persists the lesson catalog.
type SongRepository interface {
	Create(ctx context.Context, song *domain.Song) error
	GetByID(ctx context.Context, id string) (*domain.Song, error)
	List(ctx context.Context, instrument string) ([]domain.Song, error)
	Update(ctx context.Context, song *domain.Song) error
	Delete(ctx context.Context, id string) error
}

// FavoritesRepository persists per-user song bookmarks.
type FavoritesRepository interface {
	Get(ctx context.Context, userID string) (*domain.Favorites, error)
	Save(ctx context.Context, favorites *domain.Favorites) error
}
