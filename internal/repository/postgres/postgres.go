package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annamusic/anna-api/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users     *UserRepository
	AuditLogs *AuditLogRepository
	Songs     *SongRepository
	Favorites *FavoritesRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:     NewUserRepository(pool),
		AuditLogs: NewAuditLogRepository(pool),
		Songs:     NewSongRepository(pool),
		Favorites: NewFavoritesRepository(pool),
	}
}

// mapWriteError converts unique violations to repository.ErrDuplicate.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}
