package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/repository"
)

// SongRepository implements port.SongRepository using PostgreSQL. Lyric
// sections and attachment URL lists are stored as jsonb.
type SongRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSongRepository wires a PostgreSQL-backed song repository.
func NewSongRepository(pool *pgxpool.Pool) *SongRepository {
	return &SongRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func encodeSongFields(song *domain.Song) ([]byte, []byte, []byte, error) {
	lyrics, err := json.Marshal(song.Lyrics)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal lyrics: %w", err)
	}
	chords, err := json.Marshal(song.ChordDiagrams)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal chord diagrams: %w", err)
	}
	docs, err := json.Marshal(song.Documents)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal documents: %w", err)
	}
	return lyrics, chords, docs, nil
}

// Create inserts a new song row.
func (r *SongRepository) Create(ctx context.Context, song *domain.Song) error {
	lyrics, chords, docs, err := encodeSongFields(song)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("songs").
		Columns("id", "title", "instrument", "lyrics", "chord_diagrams", "documents", "created_at", "updated_at").
		Values(song.ID, song.Title, song.Instrument, lyrics, chords, docs, song.CreatedAt, song.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert song sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert song: %w", err)
	}

	return nil
}

func scanSong(row pgx.Row) (*domain.Song, error) {
	var (
		song   domain.Song
		lyrics []byte
		chords []byte
		docs   []byte
	)

	if err := row.Scan(
		&song.ID,
		&song.Title,
		&song.Instrument,
		&lyrics,
		&chords,
		&docs,
		&song.CreatedAt,
		&song.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(lyrics) > 0 {
		if err := json.Unmarshal(lyrics, &song.Lyrics); err != nil {
			return nil, fmt.Errorf("decode lyrics: %w", err)
		}
	}
	if len(chords) > 0 {
		if err := json.Unmarshal(chords, &song.ChordDiagrams); err != nil {
			return nil, fmt.Errorf("decode chord diagrams: %w", err)
		}
	}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &song.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}

	return &song, nil
}

// GetByID retrieves a song by identifier.
func (r *SongRepository) GetByID(ctx context.Context, id string) (*domain.Song, error) {
	stmt, args, err := r.builder.
		Select("id", "title", "instrument", "lyrics", "chord_diagrams", "documents", "created_at", "updated_at").
		From("songs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select song sql: %w", err)
	}

	song, err := scanSong(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select song: %w", err)
	}

	return song, nil
}

// List returns songs ordered by title, optionally filtered by instrument.
func (r *SongRepository) List(ctx context.Context, instrument string) ([]domain.Song, error) {
	query := r.builder.
		Select("id", "title", "instrument", "lyrics", "chord_diagrams", "documents", "created_at", "updated_at").
		From("songs").
		OrderBy("title ASC")

	if instrument != "" {
		query = query.Where(squirrel.Eq{"instrument": instrument})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list songs sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()

	var songs []domain.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scan song row: %w", err)
		}
		songs = append(songs, *song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate song rows: %w", err)
	}

	return songs, nil
}

// Update rewrites a song's mutable fields.
func (r *SongRepository) Update(ctx context.Context, song *domain.Song) error {
	lyrics, chords, docs, err := encodeSongFields(song)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("songs").
		Set("title", song.Title).
		Set("instrument", song.Instrument).
		Set("lyrics", lyrics).
		Set("chord_diagrams", chords).
		Set("documents", docs).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": song.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update song sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update song: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a song row.
func (r *SongRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("songs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete song sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete song: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.SongRepository = (*SongRepository)(nil)

// FavoritesRepository implements port.FavoritesRepository with one row per
// user holding the bookmarked song ids as jsonb.
type FavoritesRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewFavoritesRepository wires a PostgreSQL-backed favorites repository.
func NewFavoritesRepository(pool *pgxpool.Pool) *FavoritesRepository {
	return &FavoritesRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the user's favorites, or an empty set when none exist yet.
func (r *FavoritesRepository) Get(ctx context.Context, userID string) (*domain.Favorites, error) {
	stmt, args, err := r.builder.
		Select("song_ids").
		From("favorites").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select favorites sql: %w", err)
	}

	var encoded []byte
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&encoded); err != nil {
		if err == pgx.ErrNoRows {
			return &domain.Favorites{UserID: userID, SongIDs: []string{}}, nil
		}
		return nil, fmt.Errorf("select favorites: %w", err)
	}

	favorites := &domain.Favorites{UserID: userID, SongIDs: []string{}}
	if len(encoded) > 0 {
		if err := json.Unmarshal(encoded, &favorites.SongIDs); err != nil {
			return nil, fmt.Errorf("decode favorites: %w", err)
		}
	}

	return favorites, nil
}

// Save upserts the user's favorites set.
func (r *FavoritesRepository) Save(ctx context.Context, favorites *domain.Favorites) error {
	encoded, err := json.Marshal(favorites.SongIDs)
	if err != nil {
		return fmt.Errorf("marshal favorites: %w", err)
	}

	stmt, args, err := r.builder.Insert("favorites").
		Columns("user_id", "song_ids", "updated_at").
		Values(favorites.UserID, encoded, squirrel.Expr("NOW()")).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET song_ids = EXCLUDED.song_ids, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert favorites sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert favorites: %w", err)
	}

	return nil
}

var _ port.FavoritesRepository = (*FavoritesRepository)(nil)
