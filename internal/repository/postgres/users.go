package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/repository"
)

var userColumns = []string{
	"id",
	"name",
	"email",
	"password_hash",
	"role",
	"about",
	"profile_picture",
	"email_verified",
	"email_otp_hash",
	"email_otp_expires",
	"reset_token_hash",
	"failed_login_attempts",
	"lock_until",
	"password_last_changed",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := r.builder.Insert("users").
		Columns(
			"id",
			"name",
			"email",
			"password_hash",
			"role",
			"about",
			"profile_picture",
			"email_verified",
			"failed_login_attempts",
			"password_last_changed",
			"created_at",
			"updated_at",
		).
		Values(
			user.ID,
			user.Name,
			user.Email,
			user.PasswordHash,
			string(user.Role),
			user.About,
			user.ProfilePicture,
			user.EmailVerified,
			user.FailedLoginAttempts,
			user.PasswordLastChanged,
			user.CreatedAt,
			user.UpdatedAt,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if mapped := mapWriteError(err); mapped == repository.ErrDuplicate {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *UserRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by normalized e-mail address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)})
}

// GetByResetTokenHash retrieves the user holding the given reset token digest.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"reset_token_hash": tokenHash})
}

// List returns users ordered by creation date, optionally filtered by role.
func (r *UserRepository) List(ctx context.Context, filter port.UserFilter) ([]domain.User, error) {
	query := r.builder.
		Select(userColumns...).
		From("users").
		OrderBy("created_at DESC")

	if filter.Role != "" {
		query = query.Where(squirrel.Eq{"role": filter.Role})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}

	return users, nil
}

// UpdateProfile persists name, email, about, and profile picture changes.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	stmt, args, err := r.builder.Update("users").
		Set("name", user.Name).
		Set("email", user.Email).
		Set("about", user.About).
		Set("profile_picture", user.ProfilePicture).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update profile sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if mapped := mapWriteError(err); mapped == repository.ErrDuplicate {
			return mapped
		}
		return fmt.Errorf("update profile: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword rotates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("password_hash", passwordHash).
		Set("password_last_changed", changedAt).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// IncrementFailedLogins bumps the failure counter in a single statement so
// concurrent failures never lose an increment, and returns the new value.
func (r *UserRepository) IncrementFailedLogins(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("users").
		Set("failed_login_attempts", squirrel.Expr("failed_login_attempts + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		Suffix("RETURNING failed_login_attempts").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment failed logins sql: %w", err)
	}

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&attempts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed logins: %w", err)
	}

	return attempts, nil
}

// LockAccount applies a lock and zeroes the failure counter in one update.
func (r *UserRepository) LockAccount(ctx context.Context, userID string, until time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("lock_until", until).
		Set("failed_login_attempts", 0).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ResetLoginCounters clears the failure counter and any lock.
func (r *UserRepository) ResetLoginCounters(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Update("users").
		Set("failed_login_attempts", 0).
		Set("lock_until", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset login counters sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset login counters: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetEmailOTP stores a fresh verification code digest with its expiry.
func (r *UserRepository) SetEmailOTP(ctx context.Context, userID, otpHash string, expires time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("email_otp_hash", otpHash).
		Set("email_otp_expires", expires).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set email otp sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set email otp: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// MarkEmailVerified flips the verified flag and clears both OTP columns in a
// single update.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Update("users").
		Set("email_verified", true).
		Set("email_otp_hash", nil).
		Set("email_otp_expires", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark email verified sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetResetTokenHash stores the digest of a newly issued reset token,
// replacing any outstanding one.
func (r *UserRepository) SetResetTokenHash(ctx context.Context, userID, tokenHash string) error {
	stmt, args, err := r.builder.Update("users").
		Set("reset_token_hash", tokenHash).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ConsumeResetToken writes the new password hash and nulls the token digest
// in one conditional update. The digest predicate makes the token single-use:
// a concurrent consumer matches zero rows and gets ErrNotFound.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("password_hash", passwordHash).
		Set("password_last_changed", changedAt).
		Set("reset_token_hash", nil).
		Set("failed_login_attempts", 0).
		Set("lock_until", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID, "reset_token_hash": tokenHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user       domain.User
		role       string
		otpHash    sql.NullString
		otpExpires sql.NullTime
		resetHash  sql.NullString
		lockUntil  sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.About,
		&user.ProfilePicture,
		&user.EmailVerified,
		&otpHash,
		&otpExpires,
		&resetHash,
		&user.FailedLoginAttempts,
		&lockUntil,
		&user.PasswordLastChanged,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Role = domain.ParseRole(role)
	if otpHash.Valid {
		user.EmailOTPHash = &otpHash.String
	}
	if otpExpires.Valid {
		t := otpExpires.Time
		user.EmailOTPExpires = &t
	}
	if resetHash.Valid {
		user.ResetTokenHash = &resetHash.String
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		user.LockUntil = &t
	}

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
