package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
)

const defaultAuditLimit = 100

// AuditLogRepository implements port.AuditRepository using PostgreSQL.
type AuditLogRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditLogRepository wires a PostgreSQL-backed audit log repository.
func NewAuditLogRepository(pool *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one audit record.
func (r *AuditLogRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	var details any
	if len(entry.Details) > 0 {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = encoded
	}

	var userID any
	if entry.UserID != nil {
		userID = *entry.UserID
	}

	stmt, args, err := r.builder.Insert("audit_logs").
		Columns("id", "user_id", "action", "details", "client_ip", "user_agent", "created_at").
		Values(entry.ID, userID, entry.Action, details, entry.ClientIP, entry.UserAgent, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit log sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

// List returns audit records newest first, joined with the acting user.
func (r *AuditLogRepository) List(ctx context.Context, filter port.AuditFilter) ([]domain.AuditLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	query := r.builder.
		Select(
			"a.id",
			"a.user_id",
			"a.action",
			"a.details",
			"a.client_ip",
			"a.user_agent",
			"a.created_at",
			"u.email",
			"u.name",
		).
		From("audit_logs a").
		LeftJoin("users u ON u.id = a.user_id").
		OrderBy("a.created_at DESC").
		Limit(uint64(limit))

	if filter.UserID != "" {
		query = query.Where(squirrel.Eq{"a.user_id": filter.UserID})
	}
	if filter.Action != "" {
		query = query.Where(squirrel.Eq{"a.action": filter.Action})
	}
	if filter.Skip > 0 {
		query = query.Offset(uint64(filter.Skip))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit logs sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var (
			entry     domain.AuditLogEntry
			userID    sql.NullString
			details   []byte
			userEmail sql.NullString
			userName  sql.NullString
		)

		if err := rows.Scan(
			&entry.ID,
			&userID,
			&entry.Action,
			&details,
			&entry.ClientIP,
			&entry.UserAgent,
			&entry.CreatedAt,
			&userEmail,
			&userName,
		); err != nil {
			return nil, fmt.Errorf("scan audit log row: %w", err)
		}

		if userID.Valid {
			entry.UserID = &userID.String
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		if userEmail.Valid {
			entry.UserEmail = &userEmail.String
		}
		if userName.Valid {
			entry.UserName = &userName.String
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log rows: %w", err)
	}

	return entries, nil
}

var _ port.AuditRepository = (*AuditLogRepository)(nil)
