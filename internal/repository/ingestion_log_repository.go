package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpattn/verstore/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultLogLimit = 200

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type ingestionLogRepository struct {
	pool *pgxpool.Pool
}

// NewIngestionLogRepository wires a repository backed by pgxpool.
func NewIngestionLogRepository(pool *pgxpool.Pool) IngestionLogRepository {
	return &ingestionLogRepository{pool: pool}
}

func (r *ingestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("ingestion log repository not initialized")
	}

	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO ingestion_logs (id, batch_id, file_name, row_number, entity_id, state, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(),
		entry.BatchID,
		entry.FileName,
		rowNumber,
		entry.EntityID,
		entry.State,
		entry.ErrorMessage,
	)
	if err != nil {
		return translatePgError("record ingestion log", err)
	}

	return nil
}

func (r *ingestionLogRepository) List(ctx context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("ingestion log repository not initialized")
	}
	limit, offset = normalizePage(limit, offset)

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, batch_id, file_name, row_number, entity_id, state, error_message, created_at
		 FROM ingestion_logs
		 WHERE ($1::uuid IS NULL OR batch_id = $1)
		 ORDER BY created_at DESC, row_number
		 LIMIT $2 OFFSET $3`,
		nullableBatch(batchID),
		limit,
		offset,
	)
	if err != nil {
		return nil, translatePgError("list ingestion logs", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry     domain.IngestionLogEntry
			rowNumber pgtype.Int4
			entityID  pgtype.Text
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.BatchID,
			&entry.FileName,
			&rowNumber,
			&entityID,
			&entry.State,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		entry.EntityID = entityID.String
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}

func nullableBatch(batchID uuid.UUID) any {
	if batchID == uuid.Nil {
		return nil
	}
	return batchID
}

type sqliteIngestionLogRepository struct {
	db *sql.DB
}

// NewSQLiteIngestionLogRepository stores ingestion logs next to the SQLite version store.
func NewSQLiteIngestionLogRepository(conn *sql.DB) IngestionLogRepository {
	return &sqliteIngestionLogRepository{db: conn}
}

func (r *sqliteIngestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO ingestion_logs (id, batch_id, file_name, row_number, entity_id, state, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		entry.BatchID.String(),
		entry.FileName,
		rowNumber,
		entry.EntityID,
		entry.State,
		entry.ErrorMessage,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return translateSQLiteError("record ingestion log", err)
	}
	return nil
}

func (r *sqliteIngestionLogRepository) List(ctx context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	limit, offset = normalizePage(limit, offset)

	var batchFilter any
	if batchID != uuid.Nil {
		batchFilter = batchID.String()
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, batch_id, file_name, row_number, entity_id, state, error_message, created_at
		 FROM ingestion_logs
		 WHERE (? IS NULL OR batch_id = ?)
		 ORDER BY created_at DESC, row_number
		 LIMIT ? OFFSET ?`,
		batchFilter,
		batchFilter,
		limit,
		offset,
	)
	if err != nil {
		return nil, translateSQLiteError("list ingestion logs", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry     domain.IngestionLogEntry
			id        string
			batch     string
			rowNumber sql.NullInt64
			entityID  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&id, &batch, &entry.FileName, &rowNumber, &entityID, &entry.State, &entry.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", err)
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse ingestion log id: %w", err)
		}
		if entry.BatchID, err = uuid.Parse(batch); err != nil {
			return nil, fmt.Errorf("failed to parse ingestion batch id: %w", err)
		}
		if rowNumber.Valid {
			value := int(rowNumber.Int64)
			entry.RowNumber = &value
		}
		entry.EntityID = entityID.String
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse ingestion log timestamp: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", err)
	}
	return logs, nil
}
