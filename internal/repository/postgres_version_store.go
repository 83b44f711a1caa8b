package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/verstore/internal/domain"
)

// bulkChunkSize bounds how many inserts are pipelined in one pgx batch.
const bulkChunkSize = 500

const pgUniqueViolation = "23505"

type postgresVersionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresVersionStore returns a VersionStore backed by the
// document_versions table.
func NewPostgresVersionStore(pool *pgxpool.Pool) VersionStore {
	return &postgresVersionStore{pool: pool}
}

// translatePgError maps driver errors onto the domain sentinels while keeping
// the cause in the chain.
func translatePgError(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", action, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w: %w", action, domain.ErrConflict, err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) ||
		errors.As(err, &netErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", action, domain.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("failed to %s: %w", action, err)
}

func scanPgVersion(row pgx.Row) (domain.Version, error) {
	var (
		entityID       string
		number         int32
		fieldsJSON     []byte
		hash           string
		diffJSON       []byte
		source         pgtype.Text
		rolledBackFrom pgtype.Int4
		createdAt      pgtype.Timestamptz
	)
	if err := row.Scan(&entityID, &number, &fieldsJSON, &hash, &diffJSON, &source, &rolledBackFrom, &createdAt); err != nil {
		return domain.Version{}, err
	}
	return buildVersion(entityID, int(number), fieldsJSON, hash, diffJSON, source.String, int(rolledBackFrom.Int32), createdAt.Time)
}

func collectPgVersions(rows pgx.Rows, action string) ([]domain.Version, error) {
	defer rows.Close()

	versions := []domain.Version{}
	for rows.Next() {
		version, err := scanPgVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError(action, err)
	}
	return versions, nil
}

func (s *postgresVersionStore) GetLatest(ctx context.Context, entityID string) (domain.Version, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = $1
		 ORDER BY version_number DESC
		 LIMIT 1`,
		entityID,
	)
	version, err := scanPgVersion(row)
	if err != nil {
		return domain.Version{}, translatePgError("get latest version of "+entityID, err)
	}
	return version, nil
}

func (s *postgresVersionStore) GetLatestMany(ctx context.Context, entityIDs []string) (map[string]domain.Version, error) {
	ids := uniqueIDs(entityIDs)
	out := make(map[string]domain.Version, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (entity_id) `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = ANY($1)
		 ORDER BY entity_id, version_number DESC`,
		ids,
	)
	if err != nil {
		return nil, translatePgError("get latest versions", err)
	}
	versions, err := collectPgVersions(rows, "get latest versions")
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		out[version.EntityID] = version
	}
	return out, nil
}

func (s *postgresVersionStore) GetVersion(ctx context.Context, entityID string, versionNumber int) (domain.Version, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = $1 AND version_number = $2`,
		entityID,
		versionNumber,
	)
	version, err := scanPgVersion(row)
	if err != nil {
		return domain.Version{}, translatePgError(fmt.Sprintf("get version %d of %s", versionNumber, entityID), err)
	}
	return version, nil
}

func (s *postgresVersionStore) ListVersions(ctx context.Context, entityID string, order domain.SortOrder) ([]domain.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = $1
		 ORDER BY version_number `+orderKeyword(order),
		entityID,
	)
	if err != nil {
		return nil, translatePgError("list versions of "+entityID, err)
	}
	return collectPgVersions(rows, "list versions of "+entityID)
}

func (s *postgresVersionStore) ListEntityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT entity_id FROM document_versions ORDER BY entity_id`)
	if err != nil {
		return nil, translatePgError("list entity ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translatePgError("list entity ids", err)
	}
	return ids, nil
}

func (s *postgresVersionStore) ListLatest(ctx context.Context) ([]domain.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (entity_id) `+versionColumns+`
		 FROM document_versions
		 ORDER BY entity_id, version_number DESC`,
	)
	if err != nil {
		return nil, translatePgError("list latest versions", err)
	}
	return collectPgVersions(rows, "list latest versions")
}

const insertVersionSQL = `INSERT INTO document_versions
	(id, entity_id, version_number, fields, content_hash, diff, source, rolled_back_from, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (entity_id, version_number) DO NOTHING
	RETURNING id`

func insertArgs(version domain.Version) ([]any, error) {
	encoded, err := encodeVersion(version)
	if err != nil {
		return nil, err
	}
	var rolledBackFrom any
	if version.RolledBackFrom > 0 {
		rolledBackFrom = version.RolledBackFrom
	}
	return []any{
		uuid.New(),
		version.EntityID,
		version.VersionNumber,
		encoded.fields,
		version.ContentHash,
		encoded.diff,
		string(version.Source),
		rolledBackFrom,
		version.Timestamp.UTC(),
	}, nil
}

func (s *postgresVersionStore) AppendVersion(ctx context.Context, version domain.Version) error {
	args, err := insertArgs(version)
	if err != nil {
		return err
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, insertVersionSQL, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("append %s: %w", version.Label(), domain.ErrConflict)
	}
	if err != nil {
		return translatePgError("append "+version.Label(), err)
	}
	return nil
}

// BulkAppend pipelines inserts in chunks. Conflicts are per item because of
// ON CONFLICT DO NOTHING. Any other error aborts the implicit transaction of
// its chunk, so every item in that chunk is reported failed.
func (s *postgresVersionStore) BulkAppend(ctx context.Context, versions []domain.Version) []AppendResult {
	results := make([]AppendResult, len(versions))
	for start := 0; start < len(versions); start += bulkChunkSize {
		end := min(start+bulkChunkSize, len(versions))
		s.appendChunk(ctx, versions[start:end], results[start:end])
	}
	return results
}

func (s *postgresVersionStore) appendChunk(ctx context.Context, versions []domain.Version, results []AppendResult) {
	batch := &pgx.Batch{}
	queued := make([]int, 0, len(versions))
	for i, version := range versions {
		results[i] = AppendResult{Version: version}
		args, err := insertArgs(version)
		if err != nil {
			results[i].Status = AppendFailed
			results[i].Err = err
			continue
		}
		batch.Queue(insertVersionSQL, args...)
		queued = append(queued, i)
	}
	if len(queued) == 0 {
		return
	}

	br := s.pool.SendBatch(ctx, batch)
	var chunkErr error
	for _, i := range queued {
		var id uuid.UUID
		err := br.QueryRow().Scan(&id)
		switch {
		case err == nil:
			results[i].Status = AppendInserted
		case errors.Is(err, pgx.ErrNoRows):
			results[i].Status = AppendConflict
			results[i].Err = fmt.Errorf("append %s: %w", versions[i].Label(), domain.ErrConflict)
		default:
			if chunkErr == nil {
				chunkErr = translatePgError("append "+versions[i].Label(), err)
			}
		}
	}
	if err := br.Close(); err != nil && chunkErr == nil {
		chunkErr = translatePgError("close append batch", err)
	}

	if chunkErr != nil {
		for _, i := range queued {
			results[i].Status = AppendFailed
			results[i].Err = chunkErr
		}
	}
}
