package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/rpattn/verstore/internal/domain"
)

type sqliteVersionStore struct {
	db *sql.DB
}

// NewSQLiteVersionStore returns a VersionStore over a database opened with
// db.OpenSQLite and migrated with the sqlite migrations.
func NewSQLiteVersionStore(conn *sql.DB) VersionStore {
	return &sqliteVersionStore{db: conn}
}

func translateSQLiteError(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", action, domain.ErrNotFound)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w: %w", action, domain.ErrConflict, err)
		case sqliteErr.Code == sqlite3.ErrBusy,
			sqliteErr.Code == sqlite3.ErrLocked,
			sqliteErr.Code == sqlite3.ErrCantOpen,
			sqliteErr.Code == sqlite3.ErrIoErr:
			return fmt.Errorf("%s: %w: %w", action, domain.ErrStoreUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", action, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteVersion(row rowScanner) (domain.Version, error) {
	var (
		entityID       string
		number         int
		fieldsJSON     []byte
		hash           string
		diffJSON       []byte
		source         sql.NullString
		rolledBackFrom sql.NullInt64
		createdAt      string
	)
	if err := row.Scan(&entityID, &number, &fieldsJSON, &hash, &diffJSON, &source, &rolledBackFrom, &createdAt); err != nil {
		return domain.Version{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to parse created_at of %s@v%d: %w", entityID, number, err)
	}
	return buildVersion(entityID, number, fieldsJSON, hash, diffJSON, source.String, int(rolledBackFrom.Int64), ts)
}

func (s *sqliteVersionStore) queryVersions(ctx context.Context, action string, query string, args ...any) ([]domain.Version, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateSQLiteError(action, err)
	}
	defer rows.Close()

	versions := []domain.Version{}
	for rows.Next() {
		version, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLiteError(action, err)
	}
	return versions, nil
}

func (s *sqliteVersionStore) GetLatest(ctx context.Context, entityID string) (domain.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = ?
		 ORDER BY version_number DESC
		 LIMIT 1`,
		entityID,
	)
	version, err := scanSQLiteVersion(row)
	if err != nil {
		return domain.Version{}, translateSQLiteError("get latest version of "+entityID, err)
	}
	return version, nil
}

func (s *sqliteVersionStore) GetLatestMany(ctx context.Context, entityIDs []string) (map[string]domain.Version, error) {
	ids := uniqueIDs(entityIDs)
	out := make(map[string]domain.Version, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	versions, err := s.queryVersions(ctx, "get latest versions",
		`SELECT `+versionColumns+`
		 FROM document_versions v
		 WHERE v.entity_id IN (`+placeholders+`)
		   AND v.version_number = (
		     SELECT MAX(m.version_number) FROM document_versions m WHERE m.entity_id = v.entity_id
		   )`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		out[version.EntityID] = version
	}
	return out, nil
}

func (s *sqliteVersionStore) GetVersion(ctx context.Context, entityID string, versionNumber int) (domain.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = ? AND version_number = ?`,
		entityID,
		versionNumber,
	)
	version, err := scanSQLiteVersion(row)
	if err != nil {
		return domain.Version{}, translateSQLiteError(fmt.Sprintf("get version %d of %s", versionNumber, entityID), err)
	}
	return version, nil
}

func (s *sqliteVersionStore) ListVersions(ctx context.Context, entityID string, order domain.SortOrder) ([]domain.Version, error) {
	return s.queryVersions(ctx, "list versions of "+entityID,
		`SELECT `+versionColumns+`
		 FROM document_versions
		 WHERE entity_id = ?
		 ORDER BY version_number `+orderKeyword(order),
		entityID,
	)
}

func (s *sqliteVersionStore) ListEntityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT entity_id FROM document_versions ORDER BY entity_id`)
	if err != nil {
		return nil, translateSQLiteError("list entity ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLiteError("list entity ids", err)
	}
	return ids, nil
}

func (s *sqliteVersionStore) ListLatest(ctx context.Context) ([]domain.Version, error) {
	return s.queryVersions(ctx, "list latest versions",
		`SELECT `+versionColumns+`
		 FROM document_versions v
		 WHERE v.version_number = (
		   SELECT MAX(m.version_number) FROM document_versions m WHERE m.entity_id = v.entity_id
		 )
		 ORDER BY v.entity_id`,
	)
}

func (s *sqliteVersionStore) AppendVersion(ctx context.Context, version domain.Version) error {
	encoded, err := encodeVersion(version)
	if err != nil {
		return err
	}

	var rolledBackFrom any
	if version.RolledBackFrom > 0 {
		rolledBackFrom = version.RolledBackFrom
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_versions
		 (id, entity_id, version_number, fields, content_hash, diff, source, rolled_back_from, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		version.EntityID,
		version.VersionNumber,
		string(encoded.fields),
		version.ContentHash,
		string(encoded.diff),
		string(version.Source),
		rolledBackFrom,
		version.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return translateSQLiteError("append "+version.Label(), err)
	}
	return nil
}

// BulkAppend inserts each version as its own statement so one failure does
// not undo the others.
func (s *sqliteVersionStore) BulkAppend(ctx context.Context, versions []domain.Version) []AppendResult {
	results := make([]AppendResult, len(versions))
	for i, version := range versions {
		results[i] = AppendResult{Version: version, Status: AppendInserted}
		err := s.AppendVersion(ctx, version)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrConflict):
			results[i].Status = AppendConflict
			results[i].Err = err
		default:
			results[i].Status = AppendFailed
			results[i].Err = err
		}
	}
	return results
}
