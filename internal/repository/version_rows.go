package repository

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/verstore/internal/domain"
)

// versionColumns is the select list shared by the SQL stores.
const versionColumns = `entity_id, version_number, fields, content_hash, diff, source, rolled_back_from, created_at`

// encodedVersion holds the serialized document columns of a version.
type encodedVersion struct {
	fields []byte
	diff   []byte
}

func encodeVersion(version domain.Version) (encodedVersion, error) {
	fields := version.Fields
	if fields == nil {
		fields = domain.Fields{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return encodedVersion{}, fmt.Errorf("failed to marshal fields: %w", err)
	}
	diffJSON, err := json.Marshal(version.Diff)
	if err != nil {
		return encodedVersion{}, fmt.Errorf("failed to marshal diff: %w", err)
	}
	return encodedVersion{fields: fieldsJSON, diff: diffJSON}, nil
}

// buildVersion assembles a domain.Version from scanned columns.
func buildVersion(entityID string, number int, fieldsJSON []byte, hash string, diffJSON []byte, source string, rolledBackFrom int, createdAt time.Time) (domain.Version, error) {
	var fields domain.Fields
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return domain.Version{}, fmt.Errorf("failed to unmarshal fields of %s@v%d: %w", entityID, number, err)
		}
	}
	if fields == nil {
		fields = domain.Fields{}
	}

	diff := domain.ChangeSet{}
	if len(diffJSON) > 0 {
		if err := json.Unmarshal(diffJSON, &diff); err != nil {
			return domain.Version{}, fmt.Errorf("failed to unmarshal diff of %s@v%d: %w", entityID, number, err)
		}
	}

	if source == "" {
		source = string(domain.SourceIngest)
	}

	return domain.Version{
		EntityID:       entityID,
		VersionNumber:  number,
		Fields:         fields,
		ContentHash:    hash,
		Timestamp:      createdAt.UTC(),
		Diff:           diff,
		Source:         domain.VersionSource(source),
		RolledBackFrom: rolledBackFrom,
	}, nil
}

func sortVersions(versions []domain.Version, order domain.SortOrder) {
	sort.Slice(versions, func(i, j int) bool {
		if order == domain.Ascending {
			return versions[i].VersionNumber < versions[j].VersionNumber
		}
		return versions[i].VersionNumber > versions[j].VersionNumber
	})
}

func orderKeyword(order domain.SortOrder) string {
	if order == domain.Ascending {
		return "ASC"
	}
	return "DESC"
}

// uniqueIDs drops duplicates and empty ids while keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
