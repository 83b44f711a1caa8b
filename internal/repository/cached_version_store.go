package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rpattn/verstore/internal/domain"
)

const latestKeyPrefix = "verstore:latest:"

// storeIfNewer writes the cached document only when its version number is
// higher than the one already cached.
var storeIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'n')
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'n', ARGV[1], 'doc', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// CachedVersionStore keeps the latest version of each entity in Redis in
// front of another VersionStore. Writes always go to the inner store first.
// Cache failures are logged and reads fall through to the inner store.
type CachedVersionStore struct {
	inner  VersionStore
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedVersionStore decorates inner with a Redis latest-version cache.
func NewCachedVersionStore(inner VersionStore, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedVersionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedVersionStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func latestKey(entityID string) string {
	return latestKeyPrefix + entityID
}

func (s *CachedVersionStore) GetLatest(ctx context.Context, entityID string) (domain.Version, error) {
	if version, ok := s.readCached(ctx, entityID); ok {
		return version, nil
	}
	version, err := s.inner.GetLatest(ctx, entityID)
	if err != nil {
		return domain.Version{}, err
	}
	s.remember(ctx, version)
	return version, nil
}

func (s *CachedVersionStore) GetLatestMany(ctx context.Context, entityIDs []string) (map[string]domain.Version, error) {
	ids := uniqueIDs(entityIDs)
	out := make(map[string]domain.Version, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, latestKey(id), "doc")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "latest cache lookup failed", "err", err)
	}

	missing := make([]string, 0, len(ids))
	for i, id := range ids {
		raw, err := cmds[i].Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		version, decodeErr := decodeCached(raw)
		if decodeErr != nil {
			s.logger.WarnContext(ctx, "discarding unreadable cache entry", "entity_id", id, "err", decodeErr)
			missing = append(missing, id)
			continue
		}
		out[id] = version
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := s.inner.GetLatestMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, version := range loaded {
		out[id] = version
		s.remember(ctx, version)
	}
	return out, nil
}

func (s *CachedVersionStore) GetVersion(ctx context.Context, entityID string, versionNumber int) (domain.Version, error) {
	return s.inner.GetVersion(ctx, entityID, versionNumber)
}

func (s *CachedVersionStore) ListVersions(ctx context.Context, entityID string, order domain.SortOrder) ([]domain.Version, error) {
	return s.inner.ListVersions(ctx, entityID, order)
}

func (s *CachedVersionStore) ListEntityIDs(ctx context.Context) ([]string, error) {
	return s.inner.ListEntityIDs(ctx)
}

func (s *CachedVersionStore) ListLatest(ctx context.Context) ([]domain.Version, error) {
	return s.inner.ListLatest(ctx)
}

func (s *CachedVersionStore) AppendVersion(ctx context.Context, version domain.Version) error {
	if err := s.inner.AppendVersion(ctx, version); err != nil {
		return err
	}
	s.remember(ctx, version)
	return nil
}

func (s *CachedVersionStore) BulkAppend(ctx context.Context, versions []domain.Version) []AppendResult {
	results := s.inner.BulkAppend(ctx, versions)
	for _, result := range results {
		if result.Status == AppendInserted {
			s.remember(ctx, result.Version)
		}
	}
	return results
}

func (s *CachedVersionStore) readCached(ctx context.Context, entityID string) (domain.Version, bool) {
	raw, err := s.client.HGet(ctx, latestKey(entityID), "doc").Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "latest cache read failed", "entity_id", entityID, "err", err)
		}
		return domain.Version{}, false
	}
	version, err := decodeCached(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable cache entry", "entity_id", entityID, "err", err)
		return domain.Version{}, false
	}
	return version, true
}

func (s *CachedVersionStore) remember(ctx context.Context, version domain.Version) {
	doc, err := json.Marshal(version)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode cache entry", "entity_id", version.EntityID, "err", err)
		return
	}
	err = storeIfNewer.Run(ctx, s.client,
		[]string{latestKey(version.EntityID)},
		strconv.Itoa(version.VersionNumber),
		string(doc),
		strconv.FormatInt(s.ttl.Milliseconds(), 10),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "latest cache write failed", "entity_id", version.EntityID, "err", err)
	}
}

func decodeCached(raw []byte) (domain.Version, error) {
	var version domain.Version
	if err := json.Unmarshal(raw, &version); err != nil {
		return domain.Version{}, err
	}
	if version.Fields == nil {
		version.Fields = domain.Fields{}
	}
	return version, nil
}
