package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/verstore/internal/domain"
)

type memoryIngestionLogRepository struct {
	mu      sync.Mutex
	entries []domain.IngestionLogEntry
	now     func() time.Time
}

// NewMemoryIngestionLogRepository keeps ingestion logs in process memory.
func NewMemoryIngestionLogRepository() IngestionLogRepository {
	return &memoryIngestionLogRepository{now: time.Now}
}

func (r *memoryIngestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.ID = uuid.New()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

// List returns newest entries first, then by row number.
func (r *memoryIngestionLogRepository) List(ctx context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)

	r.mu.Lock()
	matched := make([]domain.IngestionLogEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		if batchID == uuid.Nil || r.entries[i].BatchID == batchID {
			matched = append(matched, r.entries[i])
		}
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return rowOf(matched[i]) < rowOf(matched[j])
	})

	if offset >= len(matched) {
		return []domain.IngestionLogEntry{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func rowOf(entry domain.IngestionLogEntry) int {
	if entry.RowNumber == nil {
		return 0
	}
	return *entry.RowNumber
}
