package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/latestloader"
	"github.com/rpattn/verstore/internal/repository"
)

const (
	// DefaultIDField names the identifier column when none is configured.
	DefaultIDField = "StudyID"
)

// DefaultDateFields are coerced to dates unless configured otherwise.
var DefaultDateFields = []string{"StartDate", "EndDate"}

// State classifies what happened to one incoming record.
type State string

const (
	StateUnseen    State = "unseen"
	StateChanged   State = "changed"
	StateUnchanged State = "unchanged"
	StateInvalid   State = "invalid"
	StateConflict  State = "conflict"
	StateFailed    State = "failed"
)

// RecordOutcome reports the result of one incoming record.
type RecordOutcome struct {
	Row           int    `json:"row"`
	EntityID      string `json:"entityId,omitempty"`
	State         State  `json:"state"`
	VersionNumber int    `json:"versionNumber,omitempty"`
	Message       string `json:"message,omitempty"`
}

// BatchResult summarises an ingestion batch. Outcomes are in input order.
type BatchResult struct {
	BatchID   uuid.UUID       `json:"batchId"`
	Source    string          `json:"source,omitempty"`
	Outcomes  []RecordOutcome `json:"outcomes"`
	Inserted  int             `json:"inserted"`
	Unchanged int             `json:"unchanged"`
	Invalid   int             `json:"invalid"`
	Conflicts int             `json:"conflicts"`
	Failed    int             `json:"failed"`
}

// Engine turns batches of records into appended versions.
type Engine struct {
	store      repository.VersionStore
	logs       repository.IngestionLogRepository
	idField    string
	dateFields map[string]struct{}
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDField sets the identifier column.
func WithIDField(field string) Option {
	return func(e *Engine) {
		if field != "" {
			e.idField = field
		}
	}
}

// WithDateFields replaces the set of columns coerced to dates.
func WithDateFields(fields ...string) Option {
	return func(e *Engine) {
		e.dateFields = make(map[string]struct{}, len(fields))
		for _, field := range fields {
			e.dateFields[field] = struct{}{}
		}
	}
}

// WithClock overrides the time source used for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIngestionLog records invalid, conflicting and failed rows.
func WithIngestionLog(logs repository.IngestionLogRepository) Option {
	return func(e *Engine) {
		e.logs = logs
	}
}

// NewEngine creates an engine over store.
func NewEngine(store repository.VersionStore, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		idField: DefaultIDField,
		now:     time.Now,
		logger:  slog.Default(),
	}
	WithDateFields(DefaultDateFields...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IDField returns the configured identifier column.
func (e *Engine) IDField() string { return e.idField }

// WithIDFieldOverride returns a copy of e that reads a different identifier
// column, for one upload.
func (e *Engine) WithIDFieldOverride(field string) *Engine {
	if field == "" || field == e.idField {
		return e
	}
	clone := *e
	clone.idField = field
	return &clone
}

// pendingVersion is a version waiting to be appended, with the outcome slot
// it reports into.
type pendingVersion struct {
	outcome int
	version domain.Version
}

// Ingest processes records as one batch. See IngestSource.
func (e *Engine) Ingest(ctx context.Context, records []domain.Record) (BatchResult, error) {
	return e.IngestSource(ctx, "", records)
}

// IngestSource classifies every record against the latest stored version and
// appends the changed ones. Records for the same entity are applied in input
// order: the second changed row for an entity becomes latest+2. Invalid,
// conflicting and failed rows are reported per record. The returned error is
// non-nil only when the store could not be reached at all.
func (e *Engine) IngestSource(ctx context.Context, source string, records []domain.Record) (BatchResult, error) {
	result := BatchResult{
		BatchID:  uuid.New(),
		Source:   source,
		Outcomes: make([]RecordOutcome, len(records)),
	}
	now := e.now().UTC()

	type normalized struct {
		entityID string
		fields   domain.Fields
	}
	valid := make([]*normalized, len(records))
	ids := make([]string, 0, len(records))
	for i, record := range records {
		result.Outcomes[i].Row = record.Row
		entityID, fields, err := e.Normalize(record)
		if err != nil {
			result.Outcomes[i].EntityID = entityID
			result.Outcomes[i].State = StateInvalid
			result.Outcomes[i].Message = err.Error()
			continue
		}
		result.Outcomes[i].EntityID = entityID
		valid[i] = &normalized{entityID: entityID, fields: fields}
		ids = append(ids, entityID)
	}

	view, err := latestloader.NewLatestLoader(e.store).LoadMany(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load latest versions: %w", err)
	}

	// waves[k] holds the k-th new version of each entity in this batch.
	var waves [][]pendingVersion
	depth := make(map[string]int)
	for i, item := range valid {
		if item == nil {
			continue
		}
		outcome := &result.Outcomes[i]
		latest, seen := view[item.entityID]

		var next domain.Version
		switch {
		case !seen:
			next = domain.NewInitialVersion(item.entityID, item.fields, now)
			outcome.State = StateUnseen
		case latest.ContentHash == domain.Fingerprint(item.fields):
			outcome.State = StateUnchanged
			outcome.VersionNumber = latest.VersionNumber
			continue
		default:
			stamp := now
			if stamp.Before(latest.Timestamp) {
				stamp = latest.Timestamp
			}
			next = latest.Successor(item.fields, stamp)
			outcome.State = StateChanged
		}

		outcome.VersionNumber = next.VersionNumber
		view[item.entityID] = next
		level := depth[item.entityID]
		depth[item.entityID] = level + 1
		if level == len(waves) {
			waves = append(waves, nil)
		}
		waves[level] = append(waves[level], pendingVersion{outcome: i, version: next})
	}

	attempted, unavailable := e.appendWaves(ctx, waves, result.Outcomes)

	result.tally()
	e.logger.InfoContext(ctx, "ingested batch",
		"batch_id", result.BatchID,
		"source", source,
		"records", len(records),
		"inserted", result.Inserted,
		"unchanged", result.Unchanged,
		"invalid", result.Invalid,
		"conflicts", result.Conflicts,
		"failed", result.Failed,
	)
	e.recordFailures(ctx, result)

	if attempted > 0 && unavailable == attempted {
		return result, fmt.Errorf("failed to append versions: %w", domain.ErrStoreUnavailable)
	}
	return result, nil
}

// appendWaves writes one wave at a time so a version is only attempted once
// its predecessor from the same batch is stored. It returns how many versions
// reached the store and how many of those failed as unavailable.
func (e *Engine) appendWaves(ctx context.Context, waves [][]pendingVersion, outcomes []RecordOutcome) (attempted int, unavailable int) {
	blocked := make(map[string]string)
	for _, wave := range waves {
		batch := make([]domain.Version, 0, len(wave))
		slots := make([]int, 0, len(wave))
		for _, item := range wave {
			if reason, ok := blocked[item.version.EntityID]; ok {
				outcomes[item.outcome].State = StateFailed
				outcomes[item.outcome].Message = fmt.Sprintf("not written: %s", reason)
				continue
			}
			batch = append(batch, item.version)
			slots = append(slots, item.outcome)
		}
		if len(batch) == 0 {
			continue
		}

		results := e.store.BulkAppend(ctx, batch)
		attempted += len(results)
		for j, res := range results {
			outcome := &outcomes[slots[j]]
			switch res.Status {
			case repository.AppendInserted:
				continue
			case repository.AppendConflict:
				outcome.State = StateConflict
				outcome.Message = fmt.Sprintf("version %d already exists; retry to recompute", res.Version.VersionNumber)
			default:
				outcome.State = StateFailed
				if res.Err != nil {
					outcome.Message = res.Err.Error()
				}
				if errors.Is(res.Err, domain.ErrStoreUnavailable) {
					unavailable++
				}
			}
			blocked[res.Version.EntityID] = fmt.Sprintf("version %d of %s was not stored", res.Version.VersionNumber, res.Version.EntityID)
		}
	}
	return attempted, unavailable
}

func (r *BatchResult) tally() {
	for _, outcome := range r.Outcomes {
		switch outcome.State {
		case StateUnseen, StateChanged:
			r.Inserted++
		case StateUnchanged:
			r.Unchanged++
		case StateInvalid:
			r.Invalid++
		case StateConflict:
			r.Conflicts++
		case StateFailed:
			r.Failed++
		}
	}
}

func (e *Engine) recordFailures(ctx context.Context, result BatchResult) {
	if e.logs == nil {
		return
	}
	for _, outcome := range result.Outcomes {
		switch outcome.State {
		case StateInvalid, StateConflict, StateFailed:
		default:
			continue
		}
		row := outcome.Row
		entry := domain.IngestionLogEntry{
			BatchID:      result.BatchID,
			FileName:     result.Source,
			RowNumber:    &row,
			EntityID:     outcome.EntityID,
			State:        string(outcome.State),
			ErrorMessage: outcome.Message,
			CreatedAt:    e.now().UTC(),
		}
		if err := e.logs.Record(ctx, entry); err != nil {
			e.logger.WarnContext(ctx, "failed to record ingestion log", "batch_id", result.BatchID, "row", row, "err", err)
		}
	}
}
