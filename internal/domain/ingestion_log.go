package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry captures a row that did not produce a version: a
// validation failure, a lost version race, or a store failure.
type IngestionLogEntry struct {
	ID           uuid.UUID `json:"id"`
	BatchID      uuid.UUID `json:"batch_id"`
	FileName     string    `json:"file_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	EntityID     string    `json:"entity_id,omitempty"`
	State        string    `json:"state"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
