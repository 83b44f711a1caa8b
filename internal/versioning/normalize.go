package versioning

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/verstore/internal/domain"
)

// Normalize extracts the entity id from record and returns the domain fields
// that get hashed and stored. The identifier column, bookkeeping columns and
// blank cells are dropped; declared date columns become Date values. Keys are
// NFC normalised.
func (e *Engine) Normalize(record domain.Record) (string, domain.Fields, error) {
	if record.Err != nil {
		entityID, _ := domain.EntityIDFromValue(record.Fields[e.idField])
		return entityID, nil, &domain.ValidationError{Row: record.Row, Reason: record.Err.Error()}
	}

	raw, ok := record.Fields[e.idField]
	if !ok {
		return "", nil, &domain.ValidationError{Row: record.Row, Field: e.idField, Reason: "identifier column is missing"}
	}
	entityID, err := domain.EntityIDFromValue(raw)
	if err != nil {
		return "", nil, &domain.ValidationError{Row: record.Row, Field: e.idField, Reason: err.Error()}
	}

	fields := make(domain.Fields, len(record.Fields))
	for key, value := range record.Fields {
		if key == e.idField || domain.IsBookkeeping(key) {
			continue
		}
		if value == nil {
			continue
		}
		if _, isNull := value.(domain.Null); isNull {
			continue
		}
		if s, isString := value.(domain.String); isString && s == "" {
			continue
		}

		if _, isDate := e.dateFields[key]; isDate {
			date, err := coerceDate(value)
			if err != nil {
				return entityID, nil, &domain.ValidationError{Row: record.Row, Field: key, Reason: err.Error()}
			}
			value = date
		}
		fields[key] = value
	}

	fields, err = domain.NormalizeKeys(fields)
	if err != nil {
		return entityID, nil, &domain.ValidationError{Row: record.Row, Reason: err.Error()}
	}
	return entityID, fields, nil
}

// coerceDate accepts Date values, text in one of the supported layouts, and
// spreadsheet serial numbers.
func coerceDate(value domain.Value) (domain.Date, error) {
	switch typed := value.(type) {
	case domain.Date:
		return typed, nil
	case domain.String:
		ts, err := domain.ParseTimestamp(string(typed))
		if err != nil {
			return domain.Date{}, err
		}
		return domain.NewDate(ts), nil
	case domain.Number:
		serial := float64(typed)
		if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
			return domain.Date{}, fmt.Errorf("%v is not a valid spreadsheet date serial", serial)
		}
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return domain.Date{}, err
		}
		return domain.NewDate(ts), nil
	default:
		return domain.Date{}, fmt.Errorf("a %s value cannot be read as a date", value.Kind())
	}
}
