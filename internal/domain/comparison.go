package domain

import "encoding/json"

// MissingText is how an absent field is displayed in comparison tables.
const MissingText = "<missing>"

// ComparisonRow is one line of a field by field comparison of two versions.
// A field absent on one side has Present{A,B} false and a nil value; absence
// is itself a difference.
type ComparisonRow struct {
	Field    string
	ValueA   Value
	ValueB   Value
	PresentA bool
	PresentB bool
	Changed  bool
}

// DisplayA renders side A for tables.
func (r ComparisonRow) DisplayA() string { return displaySide(r.ValueA, r.PresentA) }

// DisplayB renders side B for tables.
func (r ComparisonRow) DisplayB() string { return displaySide(r.ValueB, r.PresentB) }

func displaySide(v Value, present bool) string {
	if !present {
		return MissingText
	}
	return Display(v)
}

type comparisonRowJSON struct {
	Field    string `json:"field"`
	ValueA   any    `json:"valueA"`
	ValueB   any    `json:"valueB"`
	PresentA bool   `json:"presentA"`
	PresentB bool   `json:"presentB"`
	Changed  bool   `json:"changed"`
}

// MarshalJSON renders values in their native form.
func (r ComparisonRow) MarshalJSON() ([]byte, error) {
	out := comparisonRowJSON{
		Field:    r.Field,
		PresentA: r.PresentA,
		PresentB: r.PresentB,
		Changed:  r.Changed,
	}
	if r.PresentA && r.ValueA != nil {
		out.ValueA = r.ValueA.Native()
	}
	if r.PresentB && r.ValueB != nil {
		out.ValueB = r.ValueB.Native()
	}
	return json.Marshal(out)
}
