package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresInsertionOrder(t *testing.T) {
	a := Fields{}
	a["Name"] = String("A")
	a["Dose"] = Number(10)
	a["Site"] = String("Oslo")

	b := Fields{}
	b["Site"] = String("Oslo")
	b["Dose"] = Number(10)
	b["Name"] = String("A")

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), FingerprintLength)
}

func TestFingerprintDistinguishesTypes(t *testing.T) {
	asText := Fields{"Dose": String("10")}
	asNumber := Fields{"Dose": Number(10)}

	assert.NotEqual(t, Fingerprint(asText), Fingerprint(asNumber))
}

func TestFingerprintNormalisesEquivalentValues(t *testing.T) {
	tests := []struct {
		name string
		a    Value
		b    Value
	}{
		{"integer and float", Number(10), Number(10.0)},
		{"negative zero", Number(0), Number(-0.0)},
		{"date in other zone", NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), NewDate(time.Date(2024, 3, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600)))},
		{"nfc and nfd strings", String("caf\u00e9"), String("cafe\u0301")},
		{"list order", List{String("x"), String("y")}, List{String("y"), String("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Fingerprint(Fields{"f": tt.a}), Fingerprint(Fields{"f": tt.b}))
			assert.True(t, Equal(tt.a, tt.b))
		})
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base := Fields{"Name": String("A"), "Dose": Number(10)}
	changed := Fields{"Name": String("A"), "Dose": Number(20)}
	extra := Fields{"Name": String("A"), "Dose": Number(10), "Note": String("")}

	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(extra))
}

func TestCanonicalJSONLayout(t *testing.T) {
	fields := Fields{
		"b": Number(1.5),
		"a": String("<x>"),
		"c": Object{"z": Bool(true), "y": Null{}},
	}

	got := string(CanonicalFields(fields))
	want := `{"t":"object","v":{"a":{"t":"string","v":"<x>"},"b":{"t":"number","v":1.5},"c":{"t":"object","v":{"y":{"t":"null"},"z":{"t":"bool","v":true}}}}}`
	assert.Equal(t, want, got)
}

func TestFieldsJSONRoundTripKeepsTypes(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	fields := Fields{
		"Name":      String("A"),
		"Dose":      Number(12.5),
		"Active":    Bool(true),
		"StartDate": NewDate(start),
		"Tags":      List{String("a"), Number(2)},
		"Meta":      Object{"site": String("Oslo")},
	}

	encoded, err := fields.MarshalJSON()
	require.NoError(t, err)

	var decoded Fields
	require.NoError(t, decoded.UnmarshalJSON(encoded))

	assert.Equal(t, Fingerprint(fields), Fingerprint(decoded))
	date, ok := decoded["StartDate"].(Date)
	require.True(t, ok, "StartDate decoded as %T", decoded["StartDate"])
	assert.True(t, date.Time().Equal(start))
}

func TestNormalizeKeysAgreesWithFingerprint(t *testing.T) {
	decomposed := Fields{"Cafe\u0301": Object{"n\u0303": Number(1)}}
	composed := Fields{"Caf\u00e9": Object{"\u00f1": Number(1)}}

	normalized, err := NormalizeKeys(decomposed)
	require.NoError(t, err)
	assert.Equal(t, composed, normalized)
	assert.Equal(t, Fingerprint(decomposed), Fingerprint(normalized))
	assert.Empty(t, DiffFields(composed, normalized))

	_, err = NormalizeKeys(Fields{"Cafe\u0301": String("a"), "Caf\u00e9": String("b")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFromAnyRejectsNonFiniteNumbers(t *testing.T) {
	for _, raw := range []any{math.NaN(), math.Inf(1), float32(math.Inf(-1))} {
		_, err := FromAny(raw)
		assert.ErrorIs(t, err, ErrValidation)
	}

	v, err := FromAny(2.5)
	require.NoError(t, err)
	_, err = MarshalValue(v)
	assert.NoError(t, err)
}
