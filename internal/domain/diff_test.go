package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffFieldsClassifiesChanges(t *testing.T) {
	oldFields := Fields{
		"Name":   String("A"),
		"Dose":   Number(10),
		"Status": String("open"),
	}
	newFields := Fields{
		"Name": String("A"),
		"Dose": Number(20),
		"Site": String("Oslo"),
	}

	diff := DiffFields(oldFields, newFields)

	require.Equal(t, []string{"Dose", "Site", "Status"}, diff.Paths())

	dose, ok := diff.Get("Dose")
	require.True(t, ok)
	assert.Equal(t, ChangeChanged, dose.Kind)
	assert.Equal(t, Number(10), dose.Old)
	assert.Equal(t, Number(20), dose.New)

	site, _ := diff.Get("Site")
	assert.Equal(t, ChangeAdded, site.Kind)
	assert.Nil(t, site.Old)

	status, _ := diff.Get("Status")
	assert.Equal(t, ChangeRemoved, status.Kind)
	assert.Nil(t, status.New)

	_, ok = diff.Get("Name")
	assert.False(t, ok, "unchanged fields must not appear")
}

func TestDiffFieldsIdenticalIsEmpty(t *testing.T) {
	fields := Fields{"Name": String("A"), "Tags": List{String("x"), String("y")}}
	reordered := Fields{"Tags": List{String("y"), String("x")}, "Name": String("A")}

	assert.True(t, DiffFields(fields, reordered).IsEmpty())
}

func TestDiffFieldsRecursesIntoObjects(t *testing.T) {
	oldFields := Fields{"Meta": Object{"color": String("red"), "size": Number(10)}}
	newFields := Fields{"Meta": Object{"color": String("blue"), "size": Number(10), "shape": String("round")}}

	diff := DiffFields(oldFields, newFields)

	assert.Equal(t, []string{"Meta.color", "Meta.shape"}, diff.Paths())
}

func TestDiffFieldsTypeChangeIsChange(t *testing.T) {
	diff := DiffFields(Fields{"Dose": String("10")}, Fields{"Dose": Number(10)})

	require.Len(t, diff, 1)
	assert.Equal(t, ChangeChanged, diff[0].Kind)
}

func TestChangeSetJSON(t *testing.T) {
	diff := DiffFields(
		Fields{"Dose": Number(10), "Start": NewDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
		Fields{"Dose": Number(20)},
	)

	encoded, err := json.Marshal(diff)
	require.NoError(t, err)

	var decoded ChangeSet
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, diff.Paths(), decoded.Paths())
	start, _ := decoded.Get("Start")
	assert.Equal(t, ChangeRemoved, start.Kind)
	assert.IsType(t, Date{}, start.Old)

	plain, err := diff.PlainJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Dose":{"kind":"changed","new":20,"old":10},"Start":{"kind":"removed","old":"2024-01-01T00:00:00Z"}}`, plain)
}

func TestEmptyChangeSetEncodesAsObject(t *testing.T) {
	encoded, err := json.Marshal(ChangeSet(nil))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(encoded))
}

func TestCanonicalLines(t *testing.T) {
	fields := Fields{
		"name": String("base"),
		"metadata": Object{
			"color": String("red"),
			"size":  Number(10),
		},
		"tags": List{String("beta"), String("alpha")},
	}

	expected := []string{
		`  metadata.color: "red"`,
		`  metadata.size: 10`,
		`  name: "base"`,
		`  tags: {"t":"list","v":[{"t":"string","v":"alpha"},{"t":"string","v":"beta"}]}`,
	}

	assert.Equal(t, expected, CanonicalLines(fields))
	assert.Equal(t, []string{"  (empty)"}, CanonicalLines(Fields{}))
}

func TestRenderUnified(t *testing.T) {
	base := Fields{
		"name":     String("Base"),
		"metadata": Object{"color": String("red")},
	}
	target := Fields{
		"name":     String("Target"),
		"metadata": Object{"color": String("blue")},
		"count":    Number(2),
	}

	diff := RenderUnified("S1@v1", base, "S1@v2", target)

	assert.True(t, strings.HasPrefix(diff, "--- S1@v1\n+++ S1@v2\n"), diff)
	assert.Contains(t, diff, "-  metadata.color: \"red\"")
	assert.Contains(t, diff, "+  metadata.color: \"blue\"")
	assert.Contains(t, diff, "+  count: 2")
	assert.Contains(t, diff, "-  name: \"Base\"")
}
