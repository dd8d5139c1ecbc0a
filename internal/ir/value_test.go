package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("x")
	var _ Value = Int(1)
	var _ Value = Bool(true)
}

func TestToValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"string", "abc", String("abc")},
		{"int", 7, Int(7)},
		{"int64", int64(-3), Int(-3)},
		{"integral float", float64(42), Int(42)},
		{"bool", true, Bool(true)},
		{"json number", json.Number("12"), Int(12)},
		{"time", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), String("2024-03-01T10:00:00Z")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToValue(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToValueRejectsFractionsAndNesting(t *testing.T) {
	_, err := ToValue(3.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fractional")

	_, err = ToValue(map[string]any{"a": 1})
	require.Error(t, err)

	_, err = ToValue(json.Number("1.5"))
	require.Error(t, err)
}

func TestRowIntNormalizesMissingToZero(t *testing.T) {
	row := Row{
		"A": Int(5),
		"B": Null{},
		"C": String("17"),
		"D": String("not a number"),
	}

	assert.Equal(t, int64(5), row.Int("A"))
	assert.Equal(t, int64(0), row.Int("B"))
	assert.Equal(t, int64(17), row.Int("C"))
	assert.Equal(t, int64(0), row.Int("D"))
	assert.Equal(t, int64(0), row.Int("Missing"))
}

func TestRowGUID(t *testing.T) {
	id := uuid.New()
	row := Row{
		"Good":  String(id.String()),
		"Nil":   String(uuid.Nil.String()),
		"Empty": String(""),
		"Bad":   String("not-a-guid"),
	}

	got, ok := row.GUID("Good")
	require.True(t, ok)
	assert.Equal(t, id, got)

	for _, col := range []string{"Nil", "Empty", "Bad", "Missing"} {
		_, ok := row.GUID(col)
		assert.False(t, ok, col)
	}
}

func TestRowHasAndClone(t *testing.T) {
	row := Row{"A": Int(1), "B": Null{}}
	assert.True(t, row.Has("A"))
	assert.False(t, row.Has("B"))
	assert.False(t, row.Has("C"))

	c := row.Clone()
	c.SetInt("A", 2)
	assert.Equal(t, int64(1), row.Int("A"), "clone must not alias")
}

func TestRowJSONKeepsTypes(t *testing.T) {
	row := Row{
		"Name":  String("logo.png"),
		"Size":  Int(1024),
		"Flag":  Bool(false),
		"Empty": Null{},
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"Empty":null,"Flag":false,"Name":"logo.png","Size":1024}`, string(data))

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row, back)
}

func TestRowUnmarshalRejectsFloat(t *testing.T) {
	var row Row
	err := json.Unmarshal([]byte(`{"Size":1.5}`), &row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Size")
}

func TestRowFromMap(t *testing.T) {
	row, err := RowFromMap(map[string]any{"ID": 3, "Name": "x", "Gone": nil})
	require.NoError(t, err)
	assert.Equal(t, Row{"ID": Int(3), "Name": String("x"), "Gone": Null{}}, row)

	_, err = RowFromMap(map[string]any{"Bad": []any{1}})
	require.Error(t, err)
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) and sorts before U+E000.
	m := map[string]int{
		"\uE000":     1,
		"\U00010000": 2,
		"a":          3,
	}
	assert.Equal(t, []string{"a", "\U00010000", "\uE000"}, sortedKeys(m))
}
