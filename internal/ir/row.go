package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Row is one record of a payload table, keyed by column name.
type Row map[string]Value

// Int returns an integer column. Null, absent and unparsable values
// normalize to 0 so that "no value" compares equal everywhere downstream.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case Int:
		return int64(v)
	case String:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	case Bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// String returns a text column; non-string values are formatted.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case String:
		return string(v)
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Bool:
		return strconv.FormatBool(bool(v))
	default:
		return ""
	}
}

// Bool returns a boolean column. Integers are truthy when non-zero.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case Bool:
		return bool(v)
	case Int:
		return v != 0
	case String:
		b, _ := strconv.ParseBool(string(v))
		return b
	default:
		return false
	}
}

// GUID parses a GUID column. Returns uuid.Nil and false when the column
// is absent, empty, unparsable or the nil GUID.
func (r Row) GUID(col string) (uuid.UUID, bool) {
	s := r.String(col)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Has reports whether the column is present and not null.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	if !ok {
		return false
	}
	_, isNull := v.(Null)
	return !isNull
}

// SetInt sets an integer column.
func (r Row) SetInt(col string, v int64) {
	r[col] = Int(v)
}

// SetString sets a text column.
func (r Row) SetString(col, v string) {
	r[col] = String(v)
}

// Clone returns a shallow copy. Values are immutable so shallow is enough.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// MarshalJSON writes columns in canonical key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range sortedKeys(r) {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalValue(r[k])
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object into typed cells.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	row := make(Row, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", k, err)
		}
		row[k] = val
	}
	*r = row
	return nil
}

// RowFromMap converts a decoded map (YAML or JSON) into a Row.
func RowFromMap(m map[string]any) (Row, error) {
	row := make(Row, len(m))
	for k, v := range m {
		val, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		row[k] = val
	}
	return row, nil
}
