package models

import (
	"database/sql/driver"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Vector is an embedding vector stored as a JSON float array in a TEXT
// column. It implements sql.Scanner and driver.Valuer so GORM can persist
// it directly.
type Vector []float32

// Scan implements sql.Scanner. Accepts JSON arrays ("[0.1,0.2]") and the
// pgvector-style bracketed form with arbitrary whitespace. Unparseable data
// yields a nil vector rather than an error so that one corrupt row cannot
// fail a whole batch fetch; callers drop and log empty embeddings.
func (v *Vector) Scan(src interface{}) error {
	var raw string
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		raw = s
	case []byte:
		raw = string(s)
	default:
		*v = nil
		return nil
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		*v = nil
		return nil
	}

	var parsed []float32
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		*v = parsed
		return nil
	}

	// Fallback: bracketed comma-separated floats without valid JSON syntax.
	trimmed := strings.Trim(raw, "[]")
	if trimmed == "" {
		*v = nil
		return nil
	}
	parts := strings.Split(trimmed, ",")
	parsed = make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			*v = nil
			return nil
		}
		parsed = append(parsed, float32(f))
	}
	*v = parsed
	return nil
}

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// IsZero reports whether the vector is empty or all components are zero.
// A zero centroid on a populated cluster is a corruption state repaired by
// maintenance.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
