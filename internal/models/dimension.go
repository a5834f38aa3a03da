package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Dimension is a declared image width or height. SharePoint does not guarantee
// a numeric type here: web part properties carry numbers, scraped placeholder
// attributes carry strings, and either may be missing entirely. A Dimension
// round-trips whatever it was given and exposes a numeric view on demand.
type Dimension struct {
	raw json.RawMessage
}

// Dim builds a Dimension from a number, for tests and synthetic records.
func Dim(v float64) Dimension {
	b, _ := json.Marshal(v)
	return Dimension{raw: b}
}

// DimString builds a Dimension holding a string value.
func DimString(s string) Dimension {
	b, _ := json.Marshal(s)
	return Dimension{raw: b}
}

// Float returns the numeric value and whether one could be derived.
func (d Dimension) Float() (float64, bool) {
	if len(d.raw) == 0 || bytes.Equal(d.raw, []byte("null")) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(d.raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(d.raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// IsZero reports whether no value is present at all.
func (d Dimension) IsZero() bool {
	return len(d.raw) == 0 || bytes.Equal(d.raw, []byte("null"))
}

func (d Dimension) MarshalJSON() ([]byte, error) {
	if len(d.raw) == 0 {
		return []byte("null"), nil
	}
	return d.raw, nil
}

func (d *Dimension) UnmarshalJSON(b []byte) error {
	d.raw = append(d.raw[:0], b...)
	return nil
}
