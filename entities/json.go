package entities

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var errInvalidJSONColumn = errors.New("unsupported source type for json column")

// Peaks is a downsampled amplitude envelope stored as a jsonb column.
// Values are normalized max-abs magnitudes in [0, 1].
type Peaks []float64

func (p Peaks) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *Peaks) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("%w: %T", errInvalidJSONColumn, src)
}

// Metadata is a free-form jsonb column for processing bookkeeping.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("%w: %T", errInvalidJSONColumn, src)
}
