package records

import (
	"encoding/json"
	"strconv"
)

// idFields lists the keys a record id may be returned under.
var idFields = []string{"id", "Id", "ID"}

// Record is one row as the backend returns it.
type Record map[string]any

// ID returns the record id as a string.
func (r Record) ID() (string, bool) {
	for _, field := range idFields {
		switch v := r[field].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case json.Number:
			return v.String(), true
		case int:
			return strconv.Itoa(v), true
		}
	}
	return "", false
}

// String returns a field as text, or "" if it is missing.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
