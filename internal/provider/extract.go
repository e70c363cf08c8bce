// Package provider holds helpers shared by the source adapters.
package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ExtractInt normalizes an integer field from a decoded JSON payload.
//
// The fetch client decodes numbers as json.Number; cached files read with
// encoding/json defaults produce float64; Understat ships ids as strings.
// All three are accepted. Returns ok=false if val is not an integral number.
func ExtractInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
		if f, err := v.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case float64:
		return floatToInt(v)
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ExtractString returns val if it is a non-empty string.
func ExtractString(val interface{}) (string, bool) {
	s, ok := val.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
