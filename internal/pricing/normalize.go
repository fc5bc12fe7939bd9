// Package pricing converts loosely formatted price values into whole-currency integers.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// taxExcludedMarkers signal that a quoted price does not include VAT.
var taxExcludedMarkers = []string{"vat 별도", "(별도)"}

// TaxExcluded reports whether s states that the price excludes tax.
func TaxExcluded(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range taxExcludedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Normalize returns raw as an integer amount, or nil when no amount can be read.
//
// Numbers pass through (floats are truncated). Strings keep only digits and
// thousands separators; a tax-exclusive marker in the original text adds 10%.
func Normalize(raw any) *int64 {
	switch v := raw.(type) {
	case nil:
		return nil
	case int:
		return ptr(int64(v))
	case int32:
		return ptr(int64(v))
	case int64:
		return ptr(v)
	case float32:
		return fromFloat(float64(v))
	case float64:
		return fromFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return ptr(n)
		}
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return fromFloat(f)
	case string:
		return fromString(v)
	case *string:
		if v == nil {
			return nil
		}
		return fromString(*v)
	}
	return nil
}

func fromString(s string) *int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	if TaxExcluded(s) {
		if n > math.MaxInt64/11 {
			return nil
		}
		n = n * 11 / 10
	}
	return &n
}

func fromFloat(f float64) *int64 {
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	return ptr(int64(f))
}

func ptr(n int64) *int64 { return &n }
