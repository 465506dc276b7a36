// Package fieldparse contains pure parsers for the loosely typed scalar
// fields the upstream listing APIs emit: salary strings, abbreviated view
// counts, phone numbers, coordinate mappings, and Baku-offset timestamps.
package fieldparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	salaryNumberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	phoneCharsRe   = regexp.MustCompile(`[^\d+\-\(\)\s]`)
	phoneSpacesRe  = regexp.MustCompile(`\s+`)
)

// ParseSalary extracts a numeric amount from a salary value, which may be a
// number or free text like "800 AZN". It returns the amount, the original
// text representation, and whether a numeric amount was found.
func ParseSalary(v any) (float64, string, bool) {
	if v == nil {
		return 0, "", false
	}

	text := strings.TrimSpace(stringify(v))
	if text == "" || text == "0" {
		return 0, text, false
	}

	match := salaryNumberRe.FindString(strings.ReplaceAll(text, ",", ""))
	if match == "" {
		return 0, text, false
	}
	amount, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, text, false
	}
	return amount, text, true
}

// ParseViewCount parses a view counter that may be numeric or carry a
// thousands suffix ("1.2K"). Unparseable values yield 0.
func ParseViewCount(v any) int {
	if v == nil {
		return 0
	}

	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return 0
	}

	if strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k") {
		base, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0
		}
		return int(base * 1000)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// FormatPhone strips decoration from a raw phone string, keeping digits,
// the leading plus, dashes, and parentheses, with runs of whitespace
// collapsed to single spaces.
func FormatPhone(phone string) string {
	if phone == "" {
		return ""
	}
	cleaned := phoneCharsRe.ReplaceAllString(strings.TrimSpace(phone), "")
	return strings.TrimSpace(phoneSpacesRe.ReplaceAllString(cleaned, " "))
}

// Coordinates extracts latitude and longitude from a coordinates mapping
// with "lat" and "lng" keys. Zero or missing values report ok=false.
func Coordinates(v any) (lat, lng float64, ok bool) {
	m, isMap := v.(map[string]any)
	if !isMap {
		return 0, 0, false
	}

	lat, latOK := toFloat(m["lat"])
	lng, lngOK := toFloat(m["lng"])
	if !latOK || !lngOK || lat == 0 || lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}

// ParseDate parses the ISO timestamps both upstream APIs emit. It is
// intentionally narrow: the string must contain a literal 'T' and carry the
// +04:00 (Baku) offset; anything else reports ok=false rather than guessing.
func ParseDate(s string) (time.Time, bool) {
	if s == "" || !strings.Contains(s, "T") || !strings.HasSuffix(s, "+04:00") {
		return time.Time{}, false
	}

	t, err := time.Parse("2006-01-02T15:04:05-07:00", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing ".000000".
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
