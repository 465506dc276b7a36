package pagination

import (
	"strconv"
	"strings"
)

// lookupPath resolves a dot-separated path inside a decoded JSON document.
// Numeric segments index into arrays, so "data.0.data.last_page" reaches
// into the nested envelope some listing APIs wrap their payloads in.
func lookupPath(doc any, path string) (any, bool) {
	current := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// lookupItems resolves a path to a list of item mappings. Non-map list
// entries are skipped.
func lookupItems(doc any, path string) ([]map[string]any, bool) {
	raw, ok := lookupPath(doc, path)
	if !ok {
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, isMap := entry.(map[string]any); isMap {
			items = append(items, m)
		}
	}
	return items, true
}

// lookupInt resolves a path to an integer, accepting the float64 form JSON
// numbers decode to, plus numeric strings.
func lookupInt(doc any, path string) (int, bool) {
	raw, ok := lookupPath(doc, path)
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// lookupString resolves a path to a string.
func lookupString(doc any, path string) (string, bool) {
	raw, ok := lookupPath(doc, path)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
