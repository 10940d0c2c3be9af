// internal/workflow/fieldpath.go
package workflow

import (
	"strconv"
	"strings"
)

/*
 * Path extraction over decoded API responses.
 *
 * Paths are dot-separated keys, each optionally carrying one array index:
 *
 *   data.items[0].name    data -> items -> [0] -> name
 *   $.data                leading "$." is ignored
 *   "" or "$"             the whole input
 *
 * Any missing intermediate (absent key, index out of range, scalar where a
 * container is needed) yields not-found. Responses are the output of
 * encoding/json style decoding: map[string]any, []any and scalars.
 */

// pathSegment is one parsed dot-separated component.
type pathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// parsePath splits path into segments. A segment written "key[i]" becomes
// the key followed by the index; "[i]" alone is a bare index.
func parsePath(path string) []pathSegment {
	path = strings.TrimPrefix(path, "$.")
	if path == "" || path == "$" {
		return nil
	}
	parts := strings.Split(path, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		key, index, ok := splitIndex(part)
		if !ok {
			segs = append(segs, pathSegment{Key: part})
			continue
		}
		if key != "" {
			segs = append(segs, pathSegment{Key: key})
		}
		segs = append(segs, pathSegment{Index: index, IsIndex: true})
	}
	return segs
}

// splitIndex parses "key[12]". ok is false when part has no valid trailing
// index, in which case the whole part is a plain key.
func splitIndex(part string) (string, int, bool) {
	if !strings.HasSuffix(part, "]") {
		return "", 0, false
	}
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return "", 0, false
	}
	digits := part[open+1 : len(part)-1]
	if digits == "" {
		return "", 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, false
		}
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return part[:open], index, true
}

// ExtractPath returns the value at path inside data.
func ExtractPath(data any, path string) (any, bool) {
	return resolve(parsePath(path), data)
}

func resolve(path []pathSegment, current any) (any, bool) {
	if len(path) == 0 {
		return current, true
	}
	seg := path[0]
	remaining := path[1:]

	switch v := current.(type) {
	case map[string]any:
		if seg.IsIndex {
			val, ok := v[strconv.Itoa(seg.Index)]
			if !ok {
				return nil, false
			}
			return resolve(remaining, val)
		}
		val, ok := v[seg.Key]
		if !ok {
			return nil, false
		}
		return resolve(remaining, val)

	case []any:
		index := seg.Index
		if !seg.IsIndex {
			n, err := strconv.Atoi(seg.Key)
			if err != nil {
				return nil, false
			}
			index = n
		}
		if index < 0 || index >= len(v) {
			return nil, false
		}
		return resolve(remaining, v[index])

	default:
		// scalar or null with path left over
		return nil, false
	}
}
