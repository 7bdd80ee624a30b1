// Package headers converts between raw header blocks and lower-cased header maps.
//
// The conversion is lossy: names are folded to lower case, whitespace is trimmed,
// empty pairs are dropped and Format sorts by name. Format(Parse(s)) is therefore
// not s in general, but it is stable after the first round trip.
package headers

import (
	"sort"
	"strings"
)

// DefaultJoin separates entries produced by Format when no separator is given.
const DefaultJoin = "\n"

// Parse splits block on delimiter and each part on its first colon.
// Parts without a name or a value are skipped silently.
func Parse(block, delimiter string) map[string]string {
	result := make(map[string]string)
	if delimiter == "" {
		delimiter = DefaultJoin
	}

	for _, line := range strings.Split(block, delimiter) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, _ := strings.Cut(line, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}

	return result
}

// Format renders headers as "name: value" entries sorted by name and joined by joinOn.
func Format(headers map[string]string, joinOn string) string {
	multi := make(map[string][]string, len(headers))
	for name, value := range headers {
		multi[name] = []string{value}
	}
	return FormatMulti(multi, joinOn)
}

// FormatMulti is Format for multi-valued headers; values of one name are joined by ", ".
func FormatMulti(headers map[string][]string, joinOn string) string {
	if joinOn == "" {
		joinOn = DefaultJoin
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		value := strings.TrimSpace(strings.Join(headers[name], ", "))
		lines = append(lines, strings.ToLower(strings.TrimSpace(name))+": "+value)
	}

	return strings.Join(lines, joinOn)
}

// Clone returns a copy of headers, nil when headers is nil.
func Clone(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
