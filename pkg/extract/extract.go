// Package extract pulls individual values out of Activity Log request and
// response bodies. The bodies are JSON text, but truncated or otherwise
// malformed bodies still show up, so extraction is best effort: a structured
// walk when the text parses, a tolerant pattern match when it does not, and a
// nil result when neither finds anything.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/praetorian-inc/diskaudit/internal/helpers"
	"github.com/praetorian-inc/diskaudit/internal/jq"
)

// Field returns the first value stored under field anywhere in blob. A dotted
// field such as "sku.name" only matches "name" inside an object held by a "sku"
// key. Numbers come back as int64, strings unquoted. The match is not anchored
// to a path, so a key of the same name in an unrelated nested object can win.
func Field(blob, field string) (any, bool) {
	keys := splitField(field)
	if strings.TrimSpace(blob) == "" || len(keys) == 0 {
		return nil, false
	}

	doc, text, ok := decode(blob)
	if ok {
		return jsonField(doc, keys)
	}
	return regexField(text, keys)
}

// Int returns the field as an integer, or nil when it is absent or not numeric.
func Int(blob, field string) *int64 {
	v, ok := Field(blob, field)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case int64:
		return &n
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}

// String returns the field rendered as a string, or nil when it is absent.
func String(blob, field string) *string {
	v, ok := Field(blob, field)
	if !ok {
		return nil
	}
	var s string
	switch n := v.(type) {
	case int64:
		s = strconv.FormatInt(n, 10)
	case string:
		s = n
	default:
		return nil
	}
	return &s
}

// DiskReferences returns the set of ids held by every managedDisk object in a
// virtual machine payload, which covers the OS disk and all data disks.
func DiskReferences(blob string) map[string]struct{} {
	refs := make(map[string]struct{})
	if strings.TrimSpace(blob) == "" {
		return refs
	}

	doc, text, ok := decode(blob)
	if !ok {
		for _, m := range managedDiskPattern.FindAllStringSubmatch(text, -1) {
			refs[m[1]] = struct{}{}
		}
		return refs
	}

	ids, _ := jq.All(diskRefQuery, doc)
	for _, v := range ids {
		if id, ok := v.(string); ok && id != "" {
			refs[id] = struct{}{}
		}
	}
	return refs
}

var (
	diskRefQuery       = jq.MustCompile(`.. | objects | .managedDisk | objects | .id | strings`)
	managedDiskPattern = regexp.MustCompile(`"managedDisk"\s*:\s*\{[^{}]*?"id"\s*:\s*"([^"]+)"`)
)

func splitField(field string) []string {
	var keys []string
	for _, k := range strings.Split(field, ".") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// decode parses blob as JSON. A body that was encoded twice (a JSON string
// holding JSON text) is unwrapped once. When decoding fails, text is what the
// pattern fallback should scan: the blob itself, or the unwrapped inner text
// of a string whose content is not valid JSON.
func decode(blob string) (doc any, text string, ok bool) {
	doc, err := jq.Decode([]byte(blob))
	if err != nil {
		return nil, blob, false
	}
	if inner, isString := doc.(string); isString {
		var nested any
		if err := json.Unmarshal([]byte(inner), &nested); err != nil {
			return nil, inner, false
		}
		return nested, "", true
	}
	return doc, "", true
}

func jsonField(doc any, keys []string) (any, bool) {
	code, err := jq.Compile(fieldQuery(keys))
	if err != nil {
		return nil, false
	}

	v, ok := jq.First(code, doc)
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case float64:
		i, ok := helpers.FloatToInt64(n)
		if !ok {
			return nil, false
		}
		return i, true
	case int:
		return int64(n), true
	case string:
		return n, true
	}
	return nil, false
}

// fieldQuery builds first(.. | objects | .["k0"] | objects | .["k1"] | scalar).
func fieldQuery(keys []string) string {
	var b strings.Builder
	b.WriteString("first(.. | objects")
	for i, k := range keys {
		lit, _ := json.Marshal(k)
		if i > 0 {
			b.WriteString(" | objects")
		}
		fmt.Fprintf(&b, " | .[%s]", lit)
	}
	b.WriteString(` | select(type == "number" or type == "string"))`)
	return b.String()
}

func regexField(blob string, keys []string) (any, bool) {
	var b strings.Builder
	for _, k := range keys[:len(keys)-1] {
		fmt.Fprintf(&b, `"%s"\s*:\s*\{[^{}]*?`, regexp.QuoteMeta(k))
	}
	fmt.Fprintf(&b, `"%s"\s*:\s*(?:"((?:[^"\\]|\\.)*)"|(-?\d+)(?:\.\d+)?)`, regexp.QuoteMeta(keys[len(keys)-1]))

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, false
	}
	m := re.FindStringSubmatch(blob)
	if m == nil {
		return nil, false
	}
	if m[2] != "" {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return s, true
	}
	return m[1], true
}
