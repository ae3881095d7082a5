package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// execContext is the interpreter's working memory for one run: the immutable
// input payload and the accumulated named step outputs.
type execContext struct {
	Input map[string]any
	Vars  map[string]any
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(input|vars)\.([^}\s]+)\s*\}\}`)

// interpolate substitutes {{ input.key }} and {{ vars.key }} placeholders in
// a template string. Single-level keys, stringification via fmt.Sprint, no
// escaping; placeholders whose key is absent are left untouched. Deliberately
// not a general expression language.
func (ec *execContext) interpolate(template string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		parts := placeholderRe.FindStringSubmatch(match)
		ns := ec.Input
		if parts[1] == "vars" {
			ns = ec.Vars
		}
		value, ok := ns[parts[2]]
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}

// lookup resolves a dotted path ("input.score", "vars.response.id") against
// the context, walking nested maps one segment at a time.
func (ec *execContext) lookup(path string) (any, error) {
	segments := strings.Split(path, ".")
	if path == "" {
		return nil, fmt.Errorf("empty variable path")
	}
	var current any
	switch segments[0] {
	case "input":
		current = ec.Input
	case "vars":
		current = ec.Vars
	default:
		return nil, fmt.Errorf("unknown namespace in path %q", path)
	}
	for _, seg := range segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q does not resolve to a value", path)
		}
		current, ok = m[seg]
		if !ok {
			return nil, fmt.Errorf("path %q not found in context", path)
		}
	}
	return current, nil
}
