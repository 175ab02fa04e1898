package expr

import (
	"fmt"
	"regexp"
	"strings"
)

var templateRef = regexp.MustCompile(`\$\{([a-zA-Z0-9_.]+)\}`)

// SubstituteTemplate replaces every "${dotted.path}" reference in s with the
// matching value out of execCtx, looked up by walking nested maps one dot
// segment at a time. A reference that cannot be resolved is left verbatim,
// the same lenient behavior as the stage output context being merged
// best-effort rather than validated up front.
func SubstituteTemplate(s string, execCtx map[string]any) string {
	return templateRef.ReplaceAllStringFunc(s, func(match string) string {
		path := templateRef.FindStringSubmatch(match)[1]
		val, ok := lookupPath(execCtx, path)
		if !ok {
			return match
		}
		return fmt.Sprint(val)
	})
}

// SubstituteMap returns a copy of m with SubstituteTemplate applied to
// every string value, descending into nested maps and slices. Non-string
// leaves pass through untouched.
func SubstituteMap(m map[string]any, execCtx map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = substituteValue(v, execCtx)
	}
	return out
}

func substituteValue(v any, execCtx map[string]any) any {
	switch t := v.(type) {
	case string:
		return SubstituteTemplate(t, execCtx)
	case map[string]any:
		return SubstituteMap(t, execCtx)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = substituteValue(e, execCtx)
		}
		return out
	default:
		return v
	}
}

func lookupPath(ctx map[string]any, path string) (any, bool) {
	segs := strings.Split(path, ".")
	var cur any = ctx
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
