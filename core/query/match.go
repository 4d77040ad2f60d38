package query

import "fmt"

// Match reports whether record satisfies f. Values are compared by their
// text form. Operators other than eq, neq, in and is match every record, so
// callers that route change notifications never miss a row.
func (f Filter) Match(record map[string]any) bool {
	v, ok := record[f.Column]
	text := ""
	if ok && v != nil {
		text = fmt.Sprint(v)
	}

	switch f.Op {
	case OpEq:
		return ok && v != nil && text == f.Value
	case OpNeq:
		return !ok || v == nil || text != f.Value
	case OpIn:
		if !ok || v == nil {
			return false
		}
		for _, want := range InValues(f.Value) {
			if text == want {
				return true
			}
		}
		return false
	case OpIs:
		if f.Value == "null" {
			return !ok || v == nil
		}
		return ok && text == f.Value
	default:
		return true
	}
}
