package pgfetch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/livesync/core/query"
)

var comparisons = map[query.Op]string{
	query.OpEq:   "=",
	query.OpNeq:  "<>",
	query.OpGt:   ">",
	query.OpGte:  ">=",
	query.OpLt:   "<",
	query.OpLte:  "<=",
	query.OpLike: "LIKE",
}

// BuildQuery renders key as a SELECT over schema.table. Filter values are
// passed as arguments; identifiers are quoted.
func BuildQuery(schema string, key query.Key) (string, []any, error) {
	table := key.Table()
	if table == "" {
		return "", nil, ErrEmptyTable
	}

	cols, err := selectList(key.Select)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	if schema != "" {
		b.WriteString(pgx.Identifier{schema, table}.Sanitize())
	} else {
		b.WriteString(pgx.Identifier{table}.Sanitize())
	}

	var args []any
	for i, f := range key.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		cond, err := condition(f, &args)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(cond)
	}

	if len(key.Order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range key.Order {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgx.Identifier{o.Column}.Sanitize())
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if key.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(key.Limit))
	}
	if key.Offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(key.Offset))
	}
	return b.String(), args, nil
}

func selectList(sel string) (string, error) {
	if sel == "" || sel == "*" {
		return "*", nil
	}
	parts := strings.Split(sel, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case p == "*":
			out = append(out, "*")
		case strings.ContainsAny(p, "()!:"):
			return "", fmt.Errorf("%w: %q", ErrUnsupportedSelect, p)
		default:
			out = append(out, pgx.Identifier{p}.Sanitize())
		}
	}
	if len(out) == 0 {
		return "*", nil
	}
	return strings.Join(out, ", "), nil
}

func condition(f query.Filter, args *[]any) (string, error) {
	col := pgx.Identifier{f.Column}.Sanitize()
	placeholder := func(v string) string {
		*args = append(*args, v)
		return "$" + strconv.Itoa(len(*args))
	}

	if op, ok := comparisons[f.Op]; ok {
		v := f.Value
		if f.Op == query.OpLike {
			v = strings.ReplaceAll(v, "*", "%")
		}
		return col + " " + op + " " + placeholder(v), nil
	}

	switch f.Op {
	case query.OpIn:
		values := query.InValues(f.Value)
		if len(values) == 0 {
			return "FALSE", nil
		}
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = placeholder(v)
		}
		return col + " IN (" + strings.Join(ph, ", ") + ")", nil
	case query.OpIs:
		switch strings.ToLower(f.Value) {
		case "null":
			return col + " IS NULL", nil
		case "true":
			return col + " IS TRUE", nil
		case "false":
			return col + " IS FALSE", nil
		case "unknown":
			return col + " IS UNKNOWN", nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFilter, f)
}
