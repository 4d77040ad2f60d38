package query

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq   Op = "eq"
	OpNeq  Op = "neq"
	OpGt   Op = "gt"
	OpGte  Op = "gte"
	OpLt   Op = "lt"
	OpLte  Op = "lte"
	OpLike Op = "like"
	OpIn   Op = "in"
	OpIs   Op = "is"
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpIn, OpIs:
		return true
	}
	return false
}

// Filter restricts rows by comparing a column to a value.
type Filter struct {
	Column string `json:"c"`
	Op     Op     `json:"o"`
	Value  string `json:"v"`
}

// String renders the filter as column=op.value.
func (f Filter) String() string {
	return f.Column + "=" + string(f.Op) + "." + f.Value
}

// ParseFilter parses column=op.value, for example "shipment_id=eq.42".
func ParseFilter(s string) (Filter, error) {
	col, rest, ok := strings.Cut(s, "=")
	if !ok || col == "" {
		return Filter{}, fmt.Errorf("%w: %q: missing column", ErrInvalidFilter, s)
	}
	op, val, ok := strings.Cut(rest, ".")
	if !ok {
		return Filter{}, fmt.Errorf("%w: %q: missing operator", ErrInvalidFilter, s)
	}
	f := Filter{Column: strings.TrimSpace(col), Op: Op(op), Value: val}
	if !f.Op.Valid() {
		return Filter{}, fmt.Errorf("%w: %q: unknown operator %q", ErrInvalidFilter, s, op)
	}
	return f, nil
}

// InValues splits the value of an in filter, written as (a,b,c).
func InValues(v string) []string {
	v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"`)
	}
	return parts
}

// Order sorts results by a column.
type Order struct {
	Column string `json:"c"`
	Desc   bool   `json:"d,omitempty"`
}

// String renders the order as column.asc or column.desc.
func (o Order) String() string {
	if o.Desc {
		return o.Column + ".desc"
	}
	return o.Column + ".asc"
}

// Key is the structural identity of a read query.
// Build keys with NewKey; the slices must not be modified afterwards.
type Key struct {
	Tables  []string `json:"t"`
	Select  string   `json:"s"`
	Filters []Filter `json:"f,omitempty"`
	Order   []Order  `json:"o,omitempty"`
	Limit   int      `json:"l,omitempty"`
	Offset  int      `json:"n,omitempty"`
}

// KeyOption configures a Key in NewKey.
type KeyOption func(*Key)

// NewKey builds a key over table. table stays the primary table; joined
// tables are deduplicated and sorted after it. Filters are sorted and the
// selection defaults to "*".
func NewKey(table string, opts ...KeyOption) Key {
	k := Key{Tables: []string{table}}
	for _, opt := range opts {
		opt(&k)
	}
	return k.normalize()
}

// Join adds further backing tables, for example embedded resources.
func Join(tables ...string) KeyOption {
	return func(k *Key) { k.Tables = append(k.Tables, tables...) }
}

// Columns sets the selected columns.
func Columns(cols ...string) KeyOption {
	return func(k *Key) { k.Select = strings.Join(cols, ",") }
}

// Where adds a filter.
func Where(column string, op Op, value string) KeyOption {
	return func(k *Key) {
		k.Filters = append(k.Filters, Filter{Column: column, Op: op, Value: value})
	}
}

// Filters adds already built filters.
func Filters(filters ...Filter) KeyOption {
	return func(k *Key) { k.Filters = append(k.Filters, filters...) }
}

// OrderBy appends a sort column. Ordering is significant.
func OrderBy(column string, desc bool) KeyOption {
	return func(k *Key) { k.Order = append(k.Order, Order{Column: column, Desc: desc}) }
}

// Limit caps the number of rows. Zero means no limit.
func Limit(n int) KeyOption {
	return func(k *Key) { k.Limit = max(n, 0) }
}

// Offset skips rows.
func Offset(n int) KeyOption {
	return func(k *Key) { k.Offset = max(n, 0) }
}

func (k Key) normalize() Key {
	out := Key{
		Select: normalizeSelect(k.Select),
		Limit:  k.Limit,
		Offset: k.Offset,
	}

	var joined []string
	for i, t := range k.Tables {
		t = strings.TrimSpace(t)
		switch {
		case t == "":
		case i == 0:
			out.Tables = append(out.Tables, t)
		default:
			joined = append(joined, t)
		}
	}
	slices.Sort(joined)
	for _, t := range slices.Compact(joined) {
		if !slices.Contains(out.Tables, t) {
			out.Tables = append(out.Tables, t)
		}
	}

	out.Filters = slices.Clone(k.Filters)
	slices.SortFunc(out.Filters, func(a, b Filter) int {
		return cmp.Or(
			cmp.Compare(a.Column, b.Column),
			cmp.Compare(a.Op, b.Op),
			cmp.Compare(a.Value, b.Value),
		)
	})
	out.Filters = slices.Compact(out.Filters)

	out.Order = slices.Clone(k.Order)
	return out
}

func normalizeSelect(s string) string {
	parts := strings.Split(s, ",")
	cols := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ",")
}

// ID returns the canonical identity of k. Keys with equal IDs are equal.
func (k Key) ID() string {
	n := k.normalize()
	b, err := json.Marshal(n)
	if err != nil {
		// Key holds only strings and ints.
		panic(fmt.Sprintf("query: marshal key: %v", err))
	}
	return string(b)
}

// Equal reports structural equality.
func (k Key) Equal(o Key) bool {
	return k.ID() == o.ID()
}

// HasTable reports whether table backs k.
func (k Key) HasTable(table string) bool {
	return slices.Contains(k.Tables, table)
}

// Table returns the primary table.
func (k Key) Table() string {
	if len(k.Tables) == 0 {
		return ""
	}
	return k.Tables[0]
}

// String renders k in a readable query-string form.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(k.Tables, "+"))
	b.WriteString("?select=")
	b.WriteString(normalizeSelect(k.Select))
	for _, f := range k.Filters {
		b.WriteString("&")
		b.WriteString(f.String())
	}
	if len(k.Order) > 0 {
		parts := make([]string, len(k.Order))
		for i, o := range k.Order {
			parts[i] = o.String()
		}
		b.WriteString("&order=")
		b.WriteString(strings.Join(parts, ","))
	}
	if k.Limit > 0 {
		b.WriteString("&limit=" + strconv.Itoa(k.Limit))
	}
	if k.Offset > 0 {
		b.WriteString("&offset=" + strconv.Itoa(k.Offset))
	}
	return b.String()
}

// Predicate selects keys.
type Predicate func(Key) bool

// ForTable returns a predicate matching keys backed by table.
func ForTable(table string) Predicate {
	return func(k Key) bool { return k.HasTable(table) }
}
