package query

import (
	"math"
	"sort"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListParams is a generic list request as received from a caller.
type ListParams struct {
	Page   int
	Limit  int
	Sort   string
	Search string
	// Filters holds equality filters keyed by API field name.
	Filters map[string]string
	// Nullable holds tri-state filters keyed by API field name.
	Nullable map[string]NullableFilter
}

// Op is a predicate operator.
type Op int

const (
	OpEq Op = iota
	OpIsNull
	OpContains
)

// Condition is one conjunct of a plan's predicate. For OpContains, Value is
// the raw search term; rendering wraps and escapes it.
type Condition struct {
	Column string
	Op     Op
	Value  string
}

// OrderTerm is one ORDER BY term.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Plan is the resolved filter predicate, sort order and pagination window
// for a list request.
type Plan struct {
	Conditions []Condition
	Order      []OrderTerm
	Page       int
	Limit      int
	Offset     int
}

// Build resolves params against schema. It never fails: out-of-range paging
// is clamped (a page too large to address is pinned to the last addressable one), unknown filter keys are dropped, and an unrecognized sort
// falls back to descending id order.
func Build(schema Schema, p ListParams) Plan {
	limit := p.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	page := p.Page
	if page < 1 {
		page = DefaultPage
	}
	// The offset must fit in an int.
	if maxPage := math.MaxInt/limit + 1; page > maxPage {
		page = maxPage
	}

	plan := Plan{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
		Order:  buildOrder(schema, p.Sort),
	}

	for _, field := range sortedKeys(p.Filters) {
		column, ok := schema.Equality[field]
		if !ok {
			continue
		}
		plan.Conditions = append(plan.Conditions, Condition{Column: column, Op: OpEq, Value: p.Filters[field]})
	}

	for _, field := range sortedKeys(p.Nullable) {
		column, ok := schema.Nullable[field]
		if !ok {
			continue
		}
		f := p.Nullable[field]
		switch {
		case f.IsNull():
			plan.Conditions = append(plan.Conditions, Condition{Column: column, Op: OpIsNull})
		case !f.IsUnset():
			v, _ := f.Value()
			plan.Conditions = append(plan.Conditions, Condition{Column: column, Op: OpEq, Value: v})
		}
	}

	if term := strings.TrimSpace(p.Search); term != "" && schema.SearchColumn != "" {
		plan.Conditions = append(plan.Conditions, Condition{Column: schema.SearchColumn, Op: OpContains, Value: term})
	}

	return plan
}

func buildOrder(schema Schema, raw string) []OrderTerm {
	fallback := []OrderTerm{{Column: schema.IDColumn, Desc: true}}

	field, direction, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return fallback
	}
	column, ok := schema.Sortable[field]
	if !ok {
		return fallback
	}

	var desc bool
	switch strings.ToLower(direction) {
	case "asc":
	case "desc":
		desc = true
	default:
		return fallback
	}

	order := []OrderTerm{{Column: column, Desc: desc}}
	if column != schema.IDColumn {
		order = append(order, OrderTerm{Column: schema.IDColumn, Desc: true})
	}
	return order
}

// Scoped returns a copy of the plan whose predicate also pins column to
// value. Caller-supplied conditions on the same column stay in the
// conjunction, so a conflicting one selects nothing.
func (p Plan) Scoped(column, value string) Plan {
	pin := Condition{Column: column, Op: OpEq, Value: value}
	conds := make([]Condition, 0, len(p.Conditions)+1)
	conds = append(conds, pin)
	for _, c := range p.Conditions {
		if c == pin {
			continue
		}
		conds = append(conds, c)
	}
	p.Conditions = conds
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
