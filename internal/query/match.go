package query

import (
	"strings"
	"time"
)

// Row exposes a record's column values for in-memory evaluation. A nil
// return means SQL NULL. Supported value types are string and time.Time.
type Row func(column string) any

// Match reports whether row satisfies every condition of the plan.
func (p Plan) Match(row Row) bool {
	for _, c := range p.Conditions {
		v := row(c.Column)
		switch c.Op {
		case OpIsNull:
			if v != nil {
				return false
			}
		case OpContains:
			s, ok := v.(string)
			if !ok || !strings.Contains(strings.ToLower(s), strings.ToLower(c.Value)) {
				return false
			}
		default:
			s, ok := v.(string)
			if !ok || s != c.Value {
				return false
			}
		}
	}
	return true
}

// Less orders rows by the plan's order terms. NULLs sort last ascending,
// matching PostgreSQL.
func (p Plan) Less(a, b Row) bool {
	for _, o := range p.Order {
		c := compare(a(o.Column), b(o.Column))
		if c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// Window applies the plan's offset and limit to n already-sorted rows and
// returns the bounds of the page. An offset outside [0, n) yields an empty page.
func (p Plan) Window(n int) (start, end int) {
	if p.Offset < 0 || p.Offset >= n {
		return n, n
	}
	start = p.Offset
	end = start + min(p.Limit, n-start)
	return start, end
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	}
	return 0
}
