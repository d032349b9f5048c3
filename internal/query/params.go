package query

import (
	"net/url"
	"strconv"
)

// NullLiteral is the query-string value that selects IS NULL on a nullable filter.
const NullLiteral = "null"

// FromURLValues reads list parameters for schema from a query string. Absent
// nullable keys stay Unset; the literal "null" selects IsNull. Unparsable
// page or limit values fall back to the defaults.
func FromURLValues(schema Schema, v url.Values) ListParams {
	p := ListParams{
		Page:     atoiOrZero(v.Get("page")),
		Limit:    atoiOrZero(v.Get("limit")),
		Sort:     v.Get("sort"),
		Search:   v.Get("search"),
		Filters:  make(map[string]string),
		Nullable: make(map[string]NullableFilter),
	}

	for field := range schema.Equality {
		if v.Has(field) {
			p.Filters[field] = v.Get(field)
		}
	}
	for field := range schema.Nullable {
		if !v.Has(field) {
			continue
		}
		if raw := v.Get(field); raw == NullLiteral || raw == "" {
			p.Nullable[field] = IsNull()
		} else {
			p.Nullable[field] = Equals(raw)
		}
	}
	return p
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
