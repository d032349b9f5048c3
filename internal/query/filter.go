package query

type filterState int

const (
	stateUnset filterState = iota
	stateNull
	stateEquals
)

// NullableFilter constrains a nullable column in one of three ways: no
// constraint, IS NULL, or equality with an id. The zero value is Unset.
type NullableFilter struct {
	state filterState
	value string
}

// Unset returns a filter that matches every row.
func Unset() NullableFilter { return NullableFilter{} }

// IsNull returns a filter that matches rows where the column is NULL.
func IsNull() NullableFilter { return NullableFilter{state: stateNull} }

// Equals returns a filter that matches rows where the column equals v.
func Equals(v string) NullableFilter { return NullableFilter{state: stateEquals, value: v} }

// IsUnset reports whether the filter imposes no constraint.
func (f NullableFilter) IsUnset() bool { return f.state == stateUnset }

// IsNull reports whether the filter matches NULL only.
func (f NullableFilter) IsNull() bool { return f.state == stateNull }

// Value returns the compared id and true for an Equals filter.
func (f NullableFilter) Value() (string, bool) {
	return f.value, f.state == stateEquals
}

func (f NullableFilter) String() string {
	switch f.state {
	case stateNull:
		return "null"
	case stateEquals:
		return "=" + f.value
	default:
		return "unset"
	}
}
