package query

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		limit      int
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", 0, 0, 1, 20, 0},
		{"negative page", -3, 10, 1, 10, 0},
		{"third page", 3, 10, 3, 10, 20},
		{"limit above max", 2, 500, 2, 100, 100},
		{"negative limit", 1, -1, 1, 1, 0},
		{"page beyond addressable offset", math.MaxInt, 100, math.MaxInt/100 + 1, 100, math.MaxInt / 100 * 100},
		{"huge page at default limit", 92233720368547760, 0, math.MaxInt/20 + 1, 20, math.MaxInt / 20 * 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Build(TaskSchema, ListParams{Page: tt.page, Limit: tt.limit})
			assert.Equal(t, tt.wantPage, plan.Page)
			assert.Equal(t, tt.wantLimit, plan.Limit)
			assert.Equal(t, tt.wantOffset, plan.Offset)
			assert.Equal(t, (plan.Page-1)*plan.Limit, plan.Offset)
		})
	}
}

func TestBuild_Sort(t *testing.T) {
	fallback := []OrderTerm{{Column: "id", Desc: true}}

	tests := []struct {
		sort string
		want []OrderTerm
	}{
		{"", fallback},
		{"name", fallback},
		{"password:asc", fallback},
		{"name:sideways", fallback},
		{":asc", fallback},
		{"name:asc", []OrderTerm{{Column: "name"}, {Column: "id", Desc: true}}},
		{"createdAt:DESC", []OrderTerm{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}}},
		{"id:asc", []OrderTerm{{Column: "id"}}},
	}
	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			plan := Build(TaskSchema, ListParams{Sort: tt.sort})
			assert.Equal(t, tt.want, plan.Order)
		})
	}
}

func TestBuild_InvalidSortMatchesNoSort(t *testing.T) {
	a := Build(TaskSchema, ListParams{Sort: "secret:asc"})
	b := Build(TaskSchema, ListParams{})
	assert.Equal(t, b, a)
}

func TestBuild_ParentFilterStates(t *testing.T) {
	unset := Build(TaskSchema, ListParams{})
	assert.Empty(t, unset.Conditions)

	null := Build(TaskSchema, ListParams{Nullable: map[string]NullableFilter{"parentTaskId": IsNull()}})
	assert.Equal(t, []Condition{{Column: "parent_task_id", Op: OpIsNull}}, null.Conditions)

	eq := Build(TaskSchema, ListParams{Nullable: map[string]NullableFilter{"parentTaskId": Equals("p1")}})
	assert.Equal(t, []Condition{{Column: "parent_task_id", Op: OpEq, Value: "p1"}}, eq.Conditions)

	explicitUnset := Build(TaskSchema, ListParams{Nullable: map[string]NullableFilter{"parentTaskId": Unset()}})
	assert.Empty(t, explicitUnset.Conditions)
}

func TestBuild_FiltersAndSearch(t *testing.T) {
	plan := Build(TaskSchema, ListParams{
		Filters: map[string]string{"projectId": "p", "tenantId": "t", "name": "ignored"},
		Search:  "  deploy ",
	})

	assert.Equal(t, []Condition{
		{Column: "project_id", Op: OpEq, Value: "p"},
		{Column: "tenant_id", Op: OpEq, Value: "t"},
		{Column: "name", Op: OpContains, Value: "deploy"},
	}, plan.Conditions)
}

func TestPlan_Scoped(t *testing.T) {
	plan := Build(TaskSchema, ListParams{Filters: map[string]string{"tenantId": "other", "projectId": "p"}})
	scoped := plan.Scoped("tenant_id", "mine")

	assert.Equal(t, []Condition{
		{Column: "tenant_id", Op: OpEq, Value: "mine"},
		{Column: "project_id", Op: OpEq, Value: "p"},
		{Column: "tenant_id", Op: OpEq, Value: "other"},
	}, scoped.Conditions)
	assert.Len(t, plan.Conditions, 2, "original plan must be untouched")

	row := func(column string) any {
		return map[string]any{"tenant_id": "mine", "project_id": "p"}[column]
	}
	assert.False(t, scoped.Match(row))

	same := Build(TaskSchema, ListParams{Filters: map[string]string{"tenantId": "mine"}}).Scoped("tenant_id", "mine")
	assert.Equal(t, []Condition{{Column: "tenant_id", Op: OpEq, Value: "mine"}}, same.Conditions)
	assert.True(t, same.Match(row))
}

func TestPlan_SQL(t *testing.T) {
	plan := Build(TaskSchema, ListParams{
		Page:     2,
		Limit:    10,
		Sort:     "name:asc",
		Search:   "50%_off",
		Filters:  map[string]string{"projectId": "p"},
		Nullable: map[string]NullableFilter{"parentTaskId": IsNull()},
	}).Scoped("tenant_id", "t")

	query, args := plan.SelectSQL("tasks", "id, name")
	assert.Equal(t,
		"SELECT id, name FROM tasks WHERE tenant_id = $1 AND project_id = $2 AND parent_task_id IS NULL AND name ILIKE $3 ORDER BY name ASC, id DESC LIMIT $4 OFFSET $5",
		query)
	assert.Equal(t, []any{"t", "p", `%50\%\_off%`, 10, 10}, args)

	count, countArgs := plan.CountSQL("tasks")
	assert.Equal(t,
		"SELECT COUNT(*) FROM tasks WHERE tenant_id = $1 AND project_id = $2 AND parent_task_id IS NULL AND name ILIKE $3",
		count)
	assert.Equal(t, []any{"t", "p", `%50\%\_off%`}, countArgs)
}

func TestPlan_SQLWithoutConditions(t *testing.T) {
	plan := Build(TaskSchema, ListParams{})

	query, args := plan.SelectSQL("tasks", "id")
	assert.Equal(t, "SELECT id FROM tasks ORDER BY id DESC LIMIT $1 OFFSET $2", query)
	assert.Equal(t, []any{20, 0}, args)

	count, countArgs := plan.CountSQL("tasks")
	assert.Equal(t, "SELECT COUNT(*) FROM tasks", count)
	assert.Empty(t, countArgs)
}

func TestPlan_MatchAndLess(t *testing.T) {
	parent := "a"
	rows := map[string]map[string]any{
		"a": {"id": "a", "name": "Alpha", "parent_task_id": nil},
		"b": {"id": "b", "name": "beta release", "parent_task_id": parent},
		"c": {"id": "c", "name": "Gamma", "parent_task_id": nil},
	}
	row := func(id string) Row {
		return func(col string) any { return rows[id][col] }
	}

	roots := Build(TaskSchema, ListParams{Nullable: map[string]NullableFilter{"parentTaskId": IsNull()}})
	assert.True(t, roots.Match(row("a")))
	assert.False(t, roots.Match(row("b")))

	children := Build(TaskSchema, ListParams{Nullable: map[string]NullableFilter{"parentTaskId": Equals("a")}})
	assert.True(t, children.Match(row("b")))
	assert.False(t, children.Match(row("c")))

	search := Build(TaskSchema, ListParams{Search: "RELEASE"})
	assert.True(t, search.Match(row("b")))
	assert.False(t, search.Match(row("a")))

	byID := Build(TaskSchema, ListParams{})
	assert.True(t, byID.Less(row("c"), row("a")))

	byName := Build(TaskSchema, ListParams{Sort: "name:asc"})
	assert.True(t, byName.Less(row("a"), row("c")))
}

func TestPlan_Window(t *testing.T) {
	plan := Build(TaskSchema, ListParams{Page: 2, Limit: 3})
	start, end := plan.Window(5)
	assert.Equal(t, 3, start)
	assert.Equal(t, 5, end)

	start, end = plan.Window(2)
	assert.Equal(t, 2, start)
	assert.Equal(t, 2, end)
}

func TestPlan_WindowNeverLeavesBounds(t *testing.T) {
	huge := Build(TaskSchema, ListParams{Page: 92233720368547760, Limit: 100})
	assert.GreaterOrEqual(t, huge.Offset, 0)
	start, end := huge.Window(3)
	assert.Equal(t, 3, start)
	assert.Equal(t, 3, end)

	negative := Plan{Offset: -10, Limit: 5}
	start, end = negative.Window(3)
	assert.Equal(t, 3, start)
	assert.Equal(t, 3, end)
}

func TestFromURLValues(t *testing.T) {
	v, err := url.ParseQuery("page=2&limit=abc&sort=name:desc&search=x&projectId=p&parentTaskId=null&bogus=1")
	require.NoError(t, err)

	p := FromURLValues(TaskSchema, v)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 0, p.Limit)
	assert.Equal(t, "name:desc", p.Sort)
	assert.Equal(t, "x", p.Search)
	assert.Equal(t, map[string]string{"projectId": "p"}, p.Filters)
	assert.True(t, p.Nullable["parentTaskId"].IsNull())

	v, err = url.ParseQuery("parentTaskId=abc")
	require.NoError(t, err)
	got, ok := FromURLValues(TaskSchema, v).Nullable["parentTaskId"].Value()
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	_, present := FromURLValues(TaskSchema, url.Values{}).Nullable["parentTaskId"]
	assert.False(t, present)
}
