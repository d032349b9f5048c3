package hierarchy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forest maps task id to parent id; "" marks a root.
type forest map[string]string

func (f forest) ParentOf(_ context.Context, _ string, id string) (*string, bool, error) {
	parent, ok := f[id]
	if !ok {
		return nil, false, nil
	}
	if parent == "" {
		return nil, true, nil
	}
	return &parent, true, nil
}

type failingLookup struct{ err error }

func (f failingLookup) ParentOf(context.Context, string, string) (*string, bool, error) {
	return nil, false, f.err
}

type countingLookup struct {
	forest
	calls int
}

func (c *countingLookup) ParentOf(ctx context.Context, tenantID, id string) (*string, bool, error) {
	c.calls++
	return c.forest.ParentOf(ctx, tenantID, id)
}

func TestValidateParentAssignment(t *testing.T) {
	// a <- b <- c, d standalone
	f := forest{"a": "", "b": "a", "c": "b", "d": ""}
	v := New(f)
	ctx := context.Background()

	tests := []struct {
		name      string
		task      string
		candidate string
		want      error
	}{
		{"self", "a", "a", ErrSelfParent},
		{"root under leaf of own chain", "a", "c", ErrCycle},
		{"root under direct child", "a", "b", ErrCycle},
		{"middle under own child", "b", "c", ErrCycle},
		{"leaf under unrelated root", "c", "d", nil},
		{"root under unrelated root", "d", "c", nil},
		{"reassign to grandparent", "c", "a", nil},
		{"candidate missing", "a", "zzz", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateParentAssignment(ctx, "tenant", tt.task, tt.candidate)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateParentAssignment_SelfSkipsLookup(t *testing.T) {
	lookup := &countingLookup{forest: forest{}}
	err := New(lookup).ValidateParentAssignment(context.Background(), "t", "x", "x")

	assert.ErrorIs(t, err, ErrSelfParent)
	assert.Zero(t, lookup.calls)
}

func TestValidateParentAssignment_OneLookupPerHop(t *testing.T) {
	lookup := &countingLookup{forest: forest{"a": "", "b": "a", "c": "b"}}
	err := New(lookup).ValidateParentAssignment(context.Background(), "t", "x", "c")

	require.NoError(t, err)
	assert.Equal(t, 3, lookup.calls)
}

func TestValidateParentAssignment_PreexistingCycleTerminates(t *testing.T) {
	// Corrupt data: p and q point at each other. The walk must still stop.
	f := forest{"p": "q", "q": "p"}
	err := New(f).ValidateParentAssignment(context.Background(), "t", "x", "p")

	assert.ErrorIs(t, err, ErrCycle)
}

func TestValidateParentAssignment_DeepChain(t *testing.T) {
	f := forest{"n0": ""}
	for i := 1; i < 10000; i++ {
		f[fmt.Sprintf("n%d", i)] = fmt.Sprintf("n%d", i-1)
	}

	err := New(f).ValidateParentAssignment(context.Background(), "t", "new", "n9999")
	assert.NoError(t, err)

	err = New(f).ValidateParentAssignment(context.Background(), "t", "n0", "n9999")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestValidateParentAssignment_MaxDepth(t *testing.T) {
	f := forest{"a": "", "b": "a", "c": "b"}

	err := New(f, WithMaxDepth(2)).ValidateParentAssignment(context.Background(), "t", "x", "c")
	assert.ErrorIs(t, err, ErrTooDeep)

	err = New(f, WithMaxDepth(3)).ValidateParentAssignment(context.Background(), "t", "x", "c")
	assert.NoError(t, err)
}

func TestValidateParentAssignment_LookupError(t *testing.T) {
	err := New(failingLookup{err: assert.AnError}).ValidateParentAssignment(context.Background(), "t", "x", "y")

	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "lookup parent of y")
}

// Exhaustive check over every forest of four nodes: an approved assignment
// must never leave a node as its own ancestor.
func TestValidateParentAssignment_NeverApprovesCycle(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	choices := append([]string{""}, nodes...)

	var forests []forest
	var build func(i int, cur forest)
	build = func(i int, cur forest) {
		if i == len(nodes) {
			if acyclic(cur) {
				cp := forest{}
				for k, v := range cur {
					cp[k] = v
				}
				forests = append(forests, cp)
			}
			return
		}
		for _, p := range choices {
			if p == nodes[i] {
				continue
			}
			cur[nodes[i]] = p
			build(i+1, cur)
		}
	}
	build(0, forest{})
	require.NotEmpty(t, forests)

	ctx := context.Background()
	for _, f := range forests {
		v := New(f)
		for _, task := range nodes {
			for _, cand := range nodes {
				err := v.ValidateParentAssignment(ctx, "t", task, cand)
				next := forest{}
				for k, p := range f {
					next[k] = p
				}
				next[task] = cand
				if err == nil {
					assert.True(t, acyclic(next), "approved %s -> %s in %v", task, cand, f)
				} else {
					assert.False(t, acyclic(next), "rejected %s -> %s in %v", task, cand, f)
				}
			}
		}
	}
}

func acyclic(f forest) bool {
	for start := range f {
		seen := map[string]bool{}
		for cur := start; cur != ""; cur = f[cur] {
			if seen[cur] {
				return false
			}
			seen[cur] = true
		}
	}
	return true
}
