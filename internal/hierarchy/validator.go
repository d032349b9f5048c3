// Package hierarchy guards the parent/child structure of tasks.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/tasktree/internal/hierarchy")

var (
	ErrSelfParent = errors.New("a task cannot be its own parent")
	ErrCycle      = errors.New("parent assignment would create a cycle")
	ErrTooDeep    = errors.New("ancestor chain exceeds the maximum depth")
)

// ParentLookup resolves one hop of the ancestor chain. found is false when
// id does not exist in the tenant; a nil parent with found=true is a root.
type ParentLookup interface {
	ParentOf(ctx context.Context, tenantID, id string) (parentID *string, found bool, err error)
}

// Validator decides whether a parent assignment keeps the task forest
// acyclic. It only reads.
type Validator struct {
	lookup   ParentLookup
	maxDepth int
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxDepth rejects assignments whose candidate ancestor chain is longer
// than n hops. Zero disables the limit.
func WithMaxDepth(n int) Option {
	return func(v *Validator) {
		v.maxDepth = n
	}
}

// New creates a Validator reading parents through lookup.
func New(lookup ParentLookup, opts ...Option) *Validator {
	v := &Validator{lookup: lookup}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateParentAssignment reports whether taskID may take candidateParentID
// as its parent. The walk climbs from the candidate towards the root and
// fails when it meets a node it has already seen, taskID included. A missing
// node ends the walk; the caller must check that the candidate exists.
func (v *Validator) ValidateParentAssignment(ctx context.Context, tenantID, taskID, candidateParentID string) error {
	ctx, span := tracer.Start(ctx, "Validator.ValidateParentAssignment",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.candidate_parent_id", candidateParentID),
		),
	)
	defer span.End()

	if candidateParentID == taskID {
		return ErrSelfParent
	}

	visited := map[string]struct{}{taskID: {}}
	current := candidateParentID
	hops := 0
	for {
		if _, seen := visited[current]; seen {
			span.SetAttributes(attribute.Int("hierarchy.hops", hops))
			return ErrCycle
		}
		visited[current] = struct{}{}

		hops++
		if v.maxDepth > 0 && hops > v.maxDepth {
			span.SetAttributes(attribute.Int("hierarchy.hops", hops))
			return ErrTooDeep
		}

		parent, found, err := v.lookup.ParentOf(ctx, tenantID, current)
		if err != nil {
			return fmt.Errorf("lookup parent of %s: %w", current, err)
		}
		if !found || parent == nil {
			span.SetAttributes(attribute.Int("hierarchy.hops", hops))
			return nil
		}
		current = *parent
	}
}
