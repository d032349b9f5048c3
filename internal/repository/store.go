// Package repository persists tasks per tenant and reports constraint
// violations in a storage-independent form.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hiroki-koketsu/tasktree/internal/model"
	"github.com/hiroki-koketsu/tasktree/internal/query"
)

// ErrNotFound is returned when a row does not exist within the caller's tenant.
var ErrNotFound = errors.New("record not found")

// Columns reported by ConstraintError.
const (
	ColumnName         = "name"
	ColumnTenantID     = "tenant_id"
	ColumnProjectID    = "project_id"
	ColumnParentTaskID = "parent_task_id"
)

const tasksTable = "tasks"

// ConstraintKind is the class of a violated constraint.
type ConstraintKind int

const (
	ConstraintUnique ConstraintKind = iota + 1
	ConstraintForeignKey
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "unique"
	case ConstraintForeignKey:
		return "foreign key"
	default:
		return "unknown"
	}
}

// ConstraintError reports a write rejected by a uniqueness or foreign-key
// constraint. Column names the offending reference.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Column     string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s constraint %q violated on %s", e.Kind, e.Constraint, e.Column)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// TaskPatch lists the fields an update writes. SetParent distinguishes
// "leave the parent alone" from "set it to ParentTaskID", which may be nil.
type TaskPatch struct {
	Name         *string
	SetParent    bool
	ParentTaskID *string
}

// IsEmpty reports whether the patch writes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Name == nil && !p.SetParent
}

// TaskStore is the tenant-scoped persistence contract for tasks. Every
// method confines reads and writes to tenantID; rows of other tenants are
// reported as ErrNotFound.
type TaskStore interface {
	Get(ctx context.Context, tenantID, id string) (*model.Task, error)
	ParentOf(ctx context.Context, tenantID, id string) (parentID *string, found bool, err error)
	Insert(ctx context.Context, task *model.Task) (*model.Task, error)
	Update(ctx context.Context, tenantID, id string, patch TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, tenantID, id string) error
	CountChildren(ctx context.Context, tenantID, id string) (int64, error)
	List(ctx context.Context, tenantID string, plan query.Plan) ([]model.Task, error)
	Count(ctx context.Context, tenantID string, plan query.Plan) (int64, error)
	CountAll(ctx context.Context) (int64, error)
}
