package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/tasktree/internal/model"
	"github.com/hiroki-koketsu/tasktree/internal/query"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/tasktree/internal/repository")

var _ TaskStore = (*MemoryStore)(nil)

// Constraint names shared by the memory and PostgreSQL stores.
const (
	constraintName    = "tasks_tenant_project_name_key"
	constraintTenant  = "tasks_tenant_fk"
	constraintProject = "tasks_project_fk"
	constraintParent  = "tasks_parent_fk"
)

type nameKey struct {
	tenantID  string
	projectID string
	name      string
}

// MemoryStore is an in-memory TaskStore that enforces the same uniqueness
// and foreign-key constraints as the PostgreSQL schema. Tenants and
// projects must be registered before tasks can reference them.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]struct{}
	projects map[string]string // project id -> tenant id
	tasks    map[string]*model.Task
	names    map[nameKey]string
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]struct{}),
		projects: make(map[string]string),
		tasks:    make(map[string]*model.Task),
		names:    make(map[nameKey]string),
		now:      time.Now,
	}
}

// AddTenant registers a tenant.
func (s *MemoryStore) AddTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[tenantID] = struct{}{}
	return nil
}

// AddProject registers a project owned by tenantID.
func (s *MemoryStore) AddProject(_ context.Context, tenantID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return &ConstraintError{Kind: ConstraintForeignKey, Constraint: "projects_tenant_fk", Column: ColumnTenantID}
	}
	if owner, ok := s.projects[projectID]; ok && owner != tenantID {
		return fmt.Errorf("project %s belongs to another tenant", projectID)
	}
	s.projects[projectID] = tenantID
	return nil
}

// Get retrieves a task by its ID.
func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryStore.Get",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.lookup(tenantID, id)
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, ErrNotFound
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return clone(task), nil
}

// ParentOf returns the parent pointer of a task.
func (s *MemoryStore) ParentOf(ctx context.Context, tenantID, id string) (*string, bool, error) {
	_, span := tracer.Start(ctx, "MemoryStore.ParentOf",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.lookup(tenantID, id)
	if !ok {
		return nil, false, nil
	}
	return cloneString(task.ParentTaskID), true, nil
}

// Insert stores a new task, assigning its ID and timestamps.
func (s *MemoryStore) Insert(ctx context.Context, in *model.Task) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryStore.Insert",
		trace.WithAttributes(attribute.String("task.name", in.Name)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[in.TenantID]; !ok {
		return nil, &ConstraintError{Kind: ConstraintForeignKey, Constraint: constraintTenant, Column: ColumnTenantID}
	}
	if owner, ok := s.projects[in.ProjectID]; !ok || owner != in.TenantID {
		return nil, &ConstraintError{Kind: ConstraintForeignKey, Constraint: constraintProject, Column: ColumnProjectID}
	}
	if in.ParentTaskID != nil {
		if _, ok := s.lookup(in.TenantID, *in.ParentTaskID); !ok {
			return nil, &ConstraintError{Kind: ConstraintForeignKey, Constraint: constraintParent, Column: ColumnParentTaskID}
		}
	}
	key := nameKey{tenantID: in.TenantID, projectID: in.ProjectID, name: in.Name}
	if _, taken := s.names[key]; taken {
		return nil, &ConstraintError{Kind: ConstraintUnique, Constraint: constraintName, Column: ColumnName}
	}

	now := s.now()
	task := &model.Task{
		ID:           uuid.Must(uuid.NewV7()).String(),
		TenantID:     in.TenantID,
		ProjectID:    in.ProjectID,
		Name:         in.Name,
		ParentTaskID: cloneString(in.ParentTaskID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.tasks[task.ID] = task
	s.names[key] = task.ID

	span.SetAttributes(attribute.String("task.id", task.ID))
	return clone(task), nil
}

// Update applies patch to an existing task.
func (s *MemoryStore) Update(ctx context.Context, tenantID, id string, patch TaskPatch) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryStore.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.lookup(tenantID, id)
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, ErrNotFound
	}

	oldKey := nameKey{tenantID: task.TenantID, projectID: task.ProjectID, name: task.Name}
	newKey := oldKey
	if patch.Name != nil {
		newKey.name = *patch.Name
		if owner, taken := s.names[newKey]; taken && owner != task.ID {
			return nil, &ConstraintError{Kind: ConstraintUnique, Constraint: constraintName, Column: ColumnName}
		}
	}
	if patch.SetParent && patch.ParentTaskID != nil {
		if _, ok := s.lookup(tenantID, *patch.ParentTaskID); !ok {
			return nil, &ConstraintError{Kind: ConstraintForeignKey, Constraint: constraintParent, Column: ColumnParentTaskID}
		}
	}

	if patch.Name != nil {
		delete(s.names, oldKey)
		s.names[newKey] = task.ID
		task.Name = *patch.Name
	}
	if patch.SetParent {
		task.ParentTaskID = cloneString(patch.ParentTaskID)
	}
	task.UpdatedAt = s.now()

	span.SetAttributes(attribute.Bool("task.found", true))
	return clone(task), nil
}

// Delete removes a task. Deleting a task that still has children violates
// the parent foreign key.
func (s *MemoryStore) Delete(ctx context.Context, tenantID, id string) error {
	_, span := tracer.Start(ctx, "MemoryStore.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.lookup(tenantID, id)
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return ErrNotFound
	}
	if s.countChildren(tenantID, id) > 0 {
		return &ConstraintError{Kind: ConstraintForeignKey, Constraint: constraintParent, Column: ColumnParentTaskID}
	}

	delete(s.names, nameKey{tenantID: task.TenantID, projectID: task.ProjectID, name: task.Name})
	delete(s.tasks, id)
	span.SetAttributes(attribute.Bool("task.found", true))
	return nil
}

// CountChildren returns the number of tasks whose parent is id.
func (s *MemoryStore) CountChildren(ctx context.Context, tenantID, id string) (int64, error) {
	_, span := tracer.Start(ctx, "MemoryStore.CountChildren",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countChildren(tenantID, id), nil
}

// List returns the page of tasks selected by plan.
func (s *MemoryStore) List(ctx context.Context, tenantID string, plan query.Plan) ([]model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryStore.List")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(plan.Scoped(ColumnTenantID, tenantID))
	sort.SliceStable(matched, func(i, j int) bool {
		return plan.Less(row(matched[i]), row(matched[j]))
	})

	start, end := plan.Window(len(matched))
	tasks := make([]model.Task, 0, end-start)
	for _, t := range matched[start:end] {
		tasks = append(tasks, *clone(t))
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Count returns how many tasks satisfy the plan's predicate.
func (s *MemoryStore) Count(ctx context.Context, tenantID string, plan query.Plan) (int64, error) {
	_, span := tracer.Start(ctx, "MemoryStore.Count")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.match(plan.Scoped(ColumnTenantID, tenantID)))), nil
}

// CountAll returns the number of tasks across all tenants.
func (s *MemoryStore) CountAll(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.tasks)), nil
}

func (s *MemoryStore) lookup(tenantID, id string) (*model.Task, bool) {
	task, ok := s.tasks[id]
	if !ok || task.TenantID != tenantID {
		return nil, false
	}
	return task, true
}

func (s *MemoryStore) countChildren(tenantID, id string) int64 {
	var n int64
	for _, t := range s.tasks {
		if t.TenantID == tenantID && t.ParentTaskID != nil && *t.ParentTaskID == id {
			n++
		}
	}
	return n
}

func (s *MemoryStore) match(plan query.Plan) []*model.Task {
	var out []*model.Task
	for _, t := range s.tasks {
		if plan.Match(row(t)) {
			out = append(out, t)
		}
	}
	return out
}

func row(t *model.Task) query.Row {
	return func(column string) any {
		switch column {
		case "id":
			return t.ID
		case ColumnTenantID:
			return t.TenantID
		case ColumnProjectID:
			return t.ProjectID
		case ColumnName:
			return t.Name
		case ColumnParentTaskID:
			if t.ParentTaskID == nil {
				return nil
			}
			return *t.ParentTaskID
		case "created_at":
			return t.CreatedAt
		case "updated_at":
			return t.UpdatedAt
		default:
			return nil
		}
	}
}

func clone(t *model.Task) *model.Task {
	cp := *t
	cp.ParentTaskID = cloneString(t.ParentTaskID)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
