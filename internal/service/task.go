// Package service implements task lifecycle operations on top of a
// tenant-scoped store, keeping the task hierarchy acyclic and deletions
// leaves-first.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hiroki-koketsu/tasktree/internal/hierarchy"
	"github.com/hiroki-koketsu/tasktree/internal/model"
	"github.com/hiroki-koketsu/tasktree/internal/query"
	"github.com/hiroki-koketsu/tasktree/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/tasktree/internal/service")

// TaskService orchestrates task reads and writes. It holds no mutable
// state; every call is scoped to the tenant id it is given.
type TaskService struct {
	store     repository.TaskStore
	validator *hierarchy.Validator
	logger    *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(store repository.TaskStore, validator *hierarchy.Validator, logger *slog.Logger) *TaskService {
	return &TaskService{
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// FindAll returns one page of tasks and the total number of matches.
func (s *TaskService) FindAll(ctx context.Context, tenantID string, params query.ListParams) (*model.Page[model.Task], error) {
	ctx, span := tracer.Start(ctx, "TaskService.FindAll")
	defer span.End()

	plan := query.Build(query.TaskSchema, params)

	tasks, err := s.store.List(ctx, tenantID, plan)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list tasks: %w", err))
	}
	total, err := s.store.Count(ctx, tenantID, plan)
	if err != nil {
		return nil, fail(span, fmt.Errorf("count tasks: %w", err))
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	span.SetAttributes(
		attribute.Int("task.count", len(tasks)),
		attribute.Int64("task.total", total),
	)
	return &model.Page[model.Task]{
		Data:  tasks,
		Total: total,
		Page:  plan.Page,
		Limit: plan.Limit,
	}, nil
}

// FindOne returns a single task.
func (s *TaskService) FindOne(ctx context.Context, tenantID, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.FindOne",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, fail(span, s.mapStoreError(ctx, err, errContext{taskID: id}))
	}
	return task, nil
}

// Create inserts a task. A supplied parent must already exist in the
// tenant. No cycle check is needed because a new task has no descendants.
func (s *TaskService) Create(ctx context.Context, tenantID string, req *model.CreateTaskRequest) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Create",
		trace.WithAttributes(attribute.String("task.name", req.Name)),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, fail(span, err)
	}
	switch req.TenantID {
	case "", tenantID:
	default:
		return nil, fail(span, model.BadRequest("tenantId %q does not match the authenticated tenant", req.TenantID))
	}

	ec := errContext{name: req.Name, projectID: req.ProjectID, tenantID: tenantID}
	if req.ParentTaskID != nil {
		ec.parentID = *req.ParentTaskID
		if _, err := s.store.Get(ctx, tenantID, *req.ParentTaskID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fail(span, model.NotFound("parent task with ID %q not found", *req.ParentTaskID))
			}
			return nil, fail(span, fmt.Errorf("get parent task: %w", err))
		}
	}

	task, err := s.store.Insert(ctx, &model.Task{
		TenantID:     tenantID,
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		ParentTaskID: req.ParentTaskID,
	})
	if err != nil {
		return nil, fail(span, s.mapStoreError(ctx, err, ec))
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	s.logger.InfoContext(ctx, "task created",
		slog.String("tenant_id", tenantID),
		slog.String("task_id", task.ID),
		slog.String("project_id", task.ProjectID),
	)
	return task, nil
}

// Update applies a partial update. Reparenting is checked against the
// hierarchy before the write; an explicit null parent detaches the task
// to the root level.
//
// Validation and the write are not one atomic step, so two concurrent
// reparent calls on different tasks can each pass and together commit a
// cycle.
func (s *TaskService) Update(ctx context.Context, tenantID, id string, req *model.UpdateTaskRequest) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, fail(span, err)
	}

	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, fail(span, s.mapStoreError(ctx, err, errContext{taskID: id}))
	}

	ec := errContext{taskID: id, name: current.Name, projectID: current.ProjectID, tenantID: tenantID}
	patch := repository.TaskPatch{Name: req.Name}
	if req.Name != nil {
		ec.name = *req.Name
	}

	if req.ParentTaskID.Set {
		patch.SetParent = true
		if req.ParentTaskID.IsValue() {
			parentID := req.ParentTaskID.Value
			ec.parentID = parentID
			if err := s.checkParent(ctx, tenantID, current, parentID); err != nil {
				return nil, fail(span, err)
			}
			patch.ParentTaskID = &parentID
		}
	}

	if patch.IsEmpty() {
		return current, nil
	}

	task, err := s.store.Update(ctx, tenantID, id, patch)
	if err != nil {
		return nil, fail(span, s.mapStoreError(ctx, err, ec))
	}

	s.logger.InfoContext(ctx, "task updated",
		slog.String("tenant_id", tenantID),
		slog.String("task_id", id),
		slog.Bool("reparented", patch.SetParent),
	)
	return task, nil
}

func (s *TaskService) checkParent(ctx context.Context, tenantID string, current *model.Task, parentID string) error {
	if parentID == current.ID {
		return model.BadRequest("a task cannot be its own parent")
	}
	if current.ParentTaskID != nil && *current.ParentTaskID == parentID {
		return nil
	}

	if _, err := s.store.Get(ctx, tenantID, parentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NotFound("parent task with ID %q not found", parentID)
		}
		return fmt.Errorf("get parent task: %w", err)
	}

	err := s.validator.ValidateParentAssignment(ctx, tenantID, current.ID, parentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hierarchy.ErrSelfParent):
		return model.BadRequest("a task cannot be its own parent")
	case errors.Is(err, hierarchy.ErrCycle):
		s.logger.WarnContext(ctx, "rejected circular parent assignment",
			slog.String("tenant_id", tenantID),
			slog.String("task_id", current.ID),
			slog.String("parent_task_id", parentID),
		)
		return model.BadRequest("setting this parent would create a circular reference in the task hierarchy")
	case errors.Is(err, hierarchy.ErrTooDeep):
		return model.BadRequest("setting this parent would exceed the maximum task hierarchy depth")
	default:
		return fmt.Errorf("validate parent: %w", err)
	}
}

// Remove deletes a childless task.
func (s *TaskService) Remove(ctx context.Context, tenantID, id string) error {
	ctx, span := tracer.Start(ctx, "TaskService.Remove",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if _, err := s.store.Get(ctx, tenantID, id); err != nil {
		return fail(span, s.mapStoreError(ctx, err, errContext{taskID: id}))
	}

	children, err := s.store.CountChildren(ctx, tenantID, id)
	if err != nil {
		return fail(span, fmt.Errorf("count child tasks: %w", err))
	}
	if children > 0 {
		return fail(span, hasChildren(id, children))
	}

	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return fail(span, s.mapStoreError(ctx, err, errContext{taskID: id, tenantID: tenantID, deleting: true}))
	}

	s.logger.InfoContext(ctx, "task deleted",
		slog.String("tenant_id", tenantID),
		slog.String("task_id", id),
	)
	return nil
}

func hasChildren(id string, n int64) error {
	return model.BadRequest("cannot delete task %q because it has %d child task(s); delete or move the child tasks first", id, n)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
