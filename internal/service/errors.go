package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hiroki-koketsu/tasktree/internal/model"
	"github.com/hiroki-koketsu/tasktree/internal/repository"
)

// errContext carries what the failing operation was doing so store errors
// can be reported in domain terms.
type errContext struct {
	taskID    string
	name      string
	projectID string
	tenantID  string
	parentID  string
	deleting  bool
}

// mapStoreError is the single place where store errors become domain
// errors. Errors it does not recognise are returned unchanged.
func (s *TaskService) mapStoreError(ctx context.Context, err error, ec errContext) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NotFound("task with ID %q not found", ec.taskID)
	}

	var cerr *repository.ConstraintError
	if !errors.As(err, &cerr) {
		return err
	}

	switch cerr.Kind {
	case repository.ConstraintUnique:
		return model.Conflict("task with name %q already exists in project %q", ec.name, ec.projectID)
	case repository.ConstraintForeignKey:
		switch cerr.Column {
		case repository.ColumnProjectID:
			return model.BadRequest("project with ID %q does not exist", ec.projectID)
		case repository.ColumnTenantID:
			return model.BadRequest("tenant with ID %q does not exist", ec.tenantID)
		case repository.ColumnParentTaskID:
			if ec.deleting {
				// A child was attached after the count; report the current number.
				n, countErr := s.store.CountChildren(ctx, ec.tenantID, ec.taskID)
				if countErr != nil {
					return fmt.Errorf("count child tasks: %w", countErr)
				}
				if n > 0 {
					return hasChildren(ec.taskID, n)
				}
				break
			}
			return model.BadRequest("parent task with ID %q does not exist", ec.parentID)
		}
		return model.BadRequest("a referenced record does not exist")
	}
	return err
}
