package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength is the longest task name accepted, in characters.
const MaxNameLength = 255

// Task is a node in a project's work breakdown. A nil ParentTaskID marks a
// root task.
type Task struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	ProjectID    string    `json:"projectId"`
	Name         string    `json:"name"`
	ParentTaskID *string   `json:"parentTaskId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsRoot reports whether the task has no parent.
func (t *Task) IsRoot() bool {
	return t.ParentTaskID == nil
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	TenantID     string  `json:"tenantId"`
	ProjectID    string  `json:"projectId"`
	Name         string  `json:"name"`
	ParentTaskID *string `json:"parentTaskId,omitempty"`
}

// Validate checks if the CreateTaskRequest is valid.
func (r *CreateTaskRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return ErrProjectRequired
	}
	if err := validateName(r.Name); err != nil {
		return err
	}
	if r.ParentTaskID != nil && strings.TrimSpace(*r.ParentTaskID) == "" {
		return BadRequest("parentTaskId must not be empty")
	}
	return nil
}

// UpdateTaskRequest represents a partial update. Absent fields are left
// untouched; ParentTaskID distinguishes absent, explicit null and an id.
type UpdateTaskRequest struct {
	Name         *string        `json:"name,omitempty"`
	ParentTaskID NullableString `json:"parentTaskId"`
}

// Validate checks if the UpdateTaskRequest is valid.
func (r *UpdateTaskRequest) Validate() error {
	if r.Name != nil {
		if err := validateName(*r.Name); err != nil {
			return err
		}
	}
	if r.ParentTaskID.IsValue() && strings.TrimSpace(r.ParentTaskID.Value) == "" {
		return BadRequest("parentTaskId must not be empty")
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}
