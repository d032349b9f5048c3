package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ConstraintKind
		column string
	}{
		{"unique name", &pgconn.PgError{Code: "23505", ConstraintName: "tasks_tenant_project_name_key"}, ConstraintUnique, ColumnName},
		{"project fk", &pgconn.PgError{Code: "23503", ConstraintName: "tasks_project_fk"}, ConstraintForeignKey, ColumnProjectID},
		{"tenant fk", &pgconn.PgError{Code: "23503", ConstraintName: "tasks_tenant_fk"}, ConstraintForeignKey, ColumnTenantID},
		{"parent fk wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", ConstraintName: "tasks_parent_fk"}), ConstraintForeignKey, ColumnParentTaskID},
		{"unknown constraint falls back to column", &pgconn.PgError{Code: "23505", ConstraintName: "other", ColumnName: "x"}, ConstraintUnique, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cerr *ConstraintError
			require.ErrorAs(t, classifyPgError(tt.err), &cerr)
			assert.Equal(t, tt.kind, cerr.Kind)
			assert.Equal(t, tt.column, cerr.Column)

			var pgErr *pgconn.PgError
			assert.ErrorAs(t, cerr, &pgErr, "the driver error stays reachable")
		})
	}
}

func TestClassifyPgError_PassThrough(t *testing.T) {
	assert.ErrorIs(t, classifyPgError(pgx.ErrNoRows), ErrNotFound)

	other := &pgconn.PgError{Code: "40001"}
	assert.Same(t, other, classifyPgError(other))

	plain := errors.New("connection reset")
	assert.Same(t, plain, classifyPgError(plain))
}

func TestUpdateSQL(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	name := "renamed"
	parent := "p"

	stmt, args := updateSQL("t", "id", TaskPatch{Name: &name, SetParent: true, ParentTaskID: &parent}, now)
	assert.Equal(t,
		"UPDATE tasks SET updated_at = $1, name = $2, parent_task_id = $3 WHERE tenant_id = $4 AND id = $5 RETURNING "+taskColumns,
		stmt)
	assert.Equal(t, []any{now, "renamed", &parent, "t", "id"}, args)

	stmt, args = updateSQL("t", "id", TaskPatch{SetParent: true}, now)
	assert.Equal(t,
		"UPDATE tasks SET updated_at = $1, parent_task_id = $2 WHERE tenant_id = $3 AND id = $4 RETURNING "+taskColumns,
		stmt)
	assert.Equal(t, []any{now, (*string)(nil), "t", "id"}, args)
}
