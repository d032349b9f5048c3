package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/tasktree/internal/model"
	"github.com/hiroki-koketsu/tasktree/internal/query"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PostgreSQL SQLSTATE codes for constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const taskColumns = "id, tenant_id, project_id, name, parent_task_id, created_at, updated_at"

var _ TaskStore = (*PostgresStore)(nil)

var constraintColumns = map[string]string{
	constraintName:    ColumnName,
	constraintTenant:  ColumnTenantID,
	constraintProject: ColumnProjectID,
	constraintParent:  ColumnParentTaskID,
}

// PostgresStore is a PostgreSQL-backed TaskStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tenants, projects and tasks tables if they don't
// exist. Composite foreign keys keep project and parent references inside
// the owning tenant.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id         TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL CONSTRAINT projects_tenant_fk REFERENCES tenants(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT projects_tenant_id_id_key UNIQUE (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id             TEXT PRIMARY KEY,
			tenant_id      TEXT NOT NULL,
			project_id     TEXT NOT NULL,
			name           VARCHAR(255) NOT NULL,
			parent_task_id TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT tasks_tenant_id_id_key UNIQUE (tenant_id, id),
			CONSTRAINT ` + constraintName + ` UNIQUE (tenant_id, project_id, name),
			CONSTRAINT ` + constraintTenant + ` FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			CONSTRAINT ` + constraintProject + ` FOREIGN KEY (tenant_id, project_id) REFERENCES projects(tenant_id, id),
			CONSTRAINT ` + constraintParent + ` FOREIGN KEY (tenant_id, parent_task_id) REFERENCES tasks(tenant_id, id) ON DELETE RESTRICT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_tenant_parent ON tasks(tenant_id, parent_task_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AddTenant registers a tenant if it does not already exist.
func (s *PostgresStore) AddTenant(ctx context.Context, tenantID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tenants (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, tenantID)
	if err != nil {
		return fmt.Errorf("add tenant %s: %w", tenantID, err)
	}
	return nil
}

// AddProject registers a project under tenantID if it does not already exist.
func (s *PostgresStore) AddProject(ctx context.Context, tenantID, projectID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO projects (id, tenant_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, projectID, tenantID)
	if err != nil {
		return fmt.Errorf("add project %s: %w", projectID, classifyPgError(err))
	}
	return nil
}

// Get retrieves a task by its ID.
func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Get",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	task, err := pgx.CollectExactlyOneRow(rows, scanTask)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return &task, nil
}

// ParentOf returns the parent pointer of a task.
func (s *PostgresStore) ParentOf(ctx context.Context, tenantID, id string) (*string, bool, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.ParentOf",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var parent *string
	err := s.pool.QueryRow(ctx,
		`SELECT parent_task_id FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(&parent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("parent of task %s: %w", id, err)
	}
	return parent, true, nil
}

// Insert stores a new task, assigning a time-ordered ID.
func (s *PostgresStore) Insert(ctx context.Context, in *model.Task) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Insert",
		trace.WithAttributes(attribute.String("task.name", in.Name)),
	)
	defer span.End()

	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().Truncate(time.Microsecond)

	rows, err := s.pool.Query(ctx, `
		INSERT INTO tasks (id, tenant_id, project_id, name, parent_task_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+taskColumns,
		id, in.TenantID, in.ProjectID, in.Name, in.ParentTaskID, now)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", classifyPgError(err))
	}
	task, err := pgx.CollectExactlyOneRow(rows, scanTask)
	if err != nil {
		return nil, classifyPgError(err)
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	return &task, nil
}

// Update applies patch to an existing task.
func (s *PostgresStore) Update(ctx context.Context, tenantID, id string, patch TaskPatch) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	stmt, args := updateSQL(tenantID, id, patch, time.Now().Truncate(time.Microsecond))
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, classifyPgError(err))
	}
	task, err := pgx.CollectExactlyOneRow(rows, scanTask)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return &task, nil
}

// Delete removes a task.
func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracer.Start(ctx, "PostgresStore.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, classifyPgError(err))
	}
	if tag.RowsAffected() == 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return ErrNotFound
	}
	return nil
}

// CountChildren returns the number of tasks whose parent is id.
func (s *PostgresStore) CountChildren(ctx context.Context, tenantID, id string) (int64, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.CountChildren",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE tenant_id = $1 AND parent_task_id = $2`, tenantID, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count children of %s: %w", id, err)
	}
	return n, nil
}

// List returns the page of tasks selected by plan.
func (s *PostgresStore) List(ctx context.Context, tenantID string, plan query.Plan) ([]model.Task, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.List")
	defer span.End()

	stmt, args := plan.Scoped(ColumnTenantID, tenantID).SelectSQL(tasksTable, taskColumns)
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, scanTask)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Count returns how many tasks satisfy the plan's predicate.
func (s *PostgresStore) Count(ctx context.Context, tenantID string, plan query.Plan) (int64, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Count")
	defer span.End()

	stmt, args := plan.Scoped(ColumnTenantID, tenantID).CountSQL(tasksTable)
	var n int64
	if err := s.pool.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// CountAll returns the number of tasks across all tenants.
func (s *PostgresStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

func updateSQL(tenantID, id string, patch TaskPatch, now time.Time) (string, []any) {
	set := []string{"updated_at = $1"}
	args := []any{now}

	if patch.Name != nil {
		args = append(args, *patch.Name)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.SetParent {
		args = append(args, patch.ParentTaskID)
		set = append(set, fmt.Sprintf("parent_task_id = $%d", len(args)))
	}

	args = append(args, tenantID, id)
	stmt := fmt.Sprintf("UPDATE tasks SET %s WHERE tenant_id = $%d AND id = $%d RETURNING %s",
		strings.Join(set, ", "), len(args)-1, len(args), taskColumns)
	return stmt, args
}

func scanTask(row pgx.CollectableRow) (model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Name, &t.ParentTaskID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// classifyPgError turns missing rows into ErrNotFound and constraint
// violations into ConstraintError. Anything else is returned as is.
func classifyPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	var kind ConstraintKind
	switch pgErr.Code {
	case pgUniqueViolation:
		kind = ConstraintUnique
	case pgForeignKeyViolation:
		kind = ConstraintForeignKey
	default:
		return err
	}

	column := constraintColumns[pgErr.ConstraintName]
	if column == "" {
		column = pgErr.ColumnName
	}
	return &ConstraintError{Kind: kind, Constraint: pgErr.ConstraintName, Column: column, Err: err}
}
