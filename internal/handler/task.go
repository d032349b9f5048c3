package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/tasktree/internal/model"
	"github.com/hiroki-koketsu/tasktree/internal/query"
	"github.com/hiroki-koketsu/tasktree/internal/service"
	"github.com/hiroki-koketsu/tasktree/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/tasktree/internal/handler")

const (
	routeTasks = "/api/v1/tasks"
	routeTask  = "/api/v1/tasks/{id}"
)

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	svc     *service.TaskService
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc *service.TaskService, logger *slog.Logger, metrics *telemetry.Metrics) *TaskHandler {
	return &TaskHandler{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
	}
}

// Routes returns the chi router with task routes. Every route requires a
// tenant.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireTenant)

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	return r
}

// List returns a page of tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracer.Start(r.Context(), "TaskHandler.List")
	defer span.End()

	p, _ := PrincipalFrom(ctx)
	params := query.FromURLValues(query.TaskSchema, r.URL.Query())

	h.logger.DebugContext(ctx, "listing tasks", slog.String("tenant_id", p.TenantID))

	page, err := h.svc.FindAll(ctx, p.TenantID, params)
	if err != nil {
		h.fail(ctx, w, http.MethodGet, routeTasks, start, err)
		return
	}

	span.SetAttributes(attribute.Int("task.count", len(page.Data)))
	h.respond(ctx, w, http.MethodGet, routeTasks, start, http.StatusOK, page)
}

// Create adds a new task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Create")
	defer span.End()

	p, _ := PrincipalFrom(ctx)

	var req model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.fail(ctx, w, http.MethodPost, routeTasks, start, model.BadRequest("invalid request body"))
		return
	}

	task, err := h.svc.Create(ctx, p.TenantID, &req)
	if err != nil {
		h.fail(ctx, w, http.MethodPost, routeTasks, start, err)
		return
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	h.logger.InfoContext(ctx, "task created via api",
		slog.String("id", task.ID),
		slog.String("actor_id", p.ActorID),
	)
	h.respond(ctx, w, http.MethodPost, routeTasks, start, http.StatusCreated, task)
}

// GetByID returns a task by ID.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	p, _ := PrincipalFrom(ctx)

	task, err := h.svc.FindOne(ctx, p.TenantID, id)
	if err != nil {
		h.fail(ctx, w, http.MethodGet, routeTask, start, err)
		return
	}

	h.respond(ctx, w, http.MethodGet, routeTask, start, http.StatusOK, task)
}

// Update partially modifies an existing task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	p, _ := PrincipalFrom(ctx)

	var req model.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.fail(ctx, w, http.MethodPatch, routeTask, start, model.BadRequest("invalid request body"))
		return
	}

	task, err := h.svc.Update(ctx, p.TenantID, id, &req)
	if err != nil {
		h.fail(ctx, w, http.MethodPatch, routeTask, start, err)
		return
	}

	h.logger.InfoContext(ctx, "task updated via api",
		slog.String("id", id),
		slog.String("actor_id", p.ActorID),
	)
	h.respond(ctx, w, http.MethodPatch, routeTask, start, http.StatusOK, task)
}

// Delete removes a task.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	p, _ := PrincipalFrom(ctx)

	if err := h.svc.Remove(ctx, p.TenantID, id); err != nil {
		h.fail(ctx, w, http.MethodDelete, routeTask, start, err)
		return
	}

	h.logger.InfoContext(ctx, "task deleted via api",
		slog.String("id", id),
		slog.String("actor_id", p.ActorID),
	)
	w.WriteHeader(http.StatusNoContent)
	h.recordMetrics(ctx, http.MethodDelete, routeTask, http.StatusNoContent, start)
}

// Health returns a health check response.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TaskHandler) respond(ctx context.Context, w http.ResponseWriter, method, route string, start time.Time, status int, data any) {
	respondJSON(w, status, data)
	h.recordMetrics(ctx, method, route, status, start)
}

// fail writes err to the client. Domain errors keep their message;
// anything else is logged and reported as an internal error.
func (h *TaskHandler) fail(ctx context.Context, w http.ResponseWriter, method, route string, start time.Time, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var derr *model.Error
	if errors.As(err, &derr) {
		status = statusFor(derr.Kind)
		message = derr.Message
		h.logger.WarnContext(ctx, "request rejected",
			slog.String("kind", derr.Kind.String()),
			slog.String("error", derr.Message),
		)
		h.metrics.DomainErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error.kind", derr.Kind.String()),
			attribute.String("http.route", route),
		))
	} else {
		trace.SpanFromContext(ctx).RecordError(err)
		h.logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
	}

	respondJSON(w, status, map[string]string{"error": message})
	h.recordMetrics(ctx, method, route, status, start)
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *TaskHandler) recordMetrics(ctx context.Context, method, route string, status int, start time.Time) {
	duration := time.Since(start).Seconds()

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)

	h.metrics.RequestCounter.Add(ctx, 1, attrs)
	h.metrics.RequestDuration.Record(ctx, duration, attrs)
}
