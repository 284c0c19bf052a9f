/*
handlers.go - HTTP API handlers for the expense schedule service

PURPOSE:
  Exposes the schedule engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Schedules:
    GET    /api/schedules               List the account's schedules
    POST   /api/schedules               Create a schedule
    GET    /api/schedules/{id}          Get one schedule
    POST   /api/schedules/{id}/pause    Pause an active schedule
    POST   /api/schedules/{id}/resume   Resume a paused schedule
    POST   /api/schedules/{id}/run-now  Materialize immediately

  Admin:
    POST   /api/admin/process           Run the batch processor
    POST   /api/admin/cars              Upsert a vehicle activity flag

  Health:
    GET    /api/health

TENANCY:
  The caller's account and user come from the X-Account-Id and X-User-Id
  headers, stamped by the gateway in front of this service. Requests
  without an account are rejected; cross-account ids answer 404.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Schedule not found (or foreign account)
  - 409: Claim conflict, retryable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - cron.go: The periodic counterpart of /admin/process
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
	"github.com/dcerge/carexpenses-api-sub003/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// CarSaver is the optional vehicle upsert used by /admin/cars. The SQLite
// store implements it; hosts with an external vehicle service leave it nil.
type CarSaver interface {
	SaveCar(ctx context.Context, id, accountID, name string, active bool) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     schedule.TxStorage
	Cars      CarSaver
	Calc      *recurrence.Calculator
	Lifecycle *schedule.Lifecycle
	Batch     *schedule.BatchProcessor
	Logger    zerolog.Logger
}

func NewHandler(store schedule.TxStorage, cars CarSaver, calc *recurrence.Calculator, lc *schedule.Lifecycle, bp *schedule.BatchProcessor, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:     store,
		Cars:      cars,
		Calc:      calc,
		Lifecycle: lc,
		Batch:     bp,
		Logger:    logger,
	}
}

func accountID(r *http.Request) string {
	return r.Header.Get("X-Account-Id")
}

func actorID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// =============================================================================
// SCHEDULE CRUD
// =============================================================================

// ListSchedules returns the account's schedules.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}

	schedules, err := h.Store.ListSchedules(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i := range schedules {
		dtos[i] = toScheduleDTO(&schedules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule returns a single schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}

	s, err := h.Store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get schedule", err)
		return
	}
	if s == nil || s.AccountID != account || s.RemovedAt != nil {
		writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toScheduleDTO(s))
}

// CreateSchedule validates and stores a new schedule, pre-computing its
// first nextScheduledAt so the batch processor can pick it up.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CarID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "carId and userId are required", nil)
		return
	}

	schedType := recurrence.ScheduleType(req.Type)
	if !schedType.IsValid() {
		writeError(w, http.StatusBadRequest, "Unknown schedule type", nil)
		return
	}
	if err := recurrence.ValidateScheduleDays(schedType, req.ScheduleDays); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scheduleDays", err)
		return
	}

	startAt, err := recurrence.ParseDate(req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid startAt (use YYYY-MM-DD)", err)
		return
	}
	var endAt *recurrence.DatePoint
	if req.EndAt != "" {
		e, err := recurrence.ParseDate(req.EndAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endAt (use YYYY-MM-DD)", err)
			return
		}
		if e.Before(startAt) {
			writeError(w, http.StatusBadRequest, "endAt must not be before startAt", nil)
			return
		}
		endAt = &e
	}

	s := &schedule.ExpenseSchedule{
		AccountID:    account,
		CarID:        req.CarID,
		UserID:       req.UserID,
		Type:         schedType,
		ScheduleDays: req.ScheduleDays,
		StartAt:      startAt,
		EndAt:        endAt,
		Status:       schedule.StatusActive,
		Template: schedule.ExpenseTemplate{
			CostWork:   req.Template.CostWork,
			CostParts:  req.Template.CostParts,
			Tax:        req.Template.Tax,
			Fees:       req.Template.Fees,
			Subtotal:   req.Template.Subtotal,
			TotalPrice: req.Template.TotalPrice,
			WhereDone:  req.Template.WhereDone,
			Comments:   req.Template.Comments,
			KindID:     req.Template.KindID,
		},
		Currency:  req.Currency,
		CreatedBy: actorID(r),
	}

	// The start date itself must be eligible as the first occurrence.
	if next, ok := h.Calc.NextOccurrence(s.Type, s.ScheduleDays, s.StartAt, s.EndAt, s.StartAt.AddDays(-1)); ok {
		s.NextScheduledAt = &next
	}

	if err := h.Store.CreateSchedule(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create schedule", err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleDTO(s))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// PauseSchedule pauses an active schedule.
func (h *Handler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}

	s, err := h.Lifecycle.Pause(r.Context(), chi.URLParam(r, "id"), account, actorID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to pause schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(s))
}

// ResumeSchedule resumes a paused schedule without backfilling the pause.
func (h *Handler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}

	s, err := h.Lifecycle.Resume(r.Context(), chi.URLParam(r, "id"), account, actorID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to resume schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(s))
}

// RunNow materializes a schedule immediately. The body is optional; an
// empty body means a full sync.
func (h *Handler) RunNow(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}

	var req RunNowRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	res, err := h.Lifecycle.RunNow(r.Context(), chi.URLParam(r, "id"), account, actorID(r), req.SkipPausedPeriod)
	if err != nil {
		h.writeDomainError(w, "Failed to run schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(res))
}

// =============================================================================
// ADMIN
// =============================================================================

// Process runs one bounded batch invocation. The summary always comes back
// with HTTP 200; per-schedule failures live inside it.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	summary, err := h.Batch.ProcessScheduledExpenses(r.Context(), req.BatchSize, req.MaxSchedules)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Batch processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SaveCar upserts a vehicle activity flag consulted by due selection.
func (h *Handler) SaveCar(w http.ResponseWriter, r *http.Request) {
	account := accountID(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Account-Id header", nil)
		return
	}
	if h.Cars == nil {
		writeError(w, http.StatusNotFound, "Vehicle management is not enabled", nil)
		return
	}

	var req SaveCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	if err := h.Cars.SaveCar(r.Context(), req.ID, account, req.Name, active); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save car", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Schedule not found", nil)
	case schedule.IsConflict(err):
		writeError(w, http.StatusConflict, "Schedule is being processed, retry shortly", err)
	case schedule.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
