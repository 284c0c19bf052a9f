/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcerge/carexpenses-api-sub003/schedule"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// TemplateDTO carries the financial fields a schedule stamps onto each
// generated expense. Decimal fields marshal as JSON numbers.
type TemplateDTO struct {
	CostWork   *decimal.Decimal `json:"costWork,omitempty"`
	CostParts  *decimal.Decimal `json:"costParts,omitempty"`
	Tax        *decimal.Decimal `json:"tax,omitempty"`
	Fees       *decimal.Decimal `json:"fees,omitempty"`
	Subtotal   *decimal.Decimal `json:"subtotal,omitempty"`
	TotalPrice *decimal.Decimal `json:"totalPrice,omitempty"`
	WhereDone  string           `json:"whereDone,omitempty"`
	Comments   string           `json:"comments,omitempty"`
	KindID     string           `json:"kindId,omitempty"`
}

// ScheduleDTO represents an expense schedule in API responses.
type ScheduleDTO struct {
	ID                   string      `json:"id"`
	AccountID            string      `json:"accountId"`
	CarID                string      `json:"carId"`
	UserID               string      `json:"userId"`
	Type                 string      `json:"type"`
	ScheduleDays         string      `json:"scheduleDays"`
	StartAt              string      `json:"startAt"`
	EndAt                *string     `json:"endAt,omitempty"`
	LastAddedAt          *string     `json:"lastAddedAt,omitempty"`
	NextScheduledAt      *string     `json:"nextScheduledAt,omitempty"`
	LastCreatedExpenseID string      `json:"lastCreatedExpenseId,omitempty"`
	Status               string      `json:"status"`
	Template             TemplateDTO `json:"template"`
	Currency             string      `json:"currency,omitempty"`
	CreatedAt            string      `json:"createdAt,omitempty"`
	UpdatedAt            string      `json:"updatedAt,omitempty"`
}

// CreateScheduleRequest is the request to create a schedule.
type CreateScheduleRequest struct {
	CarID        string      `json:"carId"`
	UserID       string      `json:"userId"`
	Type         string      `json:"type"`
	ScheduleDays string      `json:"scheduleDays"`
	StartAt      string      `json:"startAt"`
	EndAt        string      `json:"endAt,omitempty"`
	Template     TemplateDTO `json:"template"`
	Currency     string      `json:"currency,omitempty"`
}

// RunNowRequest is the request body for POST /schedules/{id}/run-now.
type RunNowRequest struct {
	// SkipPausedPeriod writes off missed history and only creates today's
	// occurrence. Default false: full sync from the schedule start.
	SkipPausedPeriod bool `json:"skipPausedPeriod"`
}

// RunResultDTO reports what one run-now did.
type RunResultDTO struct {
	Schedule ScheduleDTO `json:"schedule"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`

	StatsUpdates    int `json:"statsUpdates"`
	IntervalUpdates int `json:"intervalUpdates"`
}

// ProcessRequest tunes one batch invocation. Zero values take the
// configured defaults.
type ProcessRequest struct {
	BatchSize    int `json:"batchSize,omitempty"`
	MaxSchedules int `json:"maxSchedules,omitempty"`
}

// SaveCarRequest upserts a vehicle's activity flag.
type SaveCarRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toScheduleDTO(s *schedule.ExpenseSchedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:                   s.ID,
		AccountID:            s.AccountID,
		CarID:                s.CarID,
		UserID:               s.UserID,
		Type:                 string(s.Type),
		ScheduleDays:         s.ScheduleDays,
		StartAt:              s.StartAt.String(),
		LastCreatedExpenseID: s.LastCreatedExpenseID,
		Status:               string(s.Status),
		Template: TemplateDTO{
			CostWork:   s.Template.CostWork,
			CostParts:  s.Template.CostParts,
			Tax:        s.Template.Tax,
			Fees:       s.Template.Fees,
			Subtotal:   s.Template.Subtotal,
			TotalPrice: s.Template.TotalPrice,
			WhereDone:  s.Template.WhereDone,
			Comments:   s.Template.Comments,
			KindID:     s.Template.KindID,
		},
		Currency: s.Currency,
	}
	if s.EndAt != nil {
		v := s.EndAt.String()
		dto.EndAt = &v
	}
	if s.LastAddedAt != nil {
		v := s.LastAddedAt.String()
		dto.LastAddedAt = &v
	}
	if s.NextScheduledAt != nil {
		v := s.NextScheduledAt.String()
		dto.NextScheduledAt = &v
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	if !s.UpdatedAt.IsZero() {
		dto.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toRunResultDTO(res *schedule.RunResult) RunResultDTO {
	return RunResultDTO{
		Schedule:        toScheduleDTO(res.Schedule),
		Created:         res.Created,
		Updated:         res.Updated,
		Removed:         res.Removed,
		Skipped:         res.Skipped,
		StatsUpdates:    res.StatsUpdates,
		IntervalUpdates: res.IntervalUpdates,
	}
}
