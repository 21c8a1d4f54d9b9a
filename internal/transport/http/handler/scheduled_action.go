package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/catalog"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http/middleware"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

type scheduledActionUsecaser interface {
	Create(ctx context.Context, input usecase.CreateScheduledActionInput) (*domain.ScheduledAction, error)
	List(ctx context.Context, scope domain.Scope, status domain.Status) ([]*domain.ScheduledAction, error)
	Get(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error)
	Update(ctx context.Context, scope domain.Scope, id string, input usecase.UpdateScheduledActionInput) (*domain.ScheduledAction, error)
	Delete(ctx context.Context, scope domain.Scope, id string) error
	Execute(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error)
	Templates() []catalog.Template
}

type ScheduledActionHandler struct {
	uc     scheduledActionUsecaser
	logger *slog.Logger
}

func NewScheduledActionHandler(uc scheduledActionUsecaser, logger *slog.Logger) *ScheduledActionHandler {
	return &ScheduledActionHandler{uc: uc, logger: logger.With("component", "scheduled_action_handler")}
}

type createScheduledActionRequest struct {
	UserID           string                `json:"user_id"`
	UserDisplayName  string                `json:"user_display_name"`
	UserEmail        string                `json:"user_email"`
	ScheduledDate    string                `json:"scheduled_date"`
	ScheduledTime    string                `json:"scheduled_time"`
	Timezone         string                `json:"timezone"`
	Template         string                `json:"template"`
	UseCustomActions bool                  `json:"use_custom_actions"`
	CustomActions    *domain.CustomActions `json:"custom_actions"`
	NotifyManager    bool                  `json:"notify_manager"`
	NotifyUser       bool                  `json:"notify_user"`
	ManagerEmail     string                `json:"manager_email"`
	CustomMessage    string                `json:"custom_message"`
}

// updateScheduledActionRequest is a patch. Sending template,
// use_custom_actions or custom_actions replaces the step configuration.
type updateScheduledActionRequest struct {
	ScheduledDate    *string               `json:"scheduled_date"`
	ScheduledTime    *string               `json:"scheduled_time"`
	Timezone         *string               `json:"timezone"`
	Template         *string               `json:"template"`
	UseCustomActions *bool                 `json:"use_custom_actions"`
	CustomActions    *domain.CustomActions `json:"custom_actions"`
	NotifyManager    *bool                 `json:"notify_manager"`
	NotifyUser       *bool                 `json:"notify_user"`
	ManagerEmail     *string               `json:"manager_email"`
	CustomMessage    *string               `json:"custom_message"`
}

// actionConfig builds the step configuration. Flags sent without a template
// mean custom actions even when use_custom_actions is left out.
func actionConfig(template string, useCustom bool, custom *domain.CustomActions) domain.ActionConfig {
	if useCustom || (template == "" && custom != nil) {
		var c domain.CustomActions
		if custom != nil {
			c = *custom
		}
		return domain.CustomConfig(c)
	}
	if template == "" {
		return domain.ActionConfig{}
	}
	return domain.TemplateConfig(template)
}

func (r updateScheduledActionRequest) config() *domain.ActionConfig {
	if r.Template == nil && r.UseCustomActions == nil && r.CustomActions == nil {
		return nil
	}
	var template string
	if r.Template != nil {
		template = *r.Template
	}
	cfg := actionConfig(template, r.UseCustomActions != nil && *r.UseCustomActions, r.CustomActions)
	return &cfg
}

type scheduledActionResponse struct {
	ID               string                `json:"id"`
	UserID           string                `json:"user_id"`
	UserDisplayName  string                `json:"user_display_name"`
	UserEmail        string                `json:"user_email"`
	ScheduledDate    string                `json:"scheduled_date"`
	ScheduledTime    string                `json:"scheduled_time"`
	Timezone         string                `json:"timezone"`
	ScheduledAt      time.Time             `json:"scheduled_at"`
	Template         *string               `json:"template"`
	UseCustomActions bool                  `json:"use_custom_actions"`
	CustomActions    *domain.CustomActions `json:"custom_actions"`
	NotifyManager    bool                  `json:"notify_manager"`
	NotifyUser       bool                  `json:"notify_user"`
	ManagerEmail     string                `json:"manager_email,omitempty"`
	CustomMessage    string                `json:"custom_message,omitempty"`
	Status           domain.Status         `json:"status"`
	Results          []domain.StepResult   `json:"results"`
	FailureReason    *string               `json:"failure_reason,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	ExecutedAt       *time.Time            `json:"executed_at"`
	FinishedAt       *time.Time            `json:"finished_at,omitempty"`
}

func toScheduledActionResponse(a *domain.ScheduledAction) scheduledActionResponse {
	resp := scheduledActionResponse{
		ID:              a.ID,
		UserID:          a.SubjectUserID,
		UserDisplayName: a.SubjectDisplayName,
		UserEmail:       a.SubjectEmail,
		ScheduledDate:   a.ScheduledDate,
		ScheduledTime:   a.ScheduledTime,
		Timezone:        a.Timezone,
		ScheduledAt:     a.ScheduledAt,
		NotifyManager:   a.NotifyManager,
		NotifyUser:      a.NotifyUser,
		ManagerEmail:    a.ManagerEmail,
		CustomMessage:   a.CustomMessage,
		Status:          a.Status,
		Results:         results(a.Results),
		FailureReason:   a.FailureReason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		ExecutedAt:      a.ExecutedAt,
		FinishedAt:      a.FinishedAt,
	}
	if id, ok := a.Config.Template(); ok {
		resp.Template = &id
	}
	if c, ok := a.Config.Custom(); ok {
		resp.UseCustomActions = true
		resp.CustomActions = &c
	}
	return resp
}

func results(r []domain.StepResult) []domain.StepResult {
	if r == nil {
		return []domain.StepResult{}
	}
	return r
}

type templateResponse struct {
	ID    string         `json:"id"`
	Steps []templateStep `json:"steps"`
}

type templateStep struct {
	Kind domain.StepKind `json:"kind"`
	Name string          `json:"name"`
}

func (h *ScheduledActionHandler) Create(ctx *gin.Context) {
	var req createScheduledActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.uc.Create(ctx.Request.Context(), usecase.CreateScheduledActionInput{
		Scope:              middleware.Scope(ctx),
		SubjectUserID:      req.UserID,
		SubjectDisplayName: req.UserDisplayName,
		SubjectEmail:       req.UserEmail,
		ScheduledDate:      req.ScheduledDate,
		ScheduledTime:      req.ScheduledTime,
		Timezone:           req.Timezone,
		Config:             actionConfig(req.Template, req.UseCustomActions, req.CustomActions),
		NotifyManager:      req.NotifyManager,
		NotifyUser:         req.NotifyUser,
		ManagerEmail:       req.ManagerEmail,
		CustomMessage:      req.CustomMessage,
	})
	if err != nil {
		h.writeError(ctx, "create scheduled action", "", err)
		return
	}

	ctx.JSON(http.StatusCreated, toScheduledActionResponse(a))
}

func (h *ScheduledActionHandler) List(ctx *gin.Context) {
	actions, err := h.uc.List(ctx.Request.Context(), middleware.Scope(ctx), domain.Status(ctx.Query("status")))
	if err != nil {
		h.writeError(ctx, "list scheduled actions", "", err)
		return
	}

	items := make([]scheduledActionResponse, len(actions))
	for i, a := range actions {
		items[i] = toScheduledActionResponse(a)
	}
	ctx.JSON(http.StatusOK, gin.H{"scheduled_actions": items})
}

func (h *ScheduledActionHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	a, err := h.uc.Get(ctx.Request.Context(), middleware.Scope(ctx), id)
	if err != nil {
		h.writeError(ctx, "get scheduled action", id, err)
		return
	}

	ctx.JSON(http.StatusOK, toScheduledActionResponse(a))
}

func (h *ScheduledActionHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req updateScheduledActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.uc.Update(ctx.Request.Context(), middleware.Scope(ctx), id, usecase.UpdateScheduledActionInput{
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Timezone:      req.Timezone,
		Config:        req.config(),
		NotifyManager: req.NotifyManager,
		NotifyUser:    req.NotifyUser,
		ManagerEmail:  req.ManagerEmail,
		CustomMessage: req.CustomMessage,
	})
	if err != nil {
		h.writeError(ctx, "update scheduled action", id, err)
		return
	}

	ctx.JSON(http.StatusOK, toScheduledActionResponse(a))
}

func (h *ScheduledActionHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.Delete(ctx.Request.Context(), middleware.Scope(ctx), id); err != nil {
		h.writeError(ctx, "delete scheduled action", id, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Execute runs the record now and answers once every step has finished.
// Step failures still produce a 200; the record's status says how it went.
func (h *ScheduledActionHandler) Execute(ctx *gin.Context) {
	id := ctx.Param("id")

	a, err := h.uc.Execute(ctx.Request.Context(), middleware.Scope(ctx), id)
	if err != nil {
		h.writeError(ctx, "execute scheduled action", id, err)
		return
	}

	resp := toScheduledActionResponse(a)
	ctx.JSON(http.StatusOK, gin.H{
		"scheduled_action": resp,
		"results":          resp.Results,
	})
}

func (h *ScheduledActionHandler) Templates(ctx *gin.Context) {
	templates := h.uc.Templates()
	items := make([]templateResponse, len(templates))
	for i, t := range templates {
		steps := make([]templateStep, len(t.Steps))
		for j, s := range t.Steps {
			steps[j] = templateStep{Kind: s.Kind, Name: s.Name}
		}
		items[i] = templateResponse{ID: t.ID, Steps: steps}
	}
	ctx.JSON(http.StatusOK, gin.H{"templates": items})
}

func (h *ScheduledActionHandler) writeError(ctx *gin.Context, op, id string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := verr.Fields
		if len(fields) == 0 {
			fields = map[string]string{verr.Field: verr.Reason}
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errValidation, "fields": fields})
	case errors.Is(err, domain.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduledActionNotFound})
	case errors.Is(err, domain.ErrInvalidState):
		ctx.JSON(http.StatusConflict, gin.H{"error": errInvalidState})
	case errors.Is(err, domain.ErrUnauthorized):
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
	default:
		h.logger.ErrorContext(ctx.Request.Context(), op, "scheduled_action_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
