package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dom/learnhub-api/internal/api/middleware"
	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/dom/learnhub-api/internal/service"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

type AdminHandler struct {
	authService   *service.AuthService
	statusService *service.UserStatusService
	auditLogs     repository.AuditLogRepository
}

func NewAdminHandler(authService *service.AuthService, statusService *service.UserStatusService, auditLogs repository.AuditLogRepository) *AdminHandler {
	return &AdminHandler{
		authService:   authService,
		statusService: statusService,
		auditLogs:     auditLogs,
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (r UpdateStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

type StatusChangeResponse struct {
	UserID          string   `json:"userId"`
	OldStatus       string   `json:"oldStatus"`
	NewStatus       string   `json:"newStatus"`
	RevokedSessions []string `json:"revokedSessions"`
}

type AuditLogResponse struct {
	ID        string                 `json:"id"`
	ActorID   string                 `json:"actorId"`
	EventType string                 `json:"eventType"`
	TargetID  string                 `json:"targetId"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

func (h *AdminHandler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	change, err := h.statusService.UpdateUserStatus(r.Context(), userID, domain.UserStatus(req.Status), service.UpdateStatusInput{
		ActorID: identity.UserID.String(),
		Reason:  req.Reason,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	revoked := make([]string, 0, len(change.RevokedSessions))
	for _, id := range change.RevokedSessions {
		revoked = append(revoked, id.String())
	}
	respond.JSON(w, http.StatusOK, StatusChangeResponse{
		UserID:          change.UserID.String(),
		OldStatus:       string(change.OldStatus),
		NewStatus:       string(change.NewStatus),
		RevokedSessions: revoked,
	})
}

func (h *AdminHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.authService.GetUserByID(r.Context(), userID); err != nil {
		respond.Error(w, r, err)
		return
	}

	sessions, err := h.authService.ListSessions(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toSessionResponses(sessions, ""))
}

func (h *AdminHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.authService.RevokeUserSession(r.Context(), identity.UserID.String(), uuid.Nil, sessionID); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.AuditLogFilter{
		TargetID:  query.Get("targetId"),
		EventType: query.Get("eventType"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respond.ValidationFailed(w, map[string]string{"limit": "must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	entries, err := h.auditLogs.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, AuditLogResponse{
			ID:        e.ID.String(),
			ActorID:   e.ActorID,
			EventType: e.EventType,
			TargetID:  e.TargetID,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	respond.JSON(w, http.StatusOK, resp)
}
