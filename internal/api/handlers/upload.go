package handlers

import (
	"net/http"

	"github.com/dom/learnhub-api/internal/api/middleware"
	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/service"
	validation "github.com/go-ozzo/ozzo-validation"
)

type UploadHandler struct {
	uploadService *service.UploadService
}

func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

type PresignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

func (r PresignRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.ContentType, validation.Length(0, 127)),
	)
}

func (h *UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	var req PresignRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	upload, err := h.uploadService.PresignUpload(r.Context(), userID, req.Filename, req.ContentType)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, upload)
}
