package service

import (
	"context"
	"mime"
	"strings"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/storage"
	"github.com/google/uuid"
)

type UploadService struct {
	presigner storage.Presigner
}

// NewUploadService accepts a nil presigner; every call then fails with
// domain.ErrStorageUnavailable.
func NewUploadService(presigner storage.Presigner) *UploadService {
	return &UploadService{presigner: presigner}
}

func (s *UploadService) Enabled() bool {
	return s.presigner != nil
}

func (s *UploadService) PresignUpload(ctx context.Context, userID uuid.UUID, filename, contentType string) (*storage.PresignedUpload, error) {
	if s.presigner == nil {
		return nil, domain.ErrStorageUnavailable
	}
	if contentType != "" {
		if _, _, err := mime.ParseMediaType(contentType); err != nil {
			contentType = "application/octet-stream"
		}
	}
	return s.presigner.PresignUpload(ctx, userID, strings.TrimSpace(filename), contentType)
}
