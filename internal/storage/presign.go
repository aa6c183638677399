// Package storage issues presigned upload URLs against an S3-compatible
// object store.
package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dom/learnhub-api/internal/config"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxFilenameLength = 128

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type PresignedUpload struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Presigner interface {
	PresignUpload(ctx context.Context, userID uuid.UUID, filename, contentType string) (*PresignedUpload, error)
}

type MinioPresigner struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewMinioPresigner builds a presigner from the upload settings. The region
// is set explicitly so presigning never needs a bucket-location round trip.
func NewMinioPresigner(cfg *config.Config) (*MinioPresigner, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioPresigner{
		client: client,
		bucket: cfg.MinioBucket,
		ttl:    cfg.UploadURLTTL,
		now:    time.Now,
	}, nil
}

func (p *MinioPresigner) PresignUpload(ctx context.Context, userID uuid.UUID, filename, contentType string) (*PresignedUpload, error) {
	key := ObjectKey(userID, filename)

	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, p.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	return &PresignedUpload{
		URL:       u.String(),
		ObjectKey: key,
		ExpiresAt: p.now().Add(p.ttl),
	}, nil
}

// ObjectKey namespaces uploads per user and makes the filename safe for use
// in a URL path.
func ObjectKey(userID uuid.UUID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	if len(name) > maxFilenameLength {
		name = name[len(name)-maxFilenameLength:]
	}
	return fmt.Sprintf("uploads/%s/%s-%s", userID, uuid.NewString(), name)
}
