package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"loop-backend/utils"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore stores uploaded media and returns a public URL for it.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PublicURL string
}

// MinioStore is an ObjectStore backed by any S3-compatible service.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioStore(cfg S3Config) (*MinioStore, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &MinioStore{client: cl, bucket: cfg.Bucket, publicURL: public}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", err
	}
	return s.publicURL + "/" + key, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ErrStorageDisabled is returned when no object store is configured.
var ErrStorageDisabled = errors.New("object storage not configured")

// storeImage uploads an image under <dir>/<ownerID>/<uuid><ext> and returns
// its key and public URL.
func storeImage(ctx context.Context, store ObjectStore, dir string, ownerID uint, body io.Reader, size int64, contentType string) (string, string, error) {
	if store == nil {
		return "", "", ErrStorageDisabled
	}
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", "", utils.Validation("file type not allowed")
	}
	key := path.Join(dir, strconv.FormatUint(uint64(ownerID), 10), uuid.NewString()+ext)
	url, err := store.Put(ctx, key, body, size, contentType)
	if err != nil {
		return "", "", utils.Internal("upload "+dir, err)
	}
	return key, url, nil
}
