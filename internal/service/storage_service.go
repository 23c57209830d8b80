package service

import (
	"context"
	"fmt"
	"intellearn_backend/internal/config"
	"intellearn_backend/pkg/logger"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider is the blob store behind uploaded slips and lesson videos.
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetURL(key string) string
}

type LocalStorageProvider struct {
	Root string
}

func (p *LocalStorageProvider) resolve(key string) (string, error) {
	dst := filepath.Join(p.Root, filepath.FromSlash(key))
	rel, err := filepath.Rel(p.Root, dst)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return dst, os.MkdirAll(filepath.Dir(dst), 0755)
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst, err := p.resolve(key)
	if err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *LocalStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return p.Upload(ctx, key, src, -1, contentType)
}

func (p *LocalStorageProvider) Delete(ctx context.Context, key string) error {
	dst, err := p.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *LocalStorageProvider) GetURL(key string) string {
	return "/uploads/" + key
}

type MinioStorageProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	_, err := p.Client.FPutObject(ctx, p.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, key string) error {
	return p.Client.RemoveObject(ctx, p.Bucket, key, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(key string) string {
	return "/" + p.Bucket + "/" + key
}

type OSSStorageProvider struct {
	Endpoint string
	Bucket   *oss.Bucket
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Endpoint: cfg.OSSEndpoint, Bucket: bucket}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if err := p.Bucket.PutObject(key, reader, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	if err := p.Bucket.PutObjectFromFile(key, localPath, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, key string) error {
	return p.Bucket.DeleteObject(key)
}

func (p *OSSStorageProvider) GetURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Bucket.BucketName, p.Endpoint, key)
}

type StorageService struct {
	Provider StorageProvider
}

// NewStorageService falls back to local disk when the configured remote
// provider cannot be constructed.
func NewStorageService(cfg *config.StorageConfig) *StorageService {
	var provider StorageProvider
	switch cfg.Type {
	case "minio":
		p, err := NewMinioStorageProvider(cfg)
		if err != nil {
			logger.Log.Error("MinIO storage unavailable, using local disk", zap.Error(err))
		} else {
			provider = p
		}
	case "oss":
		p, err := NewOSSStorageProvider(cfg)
		if err != nil {
			logger.Log.Error("OSS storage unavailable, using local disk", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Root: cfg.LocalPath}
	}

	return &StorageService{Provider: provider}
}

// NewObjectKey returns a collision-free key such as "payment_proofs/<uuid>.jpg".
func NewObjectKey(dir, ext string) string {
	return path.Join(dir, uuid.NewString()+ext)
}

func (s *StorageService) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.Provider.Upload(ctx, key, reader, size, contentType)
}

func (s *StorageService) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	return s.Provider.UploadFile(ctx, key, localPath, contentType)
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	return s.Provider.Delete(ctx, key)
}
