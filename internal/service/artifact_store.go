package service

import (
	"bytes"
	"context"
	"edu_gap_analytics/internal/config"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore 模型产物存取接口。Load 对缺失的产物返回 ok=false 而不是错误
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, bool, error)
}

// LocalArtifactStore 本地文件系统实现
type LocalArtifactStore struct {
	Config *config.StorageConfig
}

func (s *LocalArtifactStore) Save(ctx context.Context, name string, data []byte) error {
	dst := filepath.Join(s.Config.LocalPath, name)
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(dst, data, 0644)
}

func (s *LocalArtifactStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	dst := filepath.Join(s.Config.LocalPath, name)
	data, err := os.ReadFile(dst)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// MinioArtifactStore MinIO 对象存储实现
type MinioArtifactStore struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioArtifactStore(cfg *config.StorageConfig) (*MinioArtifactStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArtifactStore{Config: cfg, Client: client}, nil
}

func (s *MinioArtifactStore) Save(ctx context.Context, name string, data []byte) error {
	_, err := s.Client.PutObject(ctx, s.Config.MinioBucket, name,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (s *MinioArtifactStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	obj, err := s.Client.GetObject(ctx, s.Config.MinioBucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// NewArtifactStore 按配置选择实现，MinIO 初始化失败时回退到本地存储
func NewArtifactStore(cfg *config.Config) ArtifactStore {
	if cfg.Storage.Type == "minio" {
		store, err := NewMinioArtifactStore(&cfg.Storage)
		if err == nil {
			return store
		}
	}
	return &LocalArtifactStore{Config: &cfg.Storage}
}
