package services

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveObject describes one stored snapshot copy
type ArchiveObject struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ArchiveStore is the part of object storage the tracking archive uses
type ArchiveStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutJSON(ctx context.Context, bucket, name string, data []byte) error
	Get(ctx context.Context, bucket, name string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]ArchiveObject, error)
	PresignedURL(ctx context.Context, bucket, name string, expiry time.Duration) (string, error)
}

type minioArchiveStore struct {
	client *minio.Client
}

func NewMinioArchiveStore(endpoint, accessKey, secretKey string, useSSL bool) (ArchiveStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioArchiveStore{client: client}, nil
}

func (m *minioArchiveStore) EnsureBucket(ctx context.Context, bucket string) error {
	found, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func (m *minioArchiveStore) PutJSON(ctx context.Context, bucket, name string, data []byte) error {
	_, err := m.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *minioArchiveStore) Get(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (m *minioArchiveStore) List(ctx context.Context, bucket, prefix string) ([]ArchiveObject, error) {
	var objects []ArchiveObject
	for info := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		objects = append(objects, ArchiveObject{Name: info.Key, Size: info.Size, LastModified: info.LastModified})
	}
	return objects, nil
}

func (m *minioArchiveStore) PresignedURL(ctx context.Context, bucket, name string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, name, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
