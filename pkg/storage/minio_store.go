package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"selfiebot/pkg/domain"
)

// MinioStore implements MediaStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) SaveOriginal(ctx context.Context, userID string, index int, ext string, data []byte) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	key := OriginalKey(userID, index, ext)
	return key, m.put(ctx, key, data)
}

func (m *MinioStore) SaveVariant(ctx context.Context, userID string, index int, mode domain.Mode, data []byte) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	key := VariantKey(userID, index, mode)
	return key, m.put(ctx, key, data)
}

func (m *MinioStore) put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ContentType(key)})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (m *MinioStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (m *MinioStore) List(ctx context.Context, userID string, offset, limit int) (Page, error) {
	if err := validUserID(userID); err != nil {
		return Page{}, err
	}
	names := make([]string, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: userID + "/"}) {
		if obj.Err != nil {
			return Page{}, fmt.Errorf("list objects: %w", obj.Err)
		}
		names = append(names, path.Base(obj.Key))
	}
	page := paginate(names, offset, limit)
	for i, name := range page.Files {
		page.Files[i] = path.Join(userID, name)
	}
	return page, nil
}

// DeleteUser removes every object under the user's prefix.
func (m *MinioStore) DeleteUser(ctx context.Context, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: userID + "/", Recursive: true})
	for res := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return fmt.Errorf("delete object %s: %w", res.ObjectName, res.Err)
		}
	}
	return nil
}

// Sweep removes objects last modified before cutoff. Prefixes need no pruning in object storage.
func (m *MinioStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	expired := make([]minio.ObjectInfo, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return 0, fmt.Errorf("list objects: %w", obj.Err)
		}
		if obj.LastModified.Before(cutoff) && !strings.HasSuffix(obj.Key, "/") {
			expired = append(expired, obj)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	objects := make(chan minio.ObjectInfo, len(expired))
	for _, obj := range expired {
		objects <- obj
	}
	close(objects)
	failed := 0
	var firstErr error
	for res := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("delete object %s: %w", res.ObjectName, res.Err)
			}
		}
	}
	return len(expired) - failed, firstErr
}
