package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func (c MinioConfig) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("access key and secret key are required")
	}
	return nil
}

// MinioStore uses the same object layout as S3Store.
type MinioStore struct {
	bucket string
	client *minio.Client
}

var _ Store = (*MinioStore)(nil)

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid minio config: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{bucket: cfg.Bucket, client: client}, nil
}

func (s *MinioStore) Open(ctx context.Context, partition string) error {
	_, err := s.client.PutObject(ctx, s.bucket, markerKey(partition), bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to open partition %s: %w", partition, err)
	}
	return nil
}

func (s *MinioStore) Match(ctx context.Context, partition, key string) (Entry, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(partition, key), minio.GetObjectOptions{})
	if err != nil {
		return Entry{}, translateMinio(err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return Entry{}, translateMinio(err)
	}
	return decodeEntry(data)
}

func (s *MinioStore) Put(ctx context.Context, partition, key string, e Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(partition, key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: envelopeContentType,
	})
	return err
}

func (s *MinioStore) Delete(ctx context.Context, partition, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey(partition, key), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", key, partition, err)
	}
	return nil
}

func (s *MinioStore) Keys(ctx context.Context, partition string) ([]string, error) {
	objects, err := s.list(ctx, partition)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		if key, ok := keyFromObject(partition, object); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MinioStore) Partitions(ctx context.Context) ([]string, error) {
	var names []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: false}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list partitions: %w", object.Err)
		}
		if name, ok := partitionFromPrefix(object.Key); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *MinioStore) DeletePartition(ctx context.Context, partition string) (bool, error) {
	objects, err := s.list(ctx, partition)
	if err != nil {
		return false, err
	}
	if len(objects) == 0 {
		return false, nil
	}

	ch := make(chan minio.ObjectInfo, len(objects))
	for _, object := range objects {
		ch <- minio.ObjectInfo{Key: object}
	}
	close(ch)

	for rerr := range s.client.RemoveObjects(ctx, s.bucket, ch, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return true, fmt.Errorf("failed to delete %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return true, nil
}

func (s *MinioStore) list(ctx context.Context, partition string) ([]string, error) {
	var objects []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    partition + "/",
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list partition %s: %w", partition, object.Err)
		}
		objects = append(objects, object.Key)
	}
	return objects, nil
}

func translateMinio(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("minio: %w", err)
}
