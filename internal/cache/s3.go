package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	envelopeContentType = "application/json"
	s3DeleteBatch       = 1000
)

// S3Store keeps each partition under a "<partition>/" prefix of one bucket.
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
}

var _ Store = (*S3Store)(nil)

func NewS3Store(bucket string, client *s3.Client) *S3Store {
	return &S3Store{
		bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *S3Store) Open(ctx context.Context, partition string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(markerKey(partition)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to open partition %s: %w", partition, err)
	}
	return nil
}

func (s *S3Store) Match(ctx context.Context, partition, key string) (Entry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(partition, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(data)
}

func (s *S3Store) Put(ctx context.Context, partition, key string, e Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(partition, key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(envelopeContentType),
	})
	return err
}

func (s *S3Store) Delete(ctx context.Context, partition, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(partition, key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", key, partition, err)
	}
	return nil
}

func (s *S3Store) Keys(ctx context.Context, partition string) ([]string, error) {
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

func (s *S3Store) Partitions(ctx context.Context) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list partitions: %w", err)
		}
		for _, prefix := range page.CommonPrefixes {
			if name, ok := partitionFromPrefix(aws.ToString(prefix.Prefix)); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (s *S3Store) DeletePartition(ctx context.Context, partition string) (bool, error) {
	objects, err := s.list(ctx, partition)
	if err != nil {
		return false, err
	}
	if len(objects) == 0 {
		return false, nil
	}
	for start := 0; start < len(objects); start += s3DeleteBatch {
		end := min(start+s3DeleteBatch, len(objects))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, object := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(object)})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return true, fmt.Errorf("failed to delete partition %s: %w", partition, err)
		}
	}
	return true, nil
}

// list returns every object name under the partition prefix, marker included.
func (s *S3Store) list(ctx context.Context, partition string) ([]string, error) {
	var objects []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(partition + "/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list partition %s: %w", partition, err)
		}
		for _, object := range page.Contents {
			objects = append(objects, aws.ToString(object.Key))
		}
	}
	return objects, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return false
}
