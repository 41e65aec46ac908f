package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const layoutsKey = layoutsDir + "/" + layoutsFile

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Backend keeps {eid}.json objects and view/layouts.json at the top level
// of one bucket, mirroring the file layout. A PutObject replaces an object
// whole, so saves are atomic per env.
type S3Backend struct {
	client *minio.Client
	bucket string
}

func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	b := &S3Backend{client: client, bucket: cfg.Bucket}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return b, nil
}

func objectKey(eid string) string {
	return eid + ".json"
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (b *S3Backend) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects: %w", object.Err)
		}
		key := object.Key
		if strings.Contains(key, "/") || !strings.HasSuffix(key, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(key, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *S3Backend) get(ctx context.Context, key string) ([]byte, error) {
	object, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer object.Close()

	body, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return body, nil
}

func (b *S3Backend) put(ctx context.Context, key string, body []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) Load(ctx context.Context, eid string) ([]byte, error) {
	return b.get(ctx, objectKey(eid))
}

func (b *S3Backend) Save(ctx context.Context, eid string, body []byte) error {
	return b.put(ctx, objectKey(eid), body)
}

func (b *S3Backend) Delete(ctx context.Context, eid string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, objectKey(eid), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", objectKey(eid), err)
	}
	return nil
}

func (b *S3Backend) LoadLayouts(ctx context.Context) (string, error) {
	raw, err := b.get(ctx, layoutsKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var layouts string
	if err := json.Unmarshal(raw, &layouts); err != nil {
		return "", fmt.Errorf("decode layouts: %w", err)
	}
	return layouts, nil
}

func (b *S3Backend) SaveLayouts(ctx context.Context, layouts string) error {
	raw, err := json.Marshal(layouts)
	if err != nil {
		return fmt.Errorf("encode layouts: %w", err)
	}
	return b.put(ctx, layoutsKey, raw)
}

func (b *S3Backend) Ping(ctx context.Context) error {
	if _, err := b.client.BucketExists(ctx, b.bucket); err != nil {
		return fmt.Errorf("ping bucket %s: %w", b.bucket, err)
	}
	return nil
}
