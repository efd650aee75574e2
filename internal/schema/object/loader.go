// Package object loads catalog metadata from a JSON document in
// S3-compatible object storage. Deployments that cannot grant the
// service introspection access to the store publish the schema
// document out of band instead.
package object

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/querypilot/querypilot/internal/schema"
)

var ErrDocumentNotFound = errors.New("schema document not found")

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Key             string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

type getter interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type Loader struct {
	client getter
	bucket string
	key    string
}

func New(cfg Config) (*Loader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("schema bucket is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("schema object key is required")
	}

	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Loader{
		client: mc,
		bucket: strings.TrimSpace(cfg.Bucket),
		key:    strings.TrimSpace(cfg.Key),
	}, nil
}

func NewWithClient(bucket, key string, c getter) (*Loader, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("schema bucket is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("schema object key is required")
	}
	return &Loader{client: c, bucket: strings.TrimSpace(bucket), key: strings.TrimSpace(key)}, nil
}

// Load fetches and decodes the schema document. Unknown JSON fields
// fail the load so typos in the document surface at startup.
func (l *Loader) Load(ctx context.Context) (schema.Metadata, error) {
	reader, err := l.client.Get(ctx, l.bucket, l.key)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return schema.Metadata{}, fmt.Errorf("schema document %q: %w", l.key, ErrDocumentNotFound)
		}
		return schema.Metadata{}, fmt.Errorf("get schema document %q: %w", l.key, err)
	}
	defer func() { _ = reader.Close() }()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()

	var meta schema.Metadata
	if err := decoder.Decode(&meta); err != nil {
		return schema.Metadata{}, fmt.Errorf("decode schema document %q: %w", l.key, err)
	}
	return meta, nil
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return ErrDocumentNotFound
		}
	}
	return err
}
