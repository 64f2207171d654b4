// Package archive mirrors device snapshots to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/secrets"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotFound = errors.New("archived snapshot not found")

// Store reads and writes whole objects by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Archive keeps the latest snapshot per device under prefix.
type Archive struct {
	store  Store
	prefix string
}

func New(store Store, prefix string) *Archive {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = config.DefaultArchivePrefix
	}
	return &Archive{store: store, prefix: prefix}
}

// Key returns the object key holding deviceID's latest snapshot.
func (a *Archive) Key(deviceID string) string {
	return path.Join(a.prefix, deviceID, "latest.json")
}

// SaveLatest stores v as the latest snapshot of deviceID.
func (a *Archive) SaveLatest(ctx context.Context, deviceID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := a.store.Save(ctx, a.Key(deviceID), data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", deviceID, err)
	}
	return nil
}

// LoadLatest decodes the latest snapshot of deviceID into v.
func (a *Archive) LoadLatest(ctx context.Context, deviceID string, v any) error {
	data, err := a.store.Load(ctx, a.Key(deviceID))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", deviceID, err)
	}
	return nil
}

type S3Store struct {
	client *minio.Client
	bucket string
}

func NewS3Store(cfg *config.ArchiveConfig) (*S3Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing archive config")
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" || bucket == "" || cfg.AccessKeyFile == "" || cfg.SecretKeyFile == "" {
		return nil, fmt.Errorf("missing archive configuration")
	}

	accessKey, err := secrets.ReadFile(cfg.AccessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read archive access key: %w", err)
	}
	secretKey, err := secrets.ReadFile(cfg.SecretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read archive secret key: %w", err)
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{client: client, bucket: bucket}, nil
}

func (s *S3Store) Load(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapError(err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, wrapError(err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, key string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return wrapError(err)
	}
	return nil
}

func wrapError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

// parseEndpoint accepts a bare host (TLS assumed) or an http(s) URL.
func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}
