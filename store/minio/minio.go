// Package minio adapts an S3-compatible object store (via minio-go) to the
// renderq durable store. Object stores make a natural durable tier for large
// preview payloads: unbounded, cheap, shared across catalog sessions.
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	mc "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/unkn0wn-root/renderq/store"
)

var ErrNoBucket = errors.New("minio store: bucket is required")

type Minio struct {
	client *mc.Client
	bucket string
}

var _ store.Store = (*Minio)(nil)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string

	// Client overrides the endpoint/credential fields when set.
	Client *mc.Client
}

func New(cfg Config) (*Minio, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	cl := cfg.Client
	if cl == nil {
		var err error
		cl, err = mc.New(cfg.Endpoint, &mc.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
	}
	return &Minio{client: cl, bucket: cfg.Bucket}, nil
}

func (s *Minio) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(key), mc.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// Put ignores ttl: object stores expire via bucket lifecycle policies, which
// are the operator's concern, not the engine's.
func (s *Minio) Put(ctx context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName(key),
		bytes.NewReader(value), int64(len(value)), mc.PutObjectOptions{})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Minio) Del(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName(key), mc.RemoveObjectOptions{})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func (s *Minio) Close(context.Context) error { return nil }

// objectName maps storage keys ("deriv:<ns>:<class>:<asset>") to slash-y
// object names so bucket listings group by namespace and size class.
func objectName(key string) string {
	return strings.ReplaceAll(key, ":", "/")
}

func isNotFound(err error) bool {
	var resp mc.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
