// Package storage issues time-limited download links for product files kept
// in a private object storage bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

type Signer struct {
	bucket *oss.Bucket
}

func New(cfg Config) (*Signer, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", cfg.Bucket, err)
	}

	return &Signer{bucket: bucket}, nil
}

// SignURL returns a GET link for path valid for ttl. Signing is local; the
// object's existence is not checked.
func (s *Signer) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := strings.TrimPrefix(path, "/")
	if key == "" {
		return "", errors.New("empty file path")
	}

	secs := int64(ttl / time.Second)
	if secs <= 0 {
		return "", fmt.Errorf("ttl %s is too short", ttl)
	}

	u, err := s.bucket.SignURL(key, oss.HTTPGet, secs)
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", key, err)
	}
	return u, nil
}
