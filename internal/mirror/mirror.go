// Package mirror copies downloaded archives into S3-compatible object storage.
package mirror

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/archive"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var errMissingBucket = errors.New("mirror bucket is required")

// ObjectStore is the subset of the minio client the mirror relies on.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config describes the object storage endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// NewObjectStore dials a minio client. The endpoint may carry an http or https scheme.
func NewObjectStore(cfg Config) (ObjectStore, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// Mirror stores each payload under <game>/<yyyymmdd>/<sha256>-<basename>.
type Mirror struct {
	store  ObjectStore
	bucket string
	region string
	clock  func() time.Time

	bucketMu    sync.Mutex
	bucketReady bool
}

func New(store ObjectStore, cfg Config, clock func() time.Time) (*Mirror, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errMissingBucket
	}
	if clock == nil {
		clock = time.Now
	}
	return &Mirror{store: store, bucket: cfg.Bucket, region: cfg.Region, clock: clock}, nil
}

func (m *Mirror) Store(ctx context.Context, game lottery.Game, descriptor archive.Descriptor, payload []byte) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}
	key := ObjectKey(game, descriptor.DownloadURL, payload, m.clock())
	_, err := m.store.PutObject(ctx, m.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentTypeFor(key),
		UserMetadata: map[string]string{
			"source-url": descriptor.DownloadURL,
			"label":      descriptor.Label,
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// ensureBucket remembers only a successful check; failures are retried on the next Store.
func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.bucketMu.Lock()
	defer m.bucketMu.Unlock()
	if m.bucketReady {
		return nil
	}
	exists, err := m.store.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.store.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	m.bucketReady = true
	return nil
}

// ObjectKey derives the storage key of a payload fetched at fetchedAt.
func ObjectKey(game lottery.Game, downloadURL string, payload []byte, fetchedAt time.Time) string {
	digest := sha256.Sum256(payload)
	return path.Join(game.String(), fetchedAt.UTC().Format("20060102"), hex.EncodeToString(digest[:])+"-"+baseName(downloadURL))
}

func baseName(downloadURL string) string {
	name := "archive"
	if parsed, err := url.Parse(downloadURL); err == nil {
		if candidate := path.Base(parsed.Path); candidate != "" && candidate != "." && candidate != "/" {
			name = candidate
		}
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".zip":
		return "application/zip"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
