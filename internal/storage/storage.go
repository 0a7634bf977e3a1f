// Package storage wraps the S3-compatible bucket that holds uploaded artwork and
// generated export archives.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/flicky/storybook-api/internal/config"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// MetadataValue looks up a user metadata key ignoring case; S3 servers return
// canonicalized header names.
func (o ObjectInfo) MetadataValue(key string) string {
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

type Store struct {
	client      *minio.Client
	bucket      string
	artworkRoot string
	presignTTL  time.Duration
}

func New(cfg config.StorageConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{
		client:      client,
		bucket:      cfg.Bucket,
		artworkRoot: folderPrefix(cfg.ArtworkRoot),
		presignTTL:  cfg.PresignTTL,
	}, nil
}

func (s *Store) ArtworkRoot() string { return s.artworkRoot }

func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// ListFolders returns the immediate sub-folders of prefix, each ending in "/".
func (s *Store) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	var folders []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: folderPrefix(prefix)}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list folders: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			folders = append(folders, obj.Key)
		}
	}
	return folders, nil
}

// ListObjects lists every object below prefix. Metadata is not populated; use Stat.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		objects = append(objects, toObjectInfo(obj))
	}
	return objects, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	obj, err := s.client.StatObject(ctx, s.bucket, normalizeKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	info := toObjectInfo(obj)
	return &info, nil
}

// ResolveURL confirms the object exists and returns a presigned GET URL for it.
func (s *Store) ResolveURL(ctx context.Context, key string) (string, error) {
	key = normalizeKey(key)
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	return s.PresignedURL(ctx, key)
}

func (s *Store) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, normalizeKey(key), s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// PublicURL builds an unsigned URL for key without checking that it exists.
func (s *Store) PublicURL(key string) string {
	u := *s.client.EndpointURL()
	u.Path = path.Join("/", s.bucket, normalizeKey(key))
	return u.String()
}

// SetMetadata merges updates into the object's user metadata by copying the
// object onto itself.
func (s *Store) SetMetadata(ctx context.Context, key string, updates map[string]string) error {
	key = normalizeKey(key)
	info, err := s.Stat(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          key,
			UserMetadata:    replacementMetadata(info, updates),
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("update object metadata: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, normalizeKey(key), r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// replacementMetadata is the full header set for a REPLACE copy. Content-Type
// is carried over since the copy would otherwise reset it.
func replacementMetadata(info *ObjectInfo, updates map[string]string) map[string]string {
	meta := MergeMetadata(info.Metadata, updates)
	if info.ContentType != "" {
		meta["Content-Type"] = info.ContentType
	}
	return meta
}

// MergeMetadata returns existing overlaid with updates. Keys are compared
// case-insensitively and the update's spelling wins.
func MergeMetadata(existing, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		for old := range merged {
			if strings.EqualFold(old, k) {
				delete(merged, old)
			}
		}
		merged[k] = v
	}
	return merged
}

func toObjectInfo(obj minio.ObjectInfo) ObjectInfo {
	meta := make(map[string]string, len(obj.UserMetadata))
	for k, v := range obj.UserMetadata {
		meta[k] = v
	}
	return ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentType:  obj.ContentType,
		LastModified: obj.LastModified,
		Metadata:     meta,
	}
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func normalizeKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

func folderPrefix(p string) string {
	p = normalizeKey(p)
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
