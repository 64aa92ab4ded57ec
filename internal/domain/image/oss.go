// Package image handles chat image uploads: object storage, OCR text
// extraction and presigned read access.
package image

import (
	"bytes"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"aihelper-server-go/internal/platform/config"
	"aihelper-server-go/internal/platform/errors"
)

// ObjectStore abstracts the blob backend so tests run against an
// in-memory store instead of a live OSS bucket.
type ObjectStore interface {
	Put(key string, data []byte, contentType string) error
	Delete(key string) error
	SignedURL(key string, expire time.Duration) (string, error)
}

type aliyunStore struct {
	bucket *oss.Bucket
}

// NewAliyunStore connects to the configured OSS bucket.
func NewAliyunStore(cfg config.OSSConfig) (ObjectStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(errors.KindVendor, "image.NewAliyunStore", "连接OSS失败", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(errors.KindVendor, "image.NewAliyunStore", "获取OSS bucket失败", err)
	}
	return &aliyunStore{bucket: bucket}, nil
}

func (s *aliyunStore) Put(key string, data []byte, contentType string) error {
	err := s.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return errors.Wrap(errors.KindVendor, "image.Put", "上传OSS对象失败", err)
	}
	return nil
}

func (s *aliyunStore) Delete(key string) error {
	if err := s.bucket.DeleteObject(key); err != nil {
		return errors.Wrap(errors.KindVendor, "image.Delete", "删除OSS对象失败", err)
	}
	return nil
}

func (s *aliyunStore) SignedURL(key string, expire time.Duration) (string, error) {
	url, err := s.bucket.SignURL(key, oss.HTTPGet, int64(expire.Seconds()))
	if err != nil {
		return "", errors.Wrap(errors.KindVendor, "image.SignedURL", "生成签名URL失败", err)
	}
	return url, nil
}

// MemoryStore keeps objects in a map. Test use only.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = buf
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) SignedURL(key string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", io.ErrUnexpectedEOF
	}
	return "memory://" + key, nil
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
