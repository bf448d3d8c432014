package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
)

// Uploader stores an object and returns the URL it is publicly served from.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// PublicURL joins base, bucket and the escaped object path.
func PublicURL(base, bucket, objectPath string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, url.PathEscape(strings.TrimLeft(objectPath, "/")))
}

func ContentTypeFor(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// Memory keeps uploads in process. It backs the memory driver and tests.
type Memory struct {
	Bucket  string
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemory(bucket string) *Memory {
	return &Memory{Bucket: bucket, objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *Memory) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read %s: %w", objectPath, err)
	}
	m.mu.Lock()
	m.objects[objectPath] = buf.Bytes()
	m.types[objectPath] = contentType
	m.mu.Unlock()
	return PublicURL(m.BaseURL, m.Bucket, objectPath), nil
}

// Object returns a stored object and its content type.
func (m *Memory) Object(objectPath string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[objectPath]
	return b, m.types[objectPath], ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
