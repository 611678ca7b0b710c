package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// Storage: point photos bucket
// ============================================================

// Storage implements port.ObjectStorage on a Supabase Storage bucket.
type Storage struct {
	c      *Client
	bucket string
}

func NewStorage(c *Client, bucket string) *Storage {
	return &Storage{c: c, bucket: bucket}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// Put uploads data under key without upsert. An existing key fails with
// *domain.ErrDuplicate, unless it shows up on a retry: keys are unique per
// upload, so the object is the one an earlier attempt stored.
func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.StoragePut")
	defer span.End()
	span.SetAttributes(attribute.String("storage.key", key), attribute.Int("storage.bytes", len(data)))

	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("x-upsert", "false")
	path := "/storage/v1/object/" + s.bucket + "/" + escapePath(key)

	attempt := 0
	err := s.c.execute(ctx, func() error {
		attempt++
		_, err := s.c.send(ctx, http.MethodPost, path, bytes.NewReader(data), h)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.isUniqueViolation() {
			if attempt > 1 {
				s.c.logger.Warn("supabase: upload already stored by an earlier attempt", zap.String("key", key))
				return nil
			}
			return &domain.ErrDuplicate{Key: key}
		}
		return err
	})
	if err != nil {
		return "", wrapErr("supabase/storage", err)
	}
	return key, nil
}

// Delete removes an object. A missing object is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Supabase.StorageDelete")
	defer span.End()
	span.SetAttributes(attribute.String("storage.key", key))

	body, err := json.Marshal(map[string][]string{"prefixes": {key}})
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	err = s.c.execute(ctx, func() error {
		_, err := s.c.send(ctx, http.MethodDelete, "/storage/v1/object/"+s.bucket, bytes.NewReader(body), h)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil
		}
		return err
	})
	return wrapErr("supabase/storage", err)
}

// PublicURL is where a stored photo can be read.
func (s *Storage) PublicURL(key string) string {
	return s.c.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + escapePath(key)
}
