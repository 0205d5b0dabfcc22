package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Storage is one public Supabase Storage bucket.
type Storage struct {
	client *Client
	bucket string
}

func NewStorage(client *Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

func (s *Storage) Upload(ctx context.Context, name, contentType string, data io.Reader) error {
	err := s.client.do(ctx, request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + s.bucket + "/" + url.PathEscape(name),
		body:        data,
		contentType: contentType,
		headers:     map[string]string{"x-upsert": "false", "Cache-Control": "max-age=3600"},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", s.bucket, name, err)
	}
	s.client.log.Infof("supabase.storage: uploaded %s/%s", s.bucket, name)
	return nil
}

func (s *Storage) PublicURL(name string) string {
	return s.client.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + url.PathEscape(name)
}

func (s *Storage) Remove(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	body, err := jsonBody(map[string][]string{"prefixes": names})
	if err != nil {
		return err
	}
	err = s.client.do(ctx, request{
		method:      http.MethodDelete,
		path:        "/storage/v1/object/" + s.bucket,
		body:        body,
		contentType: "application/json",
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to remove %v from %s: %w", names, s.bucket, err)
	}
	return nil
}
