package weights

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSource downloads weight assets from their canonical URLs.
type HTTPSource struct {
	client *resty.Client
}

// NewHTTPSource creates an HTTP source with retries for transient failures.
func NewHTTPSource() *HTTPSource {
	client := resty.New().
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetTimeout(10 * time.Minute).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &HTTPSource{client: client}
}

// Download fetches the asset's URL into dst.
func (s *HTTPSource) Download(ctx context.Context, asset Asset, dst string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetOutput(dst).
		Get(asset.URL)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), asset.URL)
	}
	return nil
}
