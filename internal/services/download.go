package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Downloader fetches generated artifacts (audio files, video clips) from
// provider result URLs into the invocation's working directory.
type Downloader struct {
	client     *http.Client
	attempts   int
	retryDelay time.Duration
}

func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Downloader{
		client:     client,
		attempts:   3,
		retryDelay: 2 * time.Second,
	}
}

// Download writes the body of url to destPath, retrying network failures
// with a short fixed delay.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	var lastErr error
	for i := 0; i < d.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}
		if err := d.downloadOnce(ctx, url, destPath); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return &TransientError{Message: fmt.Sprintf("downloading %s", url), Err: lastErr}
}

func (d *Downloader) downloadOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return err
	}
	return out.Close()
}
