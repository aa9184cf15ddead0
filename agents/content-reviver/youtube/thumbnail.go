package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yash21saraf/revival.ai/internal/models"
)

// ErrNoThumbnail is returned when no thumbnail size exists for a video.
var ErrNoThumbnail = errors.New("no thumbnail available")

const (
	defaultThumbnailBase = "https://i.ytimg.com"
	maxThumbnailBytes    = 8 << 20
)

// Largest first. maxresdefault is missing for many older uploads.
var thumbnailNames = []string{"maxresdefault.jpg", "hqdefault.jpg"}

// backoff doubles the wait after each transient failure, up to max.
type backoff struct {
	retries int
	initial time.Duration
	max     time.Duration
}

var defaultBackoff = backoff{retries: 3, initial: 500 * time.Millisecond, max: 10 * time.Second}

// ThumbnailFetcher downloads video thumbnails to use as context frames.
type ThumbnailFetcher struct {
	client   *http.Client
	baseURL  string
	retry    backoff
	maxBytes int64
}

func NewThumbnailFetcher(client *http.Client) *ThumbnailFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ThumbnailFetcher{
		client:   client,
		baseURL:  defaultThumbnailBase,
		retry:    defaultBackoff,
		maxBytes: maxThumbnailBytes,
	}
}

// Fetch returns the largest available thumbnail for videoID.
func (f *ThumbnailFetcher) Fetch(ctx context.Context, videoID string) (*models.Frame, error) {
	for _, name := range thumbnailNames {
		url := fmt.Sprintf("%s/vi/%s/%s", f.baseURL, videoID, name)

		frame, err := retryDo(ctx, f.retry, func() (*models.Frame, error) {
			return f.get(ctx, url)
		})
		if errors.Is(err, ErrNoThumbnail) {
			log.Debug("thumbnail size missing", "video", videoID, "name", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch thumbnail for %s: %w", videoID, err)
		}
		return frame, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoThumbnail, videoID)
}

func (f *ThumbnailFetcher) get(ctx context.Context, url string) (*models.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoThumbnail
	case isRetryableStatus(resp.StatusCode):
		return nil, &httpStatusError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("thumbnail %s exceeds %d bytes", url, f.maxBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}

	return &models.Frame{MimeType: mimeType, Data: data}, nil
}

// retryDo retries fn on transient errors only.
func retryDo[T any](ctx context.Context, b backoff, fn func() (T, error)) (T, error) {
	wait := b.initial
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil || attempt == b.retries || !isRetryable(err) {
			return result, err
		}

		log.Debug("retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
		wait = min(wait*2, b.max)
	}
}

type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.StatusCode)
}

func isRetryable(err error) bool {
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
