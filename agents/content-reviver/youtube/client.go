package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/yash21saraf/revival.ai/internal/models"
	"github.com/yash21saraf/revival.ai/shared/config"
)

var (
	// ErrNotConfigured is returned when neither an API key nor OAuth
	// credentials are set.
	ErrNotConfigured = errors.New("YouTube credentials are not configured")
	// ErrVideoNotFound is returned when the Data API has no such video, or
	// the caller cannot see it.
	ErrVideoNotFound = errors.New("video not found")
)

// Client fetches video metadata from the YouTube Data API v3.
type Client struct {
	service *youtube.Service
}

// NewClient authenticates with OAuth when client credentials are configured
// (so creators can analyze their own unlisted videos) and falls back to the
// API key otherwise.
func NewClient(ctx context.Context, cfg *config.YouTubeConfig) (*Client, error) {
	switch {
	case cfg.UsesOAuth():
		return newOAuthClient(ctx, cfg)
	case cfg.APIKey != "":
		return newClient(ctx, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, ErrNotConfigured
	}
}

func newClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &Client{service: service}, nil
}

func newOAuthClient(ctx context.Context, cfg *config.YouTubeConfig) (*Client, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{youtube.YoutubeReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token, err := getToken(ctx, oauthConfig, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth token: %w", err)
	}

	tokenSource := &tokenSaver{
		config:    oauthConfig,
		token:     token,
		tokenFile: cfg.TokenFile,
	}

	return newClient(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
}

// GetVideo returns title, publish date, view count and duration for id.
func (c *Client) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	resp, err := c.service.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get video details for %s: %w", id, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}

	return videoFromItem(resp.Items[0]), nil
}

func videoFromItem(item *youtube.Video) *models.Video {
	video := &models.Video{
		ID:  item.Id,
		URL: models.WatchURL(item.Id),
	}

	if item.Snippet != nil {
		video.Title = item.Snippet.Title
		video.Description = item.Snippet.Description
		video.ChannelTitle = item.Snippet.ChannelTitle
		if publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			video.PublishedAt = publishedAt
		}
		if th := item.Snippet.Thumbnails; th != nil {
			for _, t := range []*youtube.Thumbnail{th.Maxres, th.Standard, th.High, th.Medium, th.Default} {
				if t != nil && t.Url != "" {
					video.ThumbnailURL = t.Url
					break
				}
			}
		}
	}

	if item.ContentDetails != nil {
		video.Duration = item.ContentDetails.Duration
		video.DurationSeconds = parseDurationSeconds(item.ContentDetails.Duration)
	}

	if item.Statistics != nil {
		video.ViewCount = int64(item.Statistics.ViewCount)
	}

	return video
}

// tokenSaver persists refreshed tokens so they survive restarts.
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	mu        sync.Mutex
}

func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	newToken, err := ts.config.TokenSource(context.Background(), ts.token).Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != ts.token.AccessToken {
		log.Printf("Token refreshed, saving to file")
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			log.Printf("Warning: Failed to save refreshed token: %v", err)
		}
	}

	return newToken, nil
}

// getToken prefers a stored token with a refresh token, even if expired,
// and only runs the device flow when none is usable.
func getToken(ctx context.Context, config *oauth2.Config, tokenFile string) (*oauth2.Token, error) {
	tok, err := tokenFromFile(tokenFile)
	if err == nil {
		if tok.RefreshToken != "" {
			log.Printf("Loaded token from file (expires: %v)", tok.Expiry)
			return tok, nil
		}
		if tok.Valid() {
			return tok, nil
		}
	}

	log.Printf("Getting new token from web...")
	tok, err = getTokenWithDeviceFlow(ctx, config)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			log.Printf("Device authorization response failed (%s): %s", retrieveErr.Response.Status, strings.TrimSpace(string(retrieveErr.Body)))
		}
		return nil, fmt.Errorf("device authorization failed: %w. Ensure your OAuth client is created as 'TVs and Limited Input devices' and that the YouTube Data API v3 is enabled", err)
	}

	if err := saveToken(tokenFile, tok); err != nil {
		log.Printf("Warning: Failed to save token: %v", err)
	}
	return tok, nil
}

func getTokenWithDeviceFlow(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	resp, err := config.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	rule := strings.Repeat("=", 80)
	fmt.Fprintf(os.Stderr, "\n%s\nYOUTUBE DEVICE AUTHORIZATION REQUIRED\n%s\n", rule, rule)
	fmt.Fprintf(os.Stderr, "1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Fprintf(os.Stderr, "2. Enter this code when prompted: %s\n\n", resp.UserCode)
	fmt.Fprintf(os.Stderr, "Waiting for authorization to complete... (Ctrl+C to cancel)\n")

	tok, err := config.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n✅ Authorization successful!\n%s\n\n", rule)
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	log.Info("Token saved", "path", path)
	return nil
}

// ISO 8601 duration, e.g. "PT1M30S", "PT45S", "PT2H15M30S".
var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

func parseDurationSeconds(duration string) int {
	matches := isoDuration.FindStringSubmatch(duration)
	if len(matches) == 0 {
		return 0
	}

	var total int
	for i, unit := range []int{86400, 3600, 60, 1} {
		if matches[i+1] == "" {
			continue
		}
		if n, err := strconv.Atoi(matches[i+1]); err == nil {
			total += n * unit
		}
	}
	return total
}
