package contentreviver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yash21saraf/revival.ai/agents/content-reviver/youtube"
	"github.com/yash21saraf/revival.ai/internal/models"
	"github.com/yash21saraf/revival.ai/shared/ai"
	"github.com/yash21saraf/revival.ai/shared/config"
	"github.com/yash21saraf/revival.ai/shared/credentials"
	"github.com/yash21saraf/revival.ai/shared/email"
	"github.com/yash21saraf/revival.ai/shared/monitoring"
	"github.com/yash21saraf/revival.ai/shared/storage"
)

var (
	// ErrEmailDisabled is returned by EmailReport when SMTP is not configured.
	ErrEmailDisabled = errors.New("email is not configured")
	// ErrNoAPIKey is returned when no Gemini key is configured or selectable.
	ErrNoAPIKey = errors.New("Gemini API key is required (set GEMINI_API_KEY or run `reviver key select`)")
)

// VideoAnalyzer is the provider surface the reviver drives.
type VideoAnalyzer interface {
	AnalyzeVideo(ctx context.Context, req ai.AnalysisRequest, onThinking func(string)) (*ai.AnalysisResult, error)
	GenerateOverlay(ctx context.Context, image models.Frame, instruction string) (*models.Frame, error)
}

type MetadataSource interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
}

type ThumbnailSource interface {
	Fetch(ctx context.Context, videoID string) (*models.Frame, error)
}

type ReportStore interface {
	Save(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, id string) (*models.Report, error)
	Latest(ctx context.Context, videoID string) (*models.Report, error)
	List(ctx context.Context, limit int) ([]*models.Report, error)
}

type ReportMailer interface {
	SendReport(report *models.Report) error
}

// AnalyzerFactory builds an analyzer for a given API key.
type AnalyzerFactory func(ctx context.Context, apiKey string) (VideoAnalyzer, error)

// Reviver runs one revival analysis per call: resolve the video, enrich it
// with metadata and a thumbnail, stream the analysis, persist the report.
type Reviver struct {
	config      *config.Config
	keys        credentials.Capability
	newAnalyzer AnalyzerFactory

	mu       sync.RWMutex
	analyzer VideoAnalyzer

	metadata   MetadataSource
	thumbnails ThumbnailSource
	store      ReportStore
	mailer     ReportMailer
	monitor    *monitoring.Monitor

	closers []func() error
}

func NewReviver(cfg *config.Config, keys credentials.Capability) *Reviver {
	return &Reviver{
		config:  cfg,
		keys:    keys,
		monitor: monitoring.NewMonitor(),
		newAnalyzer: func(ctx context.Context, apiKey string) (VideoAnalyzer, error) {
			return ai.NewAnalyzer(ctx, &cfg.AI, apiKey)
		},
	}
}

func (r *Reviver) Name() string {
	return "Content Reviver"
}

func (r *Reviver) Monitor() *monitoring.Monitor {
	return r.monitor
}

// Initialize builds every component that was not injected. Metadata and
// email are optional and skipped when unconfigured.
func (r *Reviver) Initialize(ctx context.Context) error {
	log.Printf("Initializing %s...", r.Name())

	if r.currentAnalyzer() == nil {
		key, err := r.resolveKey(ctx)
		switch {
		case errors.Is(err, ErrNoAPIKey):
			// Report browsing and maintenance work without a key.
			log.Debug("no Gemini API key; analysis disabled")
		case err != nil:
			return err
		default:
			analyzer, err := r.newAnalyzer(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to create AI analyzer: %w", err)
			}
			r.setAnalyzer(analyzer)
			log.Printf("AI analyzer initialized (model %s)", r.config.AI.Model)
		}
	}

	if r.metadata == nil {
		client, err := youtube.NewClient(ctx, &r.config.YouTube)
		switch {
		case errors.Is(err, youtube.ErrNotConfigured):
			log.Warn("YouTube credentials not set; analyzing without video metadata")
		case err != nil:
			return fmt.Errorf("failed to create YouTube client: %w", err)
		default:
			r.metadata = client
			log.Printf("YouTube client initialized")
		}
	}

	if r.thumbnails == nil {
		r.thumbnails = youtube.NewThumbnailFetcher(nil)
	}

	if r.store == nil {
		maxAge := time.Duration(r.config.Storage.MaxAgeHours) * time.Hour
		store, err := storage.NewReportStore(r.config.Storage.DataDir, maxAge)
		if err != nil {
			return fmt.Errorf("failed to create report store: %w", err)
		}
		r.store = store
		r.closers = append(r.closers, store.Close)
		if n, err := store.Count(ctx); err == nil {
			log.Printf("Report store initialized (%d reports stored)", n)
		}
	}

	if r.mailer == nil && r.config.Email.Enabled() {
		r.mailer = email.NewSender(&r.config.Email)
		log.Printf("Email sender initialized")
	}

	return nil
}

// Close releases resources opened by Initialize.
func (r *Reviver) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// resolveKey prefers a selected key over the configured one so a reselected
// key survives a bad GEMINI_API_KEY in the environment.
func (r *Reviver) resolveKey(ctx context.Context) (string, error) {
	if mgr, ok := r.keys.Manager(); ok {
		key, err := mgr.Key(ctx)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, credentials.ErrNoKey) {
			return "", err
		}
	}
	if r.config.AI.GeminiAPIKey != "" {
		return r.config.AI.GeminiAPIKey, nil
	}
	if r.keys.CanSelect() {
		mgr, _ := r.keys.Manager()
		if err := mgr.SelectKey(ctx); err != nil {
			return "", fmt.Errorf("failed to select API key: %w", err)
		}
		return mgr.Key(ctx)
	}
	return "", ErrNoAPIKey
}

// CanReauthenticate reports whether a rejected key can be replaced
// interactively.
func (r *Reviver) CanReauthenticate() bool {
	return r.keys.CanSelect()
}

// Reauthenticate asks the key manager for a new key and swaps the analyzer.
func (r *Reviver) Reauthenticate(ctx context.Context) error {
	mgr, ok := r.keys.Manager()
	if !ok {
		return credentials.ErrUnavailable
	}
	if err := mgr.SelectKey(ctx); err != nil {
		return err
	}
	key, err := mgr.Key(ctx)
	if err != nil {
		return err
	}
	analyzer, err := r.newAnalyzer(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to create AI analyzer: %w", err)
	}
	r.setAnalyzer(analyzer)
	log.Info("analyzer re-created with newly selected key")
	return nil
}

// RetryOnAuthError runs op and, when it fails because the provider rejected
// the key and a new key can be selected, calls notify, reauthenticates and
// runs op once more. Any other failure is returned as is.
func (r *Reviver) RetryOnAuthError(ctx context.Context, notify func(error), op func() error) error {
	err := op()
	if err == nil || !ai.IsAuthError(err) || !r.CanReauthenticate() {
		return err
	}
	if notify != nil {
		notify(err)
	}
	if rerr := r.Reauthenticate(ctx); rerr != nil {
		return fmt.Errorf("%w (key selection failed: %v)", err, rerr)
	}
	return op()
}

func (r *Reviver) currentAnalyzer() VideoAnalyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.analyzer
}

func (r *Reviver) setAnalyzer(a VideoAnalyzer) {
	r.mu.Lock()
	r.analyzer = a
	r.mu.Unlock()
}

// Analyze streams a revival analysis for videoURL. onThinking receives the
// narrative so far with replace semantics. frames are caller-supplied
// context images; the video thumbnail is added when it can be fetched.
func (r *Reviver) Analyze(ctx context.Context, videoURL string, frames []models.Frame, onThinking func(string)) (*models.Report, error) {
	start := time.Now()
	videoURL = strings.TrimSpace(videoURL)

	analyzer := r.currentAnalyzer()
	if analyzer == nil {
		return nil, ErrNoAPIKey
	}

	videoID, err := youtube.ExtractVideoID(videoURL)
	if err != nil {
		if !isFetchableURL(videoURL) {
			r.monitor.RecordPartialFailure(monitoring.OpAnalysis, err, time.Since(start))
			return nil, err
		}
		log.Warn("could not resolve a video ID; analyzing the URL as given", "url", videoURL)
	} else {
		videoURL = models.WatchURL(videoID)
	}

	req := ai.AnalysisRequest{VideoURL: videoURL, Frames: frames}
	if videoID != "" {
		req.Video = r.fetchVideo(ctx, videoID)
		if thumb := r.fetchThumbnail(ctx, videoID); thumb != nil {
			req.Frames = append([]models.Frame{*thumb}, frames...)
		}
	}

	log.Info("analyzing video", "url", videoURL, "frames", len(req.Frames), "metadata", req.Video != nil)
	result, err := analyzer.AnalyzeVideo(ctx, req, onThinking)
	if err != nil {
		r.recordAnalysisFailure(ctx, err, time.Since(start))
		return nil, err
	}

	report := &models.Report{
		VideoID:  videoID,
		VideoURL: videoURL,
		Thinking: result.Thinking,
		Strategy: result.Strategy,
	}
	if r.store != nil {
		if err := r.store.Save(ctx, report); err != nil {
			log.Warn("failed to persist report", "url", videoURL, "err", err)
		}
	}

	summary := fmt.Sprintf("%d segments, %d outdated items", len(report.Strategy.Segments), len(report.Strategy.OutdatedItems))
	r.monitor.RecordSuccess(monitoring.OpAnalysis, summary, time.Since(start))
	return report, nil
}

func (r *Reviver) recordAnalysisFailure(ctx context.Context, err error, duration time.Duration) {
	switch {
	case ctx.Err() != nil:
		log.Info("analysis cancelled", "after", duration)
	case errors.Is(err, ai.ErrNoStructuredBlock), errors.Is(err, ai.ErrMalformedPayload):
		r.monitor.RecordPartialFailure(monitoring.OpAnalysis, err, duration)
	default:
		r.monitor.RecordCriticalFailure(monitoring.OpAnalysis, err, duration)
	}
}

func (r *Reviver) fetchVideo(ctx context.Context, videoID string) *models.Video {
	if r.metadata == nil {
		return nil
	}
	video, err := r.metadata.GetVideo(ctx, videoID)
	if err != nil {
		log.Warn("video metadata unavailable", "video", videoID, "err", err)
		return nil
	}
	return video
}

func (r *Reviver) fetchThumbnail(ctx context.Context, videoID string) *models.Frame {
	if r.thumbnails == nil {
		return nil
	}
	frame, err := r.thumbnails.Fetch(ctx, videoID)
	if err != nil {
		log.Warn("thumbnail unavailable", "video", videoID, "err", err)
		return nil
	}
	return frame
}

// Thumbnail fetches the current thumbnail for a video.
func (r *Reviver) Thumbnail(ctx context.Context, videoID string) (*models.Frame, error) {
	if r.thumbnails == nil {
		return nil, youtube.ErrNoThumbnail
	}
	return r.thumbnails.Fetch(ctx, videoID)
}

// Overlay asks the image model to edit frame. It never touches stored
// reports.
func (r *Reviver) Overlay(ctx context.Context, frame models.Frame, instruction string) (*models.Frame, error) {
	start := time.Now()

	analyzer := r.currentAnalyzer()
	if analyzer == nil {
		return nil, ErrNoAPIKey
	}

	out, err := analyzer.GenerateOverlay(ctx, frame, instruction)
	if err != nil {
		if errors.Is(err, ai.ErrNoImageGenerated) {
			r.monitor.RecordPartialFailure(monitoring.OpOverlay, err, time.Since(start))
		} else if ctx.Err() == nil {
			r.monitor.RecordCriticalFailure(monitoring.OpOverlay, err, time.Since(start))
		}
		return nil, err
	}

	r.monitor.RecordSuccess(monitoring.OpOverlay, fmt.Sprintf("%d bytes %s", len(out.Data), out.MimeType), time.Since(start))
	return out, nil
}

// OverlayInstructionFor builds the overlay instruction from a stored report.
func (r *Reviver) OverlayInstructionFor(ctx context.Context, reportID string) (string, error) {
	report, err := r.Report(ctx, reportID)
	if err != nil {
		return "", err
	}
	return ai.OverlayInstruction(report.Strategy), nil
}

func (r *Reviver) Report(ctx context.Context, id string) (*models.Report, error) {
	if r.store == nil {
		return nil, storage.ErrNotFound
	}
	return r.store.Get(ctx, id)
}

func (r *Reviver) LatestReport(ctx context.Context, videoURL string) (*models.Report, error) {
	if r.store == nil {
		return nil, storage.ErrNotFound
	}
	videoID, err := youtube.ExtractVideoID(videoURL)
	if err != nil {
		return nil, err
	}
	return r.store.Latest(ctx, videoID)
}

func (r *Reviver) Reports(ctx context.Context, limit int) ([]*models.Report, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.List(ctx, limit)
}

// EmailReport mails report when SMTP is configured.
func (r *Reviver) EmailReport(report *models.Report) error {
	if r.mailer == nil {
		return ErrEmailDisabled
	}
	return r.mailer.SendReport(report)
}

// isFetchableURL reports whether the model can still be handed u as a
// video URI without a resolved ID.
func isFetchableURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
