package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"github.com/yash21saraf/revival.ai/internal/models"
	"github.com/yash21saraf/revival.ai/shared/config"
)

// generativeModels is the slice of *genai.Models the analyzer calls.
type generativeModels interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Analyzer struct {
	models     generativeModels
	model      string
	imageModel string
}

// AnalysisRequest describes one video to analyze. Video and Frames are
// optional enrichment; a bare URL is enough.
type AnalysisRequest struct {
	VideoURL string
	Video    *models.Video
	Frames   []models.Frame
}

// AnalysisResult is a finalized strategy plus the narrative that led to it.
type AnalysisResult struct {
	Strategy *models.RevivalStrategy
	Thinking string
	Duration time.Duration
}

// NewAnalyzer creates a Gemini-backed analyzer. apiKey overrides the
// configured key when non-empty.
func NewAnalyzer(ctx context.Context, cfg *config.AIConfig, apiKey string) (*Analyzer, error) {
	if apiKey == "" {
		apiKey = cfg.GeminiAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newAnalyzer(client.Models, cfg), nil
}

func newAnalyzer(m generativeModels, cfg *config.AIConfig) *Analyzer {
	return &Analyzer{
		models:     m,
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
	}
}

// AnalyzeVideo streams the revival analysis for one video. onThinking
// receives the live narrative with replace semantics and is called on the
// goroutine that called AnalyzeVideo.
func (a *Analyzer) AnalyzeVideo(ctx context.Context, req AnalysisRequest, onThinking func(string)) (*AnalysisResult, error) {
	if req.VideoURL == "" {
		return nil, fmt.Errorf("video URL is required")
	}
	start := time.Now()

	parts := []*genai.Part{
		genai.NewPartFromText(buildAnalysisPrompt(req.Video, len(req.Frames))),
		genai.NewPartFromURI(req.VideoURL, "video/mp4"),
	}
	for _, frame := range req.Frames {
		if len(frame.Data) == 0 || frame.MimeType == "" {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(frame.Data, frame.MimeType))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	log.Debug("starting analysis stream", "url", req.VideoURL, "frames", len(req.Frames), "model", a.model)
	stream := a.models.GenerateContentStream(ctx, a.model, contents, nil)

	strategy, extractor, err := ProcessStream(ctx, textFragments(stream), onThinking)
	if err != nil {
		var extractErr *ExtractionError
		if errors.As(err, &extractErr) && extractor != nil {
			log.Warn("report extraction failed", "url", req.VideoURL, "reason", extractErr.Reason, "response_bytes", len(extractor.Text()))
		}
		return nil, fmt.Errorf("failed to analyze video %s: %w", req.VideoURL, err)
	}

	if extractor.MetadataRepaired() && req.Video != nil {
		strategy.OriginalVideoMetadata = req.Video.Metadata()
	}

	return &AnalysisResult{
		Strategy: strategy,
		Thinking: extractor.Thinking(),
		Duration: time.Since(start),
	}, nil
}

// textFragments adapts a Gemini response stream to plain text deltas.
func textFragments(stream iter.Seq2[*genai.GenerateContentResponse, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range stream {
			if err != nil {
				yield("", err)
				return
			}
			if resp == nil {
				continue
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

var authErrorMarkers = []string{
	"PERMISSION_DENIED",
	"UNAUTHENTICATED",
	"API key not valid",
	"API_KEY_INVALID",
	"Requested entity was not found",
}

// IsAuthError reports whether a provider error looks like a rejected or
// missing credential, in which case the user should pick another key.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range authErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
