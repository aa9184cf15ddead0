package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"github.com/yash21saraf/revival.ai/internal/models"
)

// ErrNoImageGenerated is returned when the image model answers without an image part.
var ErrNoImageGenerated = errors.New("no image generated")

const defaultOverlayInstruction = "Add a bold, high-contrast \"UPDATED\" banner to this YouTube thumbnail. Keep the original subject recognizable and the layout clean."

// GenerateOverlay asks the image model to edit one image. It is a single
// request/response call, independent of any running analysis.
func (a *Analyzer) GenerateOverlay(ctx context.Context, image models.Frame, instruction string) (*models.Frame, error) {
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("image data is required")
	}
	if image.MimeType == "" {
		return nil, fmt.Errorf("image mime type is required")
	}
	if instruction == "" {
		instruction = defaultOverlayInstruction
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image.Data, image.MimeType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	result, err := a.models.GenerateContent(ctx, a.imageModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate overlay: %w", err)
	}

	if frame := firstImagePart(result); frame != nil {
		log.Debug("overlay generated", "mime", frame.MimeType, "bytes", len(frame.Data))
		return frame, nil
	}
	return nil, ErrNoImageGenerated
}

func firstImagePart(resp *genai.GenerateContentResponse) *models.Frame {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				continue
			}
			return &models.Frame{
				MimeType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			}
		}
	}
	return nil
}

// OverlayInstruction builds an edit instruction from a finished report, so
// the thumbnail matches the proposed revival title.
func OverlayInstruction(strategy *models.RevivalStrategy) string {
	if strategy == nil || strategy.RevivalPlan == nil || strategy.RevivalPlan.Title == "" {
		return defaultOverlayInstruction
	}
	return fmt.Sprintf("Redesign this YouTube thumbnail for a refreshed video titled %q. Add a bold, high-contrast \"UPDATED\" banner and short overlay text drawn from the title. Keep the original subject recognizable.", strategy.RevivalPlan.Title)
}
