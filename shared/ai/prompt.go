package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/yash21saraf/revival.ai/internal/models"
)

const reportShape = `{
  "originalVideoMetadata": { "title": string, "publishDate": string, "currentViews": number },
  "segments": [
    { "startTime": "MM:SS or HH:MM:SS", "endTime": "MM:SS or HH:MM:SS", "summary": string, "subjects": [string], "needsUpdate": boolean }
  ],
  "outdatedItems": [
    { "subject": string, "oldTool": string, "newTool": string, "reason": string, "impactScore": integer 1-10, "affectedSegmentIndices": [integer index into segments] }
  ],
  "revivalPlan": { "title": string, "description": string, "scriptOutline": "markdown" },
  "predictedViews": number,
  "predictedEngagement": number (0-100)
}`

func buildAnalysisPrompt(video *models.Video, frameCount int) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a YouTube content strategist who revives old tutorials and explainers.
Today is %s. Watch the attached video and find what has become outdated: tools,
libraries, APIs, prices, UI, best practices.

`, time.Now().Format("2006-01-02"))

	if video != nil {
		fmt.Fprintf(&b, `VIDEO METADATA:
Title: %s
Channel: %s
Published: %s
Duration: %s
View Count: %d
Description: %s

`,
			video.Title,
			video.ChannelTitle,
			video.PublishedAt.Format("2006-01-02"),
			video.Duration,
			video.ViewCount,
			truncateString(video.Description, 500),
		)
	}

	if frameCount > 0 {
		fmt.Fprintf(&b, "%d image(s) from the video (thumbnail or frames) are attached as visual context.\n\n", frameCount)
	}

	b.WriteString(`INSTRUCTIONS:
1. First reason step by step inside <thinking></thinking> tags. Write for a human
   watching your reasoning live: short steps, one per line.
2. Split the video into chronological segments with timestamps.
3. List every outdated item, the modern replacement, why it matters, an impact
   score from 1 to 10 and the indices of the affected segments.
4. Propose a revival plan: a new title, a new description and a markdown script
   outline for a refreshed video.
5. Estimate views and engagement for the revived video.

After the closing </thinking> tag, output the report exactly once as a fenced
` + "```json" + ` code block with this shape and nothing after it:
`)
	b.WriteString(reportShape)
	b.WriteString("\n")

	return b.String()
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "..."
}
