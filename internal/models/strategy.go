package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RevivalStrategy is the structured report the model emits after its narrative.
// It is built once per analysis and treated as read-only afterwards.
type RevivalStrategy struct {
	OriginalVideoMetadata *VideoMetadata `json:"originalVideoMetadata,omitempty"`
	Segments              []Segment      `json:"segments"`
	OutdatedItems         []OutdatedItem `json:"outdatedItems"`
	RevivalPlan           *RevivalPlan   `json:"revivalPlan,omitempty"`
	PredictedViews        float64        `json:"predictedViews"`
	PredictedEngagement   float64        `json:"predictedEngagement"` // displayed as a 0-100 percentage
}

type VideoMetadata struct {
	Title        string `json:"title"`
	PublishDate  string `json:"publishDate"`
	CurrentViews int64  `json:"currentViews"`
}

type RevivalPlan struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ScriptOutline string `json:"scriptOutline"` // markdown
}

// Segment is one chronological slice of the source video.
type Segment struct {
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	Summary     string   `json:"summary"`
	Subjects    []string `json:"subjects"`
	NeedsUpdate *bool    `json:"needsUpdate,omitempty"`
}

// OutdatedItem is a tool or topic the model judged to be stale.
// ImpactScore is expected in 1-10 but not validated.
type OutdatedItem struct {
	Subject                string `json:"subject"`
	OldTool                string `json:"oldTool"`
	NewTool                string `json:"newTool"`
	Reason                 string `json:"reason"`
	ImpactScore            int    `json:"impactScore"`
	AffectedSegmentIndices []int  `json:"affectedSegmentIndices,omitempty"`
}

// DefaultVideoMetadata is substituted when the model omits the metadata block.
func DefaultVideoMetadata() *VideoMetadata {
	return &VideoMetadata{
		Title:        "Unknown Title",
		PublishDate:  "Unknown Date",
		CurrentViews: 0,
	}
}

// AffectedSegments resolves an item's segment indices against s.Segments.
// Indices the model got wrong are skipped.
func (s *RevivalStrategy) AffectedSegments(item OutdatedItem) []Segment {
	var segments []Segment
	for _, idx := range item.AffectedSegmentIndices {
		if idx < 0 || idx >= len(s.Segments) {
			continue
		}
		segments = append(segments, s.Segments[idx])
	}
	return segments
}

// SegmentsNeedingUpdate returns the segments flagged with needsUpdate=true.
func (s *RevivalStrategy) SegmentsNeedingUpdate() []Segment {
	var segments []Segment
	for _, seg := range s.Segments {
		if seg.NeedsUpdate != nil && *seg.NeedsUpdate {
			segments = append(segments, seg)
		}
	}
	return segments
}

// MaxImpact returns the highest impact score among outdated items, 0 if none.
func (s *RevivalStrategy) MaxImpact() int {
	highest := 0
	for _, item := range s.OutdatedItems {
		if item.ImpactScore > highest {
			highest = item.ImpactScore
		}
	}
	return highest
}

// StartOffset parses the segment start time.
func (seg Segment) StartOffset() (time.Duration, error) {
	return ParseTimestamp(seg.StartTime)
}

// ParseTimestamp parses "HH:MM:SS" or "MM:SS" into a duration.
func ParseTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}

	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// DeepLink returns a youtu.be link that starts playback at the segment.
// Unparseable start times link to the beginning of the video.
func (seg Segment) DeepLink(videoID string) string {
	offset, err := seg.StartOffset()
	if err != nil || offset == 0 {
		return fmt.Sprintf("https://youtu.be/%s", videoID)
	}
	return fmt.Sprintf("https://youtu.be/%s?t=%d", videoID, int(offset.Seconds()))
}
