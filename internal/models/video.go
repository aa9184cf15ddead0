package models

import (
	"fmt"
	"time"
)

// Video is the YouTube metadata fetched for the video under analysis.
type Video struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ChannelTitle    string    `json:"channel_title"`
	PublishedAt     time.Time `json:"published_at"`
	Duration        string    `json:"duration"`
	DurationSeconds int       `json:"duration_seconds"`
	ViewCount       int64     `json:"view_count"`
	URL             string    `json:"url"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
}

// Metadata converts fetched video details into the report's metadata block.
func (v *Video) Metadata() *VideoMetadata {
	publishDate := DefaultVideoMetadata().PublishDate
	if !v.PublishedAt.IsZero() {
		publishDate = v.PublishedAt.Format("2006-01-02")
	}
	title := v.Title
	if title == "" {
		title = DefaultVideoMetadata().Title
	}
	return &VideoMetadata{
		Title:        title,
		PublishDate:  publishDate,
		CurrentViews: v.ViewCount,
	}
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// Frame is one context image handed to the model, or an image it produced.
// Data is raw bytes; encoding/json carries it as base64 on the wire.
type Frame struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Report is a finalized analysis as persisted and served back to callers.
type Report struct {
	ID        string           `json:"id"`
	VideoID   string           `json:"video_id,omitempty"`
	VideoURL  string           `json:"video_url"`
	Thinking  string           `json:"thinking,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Strategy  *RevivalStrategy `json:"strategy"`
}
