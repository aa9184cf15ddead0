package youtube

import (
	"errors"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "watch", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "watch with extra params", url: "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=30", want: "dQw4w9WgXcQ"},
		{name: "mobile", url: "https://m.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "short", url: "https://youtu.be/dQw4w9WgXcQ?si=abc", want: "dQw4w9WgXcQ"},
		{name: "embed", url: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "nocookie embed", url: "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "legacy v", url: "https://www.youtube.com/v/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "shorts", url: "https://youtube.com/shorts/abcdefghijk", want: "abcdefghijk"},
		{name: "live", url: "https://www.youtube.com/live/abc_def-123", want: "abc_def-123"},
		{name: "bare id", url: "  dQw4w9WgXcQ ", want: "dQw4w9WgXcQ"},
		{name: "channel page", url: "https://www.youtube.com/@somechannel", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "too short", url: "abc", wantErr: true},
		{name: "other site", url: "https://vimeo.com/123456789", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvable) {
					t.Errorf("ExtractVideoID(%q) error = %v, want ErrUnresolvable", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractVideoID(%q) error = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
