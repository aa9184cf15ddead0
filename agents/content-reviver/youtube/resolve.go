package youtube

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnresolvable is returned when no video ID can be found in the input.
var ErrUnresolvable = errors.New("could not resolve video ID")

var videoIDPatterns = []*regexp.Regexp{
	// Standard watch URL (including mobile)
	regexp.MustCompile(`(?:m\.)?youtube\.com/watch\?(?:.*&)?v=([a-zA-Z0-9_-]{11})`),
	// Short URL
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	// Embed and legacy URLs
	regexp.MustCompile(`youtube(?:-nocookie)?\.com/(?:embed|v)/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/live/([a-zA-Z0-9_-]{11})`),
}

var bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ExtractVideoID pulls the 11-character video ID out of any common YouTube
// URL form, or accepts a bare ID.
func ExtractVideoID(url string) (string, error) {
	url = strings.TrimSpace(url)

	for _, re := range videoIDPatterns {
		if matches := re.FindStringSubmatch(url); len(matches) > 1 {
			return matches[1], nil
		}
	}

	if bareVideoID.MatchString(url) {
		return url, nil
	}

	return "", fmt.Errorf("%w from: %s", ErrUnresolvable, url)
}
