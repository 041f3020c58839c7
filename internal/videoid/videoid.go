// Package videoid extracts the canonical 11-character video identifier
// from the URL shapes YouTube hands out.
package videoid

import (
	"errors"
	"regexp"
)

// ErrNoVideoID is returned when the URL matches none of the known shapes.
// Callers should treat it as bad user input, not a system fault.
var ErrNoVideoID = errors.New("no video id found in url")

// The order matters: the watch form is by far the most common, so it is
// tried first. Each pattern captures exactly the 11-character token.
var patterns = []*regexp.Regexp{
	// youtube.com/watch?v=ID (with any other query params, any subdomain)
	regexp.MustCompile(`(?:youtube(?:-nocookie)?\.com/watch\?(?:[^#\s]*&)?v=)([\w-]{11})`),
	// youtu.be/ID
	regexp.MustCompile(`youtu\.be/([\w-]{11})`),
	// youtube.com/embed/ID and /v/ID
	regexp.MustCompile(`youtube(?:-nocookie)?\.com/(?:embed|v)/([\w-]{11})`),
	// youtube.com/shorts/ID
	regexp.MustCompile(`youtube\.com/shorts/([\w-]{11})`),
	// youtube.com/live/ID
	regexp.MustCompile(`youtube\.com/live/([\w-]{11})`),
}

// Extract returns the video identifier embedded in rawURL.
func Extract(rawURL string) (string, error) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	return "", ErrNoVideoID
}

var idShape = regexp.MustCompile(`^[\w-]{11}$`)

// Valid reports whether s looks like a video identifier on its own.
func Valid(s string) bool {
	return idShape.MatchString(s)
}
