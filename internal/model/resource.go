package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Resource identifies the media a job transcribes
type Resource struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id"`
}

// ParseResource extracts the video id from a watch, short-link or shorts URL
func ParseResource(raw string) (Resource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Resource{}, fmt.Errorf("%w: url is required", ErrInvalidResource)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Resource{}, fmt.Errorf("%w: %v", ErrInvalidResource, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Resource{}, fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidResource)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	var videoID string
	switch {
	case host == "youtu.be":
		videoID = strings.Trim(parsed.Path, "/")
	case strings.HasPrefix(parsed.Path, "/shorts/"):
		videoID = strings.Trim(strings.TrimPrefix(parsed.Path, "/shorts/"), "/")
	default:
		videoID = parsed.Query().Get("v")
	}

	if !ValidVideoID(videoID) {
		return Resource{}, fmt.Errorf("%w: video id not found", ErrInvalidResource)
	}

	return Resource{URL: raw, VideoID: videoID}, nil
}

// ValidVideoID reports whether id is usable as a storage key
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}
