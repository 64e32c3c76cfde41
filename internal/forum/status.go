package forum

import (
	"fmt"
	"strings"
)

// StatusKind indicates severity for toasts.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusSuccess
	StatusWarn
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusSuccess:
		return "success"
	case StatusWarn:
		return "warn"
	case StatusError:
		return "error"
	default:
		return "info"
	}
}

// Canonical short toast messages used across the app.
const (
	MsgNoUser                = "No authenticated user"
	MsgLoadFailed            = "Error loading posts"
	MsgPostFailed            = "Error publishing post"
	MsgEditFailed            = "Error editing post"
	MsgPhotoFailed           = "Error capturing image"
	MsgFileFailed            = "Error uploading file"
	MsgLocationSent          = "Location sent"
	MsgLocationDenied        = "Location permission denied"
	MsgBrowserLocationFailed = "Error getting GPS location in browser"
	MsgLocationFailed        = "Error getting GPS location"
	MsgJokeFailed            = "Error fetching joke"
	MsgNoResults             = "No results"
)

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}

func MsgFeedSummary(entries, observers int) string {
	base := fmt.Sprintf("Feed: %d posts", entries)
	if observers > 0 {
		base += fmt.Sprintf(" • %d watching", observers)
	}
	return base
}

// MsgPosted confirms a post, quoting the start of its content.
func MsgPosted(content string) string {
	content = strings.TrimSpace(content)
	if r := []rune(content); len(r) > 40 {
		content = string(r[:39]) + "…"
	}
	return fmt.Sprintf("Posted '%s'", content)
}
