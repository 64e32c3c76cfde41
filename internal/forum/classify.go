package forum

import (
	"strconv"
	"strings"

	"github.com/pders01/foro/internal/device"
	"github.com/pders01/foro/internal/media"
)

// ContentKind is what a post's content string turns out to hold.
type ContentKind int

const (
	KindText ContentKind = iota
	KindLocation
	KindMedia
)

func (k ContentKind) String() string {
	switch k {
	case KindLocation:
		return "location"
	case KindMedia:
		return "media"
	default:
		return "text"
	}
}

// Content is a post's content string with its kind worked out.
type Content struct {
	Kind ContentKind
	Raw  string
	// Position is set for locations whose coordinates parse.
	Position *device.Position
	// Media is set for media links.
	Media media.Kind
}

// IsLocation reports whether content carries a shared map link.
func IsLocation(content string) bool {
	return strings.Contains(content, device.MapURLPrefix)
}

const storageObjectPath = "/storage/v1/object/public/"

// Classify works out the kind of a content string. Media links are single
// http(s) URLs the detector recognises, or any public storage object URL.
func Classify(content string, detector *media.TypeDetector) Content {
	c := Content{Kind: KindText, Raw: content}

	if IsLocation(content) {
		c.Kind = KindLocation
		c.Position = parsePosition(content)
		return c
	}

	trimmed := strings.TrimSpace(content)
	if detector == nil || strings.ContainsAny(trimmed, " \t\n") {
		return c
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return c
	}
	kind := detector.DetectKind(trimmed)
	if kind != media.KindUnknown || strings.Contains(trimmed, storageObjectPath) {
		c.Kind = KindMedia
		c.Media = kind
	}
	return c
}

func parsePosition(content string) *device.Position {
	_, rest, ok := strings.Cut(content, device.MapURLPrefix)
	if !ok {
		return nil
	}
	if i := strings.IndexAny(rest, " \t\n&#"); i >= 0 {
		rest = rest[:i]
	}
	latStr, lngStr, ok := strings.Cut(rest, ",")
	if !ok {
		return nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil
	}
	return &device.Position{Latitude: lat, Longitude: lng}
}
