package media

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed media_types.toml
var mediaTypesTOML []byte

const defaultContentType = "application/octet-stream"

type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
	KindAudio
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

type TypeConfig struct {
	Extensions  []string `toml:"extensions"`
	URLPatterns []string `toml:"url_patterns"`
}

type TypesConfig struct {
	Image TypeConfig        `toml:"image"`
	Video TypeConfig        `toml:"video"`
	Audio TypeConfig        `toml:"audio"`
	PDF   TypeConfig        `toml:"pdf"`
	MIME  map[string]string `toml:"mime"`
}

// TypeDetector classifies file names and URLs by extension and known hosts.
type TypeDetector struct {
	config *TypesConfig
}

func NewTypeDetector() (*TypeDetector, error) {
	var cfg TypesConfig
	if _, err := toml.Decode(string(mediaTypesTOML), &cfg); err != nil {
		return nil, fmt.Errorf("parsing media_types.toml: %w", err)
	}
	return &TypeDetector{config: &cfg}, nil
}

// DetectKind classifies name, which may be a plain file name or a URL.
func (d *TypeDetector) DetectKind(name string) Kind {
	lower := strings.ToLower(strings.TrimSpace(name))

	if ext := extension(lower); ext != "" {
		for _, c := range d.ordered() {
			if contains(c.cfg.Extensions, ext) {
				return c.kind
			}
		}
	}

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		for _, c := range d.ordered() {
			for _, p := range c.cfg.URLPatterns {
				if strings.Contains(lower, p) {
					return c.kind
				}
			}
		}
	}
	return KindUnknown
}

// ContentType returns the MIME type for name's extension, or
// application/octet-stream when it is not known.
func (d *TypeDetector) ContentType(name string) string {
	if ct, ok := d.config.MIME[extension(strings.ToLower(name))]; ok {
		return ct
	}
	return defaultContentType
}

type kindConfig struct {
	kind Kind
	cfg  TypeConfig
}

func (d *TypeDetector) ordered() []kindConfig {
	return []kindConfig{
		{KindImage, d.config.Image},
		{KindVideo, d.config.Video},
		{KindAudio, d.config.Audio},
		{KindPDF, d.config.PDF},
	}
}

// extension returns the lowercase extension without the dot, ignoring any
// query string or fragment.
func extension(name string) string {
	if i := strings.IndexAny(name, "?#"); i != -1 {
		name = name[:i]
	}
	slash := strings.LastIndex(name, "/")
	dot := strings.LastIndex(name, ".")
	if dot == -1 || dot < slash {
		return ""
	}
	return name[dot+1:]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
