package device

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/media"
)

// DefaultQuality is the JPEG quality requested from capture tools.
const DefaultQuality = 70

// Camera takes a photo and returns it as a base64 data URL.
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// FileCamera "captures" an existing image file. It backs the web platform
// and headless setups.
type FileCamera struct {
	Path     string
	Detector *media.TypeDetector
}

func (c *FileCamera) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}
	if c.Path == "" {
		return "", fmt.Errorf("%w: no image file configured", ErrCapture)
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrCapture, c.Path)
	}

	contentType := "image/jpeg"
	if c.Detector != nil {
		if c.Detector.DetectKind(c.Path) != media.KindImage {
			return "", fmt.Errorf("%w: %s is not an image", ErrCapture, c.Path)
		}
		contentType = c.Detector.ContentType(c.Path)
	}
	return media.EncodeDataURL(data, contentType), nil
}

// CommandCamera runs an installed capture tool and reads back the JPEG it wrote.
type CommandCamera struct {
	Tools     *ToolRegistry
	Preferred string
	Quality   int
	// GOOS selects the tool table entry; defaults to runtime.GOOS.
	GOOS string
}

func NewCommandCamera(tools *ToolRegistry, preferred string) *CommandCamera {
	return &CommandCamera{Tools: tools, Preferred: preferred, Quality: DefaultQuality}
}

func (c *CommandCamera) Capture(ctx context.Context) (string, error) {
	goos := c.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	quality := c.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	tool, ok := c.Tools.FindAvailable(goos, c.Preferred)
	if !ok {
		return "", fmt.Errorf("%w: no capture tool installed for %s", ErrCapture, goos)
	}

	dir, err := os.MkdirTemp("", "foro-capture-")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}
	defer os.RemoveAll(dir)
	output := filepath.Join(dir, "capture.jpeg")

	args, err := c.Tools.Args(tool, goos, output, quality)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}

	debuglog.WithFields(map[string]any{"tool": tool, "quality": quality}).Debugf("capturing photo")
	cmd := exec.CommandContext(ctx, tool, args...)
	if out, runErr := cmd.CombinedOutput(); runErr != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return "", fmt.Errorf("%w: %s: %w", ErrCapture, tool, runErr)
		}
		return "", fmt.Errorf("%w: %s: %w: %s", ErrCapture, tool, runErr, msg)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return "", fmt.Errorf("%w: %s wrote no image: %w", ErrCapture, tool, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s wrote an empty image", ErrCapture, tool)
	}
	return media.EncodeDataURL(data, "image/jpeg"), nil
}
