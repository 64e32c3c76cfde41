package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pders01/foro/internal/debuglog"
)

// DefaultBucket is the storage bucket attachments are uploaded to.
const DefaultBucket = "chat-media"

var ErrUpload = errors.New("uploading media")

// BlobUploader is the part of remote.Store the uploader needs.
type BlobUploader interface {
	UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}

// Uploader stores photos and files and returns their public URLs.
type Uploader struct {
	blobs    BlobUploader
	bucket   string
	detector *TypeDetector
	now      func() time.Time
}

func NewUploader(blobs BlobUploader, bucket string, detector *TypeDetector) *Uploader {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Uploader{
		blobs:    blobs,
		bucket:   bucket,
		detector: detector,
		now:      time.Now,
	}
}

// UploadImage decodes a base64 data URL and stores it under
// images/{unixMillis}_{fileName}. The content type comes from the data URL
// header and defaults to image/jpeg.
func (u *Uploader) UploadImage(ctx context.Context, dataURL, fileName string) (string, error) {
	data, contentType, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if fileName == "" {
		fileName = "photo.jpeg"
	}
	return u.upload(ctx, "images", fileName, data, contentType)
}

// UploadFile stores data under files/{unixMillis}_{name}. An empty
// contentType is derived from the name's extension.
func (u *Uploader) UploadFile(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file %q is empty", ErrUpload, name)
	}
	if contentType == "" {
		contentType = defaultContentType
		if u.detector != nil {
			contentType = u.detector.ContentType(name)
		}
	}
	return u.upload(ctx, "files", name, data, contentType)
}

func (u *Uploader) upload(ctx context.Context, folder, name string, data []byte, contentType string) (string, error) {
	objectPath := fmt.Sprintf("%s/%d_%s", folder, u.now().UnixMilli(), sanitizeName(name))

	url, err := u.blobs.UploadBlob(ctx, u.bucket, objectPath, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	debuglog.WithFields(map[string]any{
		"bucket": u.bucket,
		"path":   objectPath,
		"bytes":  len(data),
	}).Infof("uploaded %s", contentType)
	return url, nil
}

// DecodeDataURL splits "data:<type>;base64,<payload>" and decodes the payload.
// A string without a comma is treated as a bare base64 payload.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	dataURL = strings.TrimSpace(dataURL)
	if dataURL == "" {
		return nil, "", fmt.Errorf("empty image data")
	}

	payload := dataURL
	var contentType string
	if header, rest, ok := strings.Cut(dataURL, ","); ok {
		payload = rest
		header = strings.TrimPrefix(header, "data:")
		header = strings.TrimSuffix(header, ";base64")
		contentType = header
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image data: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	return data, contentType, nil
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	return strings.ReplaceAll(name, " ", "_")
}
