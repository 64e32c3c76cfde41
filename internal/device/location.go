package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// MapURLPrefix starts every shared location link.
const MapURLPrefix = "https://www.google.com/maps?q="

type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformNative Platform = "native"
)

func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformWeb:
		return PlatformWeb, nil
	case PlatformNative, "":
		return PlatformNative, nil
	}
	return "", fmt.Errorf("unknown platform %q (want web or native)", s)
}

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MapURL links to a map centred on lat,lng.
func MapURL(lat, lng float64) string {
	return MapURLPrefix + strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

// PermissionState is the answer to a location permission request.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionPrompt  PermissionState = "prompt"
	PermissionDenied  PermissionState = "denied"
)

// Allows reports whether a position may be requested.
func (s PermissionState) Allows() bool {
	return s == PermissionGranted || s == PermissionPrompt
}

type PermissionRequester interface {
	RequestPermission(ctx context.Context) (PermissionState, error)
}

type PositionSource interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// StaticPermission always answers with the same state.
type StaticPermission PermissionState

func (p StaticPermission) RequestPermission(context.Context) (PermissionState, error) {
	return PermissionState(p), nil
}

// FixedPosition reports a configured position.
type FixedPosition Position

func (p FixedPosition) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position(p), nil
}

// NativeProvider asks for permission before reading the position.
type NativeProvider struct {
	Permissions PermissionRequester
	Positions   PositionSource
}

func (p *NativeProvider) Name() string { return "native" }

func (p *NativeProvider) Supports(platform Platform) bool { return platform == PlatformNative }

func (p *NativeProvider) Priority() int { return 50 }

func (p *NativeProvider) Locate(ctx context.Context, _ *http.Client) (Position, error) {
	state, err := p.Permissions.RequestPermission(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("%w: requesting permission: %w", ErrLocation, err)
	}
	if !state.Allows() {
		return Position{}, fmt.Errorf("%w (%s)", ErrPermissionDenied, state)
	}

	pos, err := p.Positions.CurrentPosition(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrLocation, err)
	}
	return pos, nil
}

// BrowserProvider resolves the position through an HTTP geolocation service,
// the way a browser without GPS falls back to network location.
type BrowserProvider struct {
	Endpoint string
}

func (p *BrowserProvider) Name() string { return "browser" }

func (p *BrowserProvider) Supports(platform Platform) bool { return platform == PlatformWeb }

func (p *BrowserProvider) Priority() int { return 50 }

// geoResponse accepts the field names used by common IP geolocation services.
type geoResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Lng       *float64 `json:"lng"`
}

func (g geoResponse) position() (Position, bool) {
	lat := firstSet(g.Latitude, g.Lat)
	lng := firstSet(g.Longitude, g.Lon, g.Lng)
	if lat == nil || lng == nil {
		return Position{}, false
	}
	return Position{Latitude: *lat, Longitude: *lng}, true
}

func (p *BrowserProvider) Locate(ctx context.Context, client *http.Client) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint, nil)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrLocation, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrLocation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("%w: geolocation service returned %d", ErrLocation, resp.StatusCode)
	}

	var g geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&g); err != nil {
		return Position{}, fmt.Errorf("%w: decoding response: %w", ErrLocation, err)
	}
	pos, ok := g.position()
	if !ok {
		return Position{}, fmt.Errorf("%w: response has no coordinates", ErrLocation)
	}
	return pos, nil
}

func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
