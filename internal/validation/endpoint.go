package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// EndpointValidator checks the HTTP endpoints foro talks to: the hosted
// backend, the joke service and the browser geolocation service.
type EndpointValidator struct {
	// AllowLocal permits localhost and private network addresses, which the
	// local stand-in server and tests need.
	AllowLocal bool
	// RequireHTTPS rejects plain http endpoints unless they are local.
	RequireHTTPS bool
	MaxLength    int
}

func NewEndpointValidator() *EndpointValidator {
	return &EndpointValidator{
		RequireHTTPS: true,
		MaxLength:    2048,
	}
}

// NewLocalEndpointValidator accepts local endpoints over plain http.
func NewLocalEndpointValidator() *EndpointValidator {
	return &EndpointValidator{
		AllowLocal: true,
		MaxLength:  2048,
	}
}

// Validate returns the normalized endpoint. A missing scheme defaults to https.
func (v *EndpointValidator) Validate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if v.MaxLength > 0 && len(raw) > v.MaxLength {
		return "", fmt.Errorf("endpoint too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(raw, "<>\"'` ") {
		return "", fmt.Errorf("endpoint contains invalid characters")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("endpoint must use http or https, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("endpoint must have a host")
	}
	if u.User != nil {
		return "", fmt.Errorf("endpoint must not carry credentials")
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("endpoint path must not contain '..'")
	}

	local := isLocalHost(u.Hostname())
	if local && !v.AllowLocal {
		return "", fmt.Errorf("local endpoint %s is not permitted", u.Hostname())
	}
	if v.RequireHTTPS && u.Scheme != "https" && !local {
		return "", fmt.Errorf("endpoint must use https")
	}

	u.Fragment = ""
	return u.String(), nil
}

// isLocalHost reports whether host names the local machine or a private network.
func isLocalHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
