package device

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider resolves the device position on the platforms it supports.
type Provider interface {
	Name() string
	Supports(platform Platform) bool
	// Priority breaks ties when several providers support a platform;
	// higher wins.
	Priority() int
	Locate(ctx context.Context, client *http.Client) (Position, error)
}

// Registry picks a location provider for the running platform.
type Registry struct {
	providers []Provider
	client    *http.Client
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		client: &http.Client{Timeout: timeout},
	}
}

func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// FindProvider returns the highest priority provider for platform, or nil.
func (r *Registry) FindProvider(platform Platform) Provider {
	var best Provider
	highest := -1
	for _, p := range r.providers {
		if p.Supports(platform) && p.Priority() > highest {
			best = p
			highest = p.Priority()
		}
	}
	return best
}

func (r *Registry) Locate(ctx context.Context, platform Platform) (Position, error) {
	p := r.FindProvider(platform)
	if p == nil {
		return Position{}, fmt.Errorf("%w: no provider for platform %s", ErrLocation, platform)
	}
	return p.Locate(ctx, r.client)
}

func (r *Registry) Providers() []Provider {
	return append([]Provider(nil), r.providers...)
}
