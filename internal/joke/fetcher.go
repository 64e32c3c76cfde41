package joke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pders01/foro/internal/validation"
)

const (
	DefaultEndpoint = "https://official-joke-api.appspot.com/jokes/random"
	DefaultTimeout  = 10 * time.Second
	userAgent       = "foro/1.0 (github.com/pders01/foro)"
)

var ErrExternalAPI = errors.New("fetching joke")

type Joke struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	Setup     string `json:"setup"`
	Punchline string `json:"punchline"`
}

// Content is the text posted to the feed.
func (j Joke) Content() string {
	return j.Setup + " - " + j.Punchline
}

type Fetcher struct {
	endpoint string
	client   *http.Client
}

// NewFetcher validates endpoint and returns a fetcher for it. An empty
// endpoint selects DefaultEndpoint.
func NewFetcher(endpoint string, timeout time.Duration, validator *validation.EndpointValidator) (*Fetcher, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if validator == nil {
		validator = validation.NewEndpointValidator()
	}
	normalized, err := validator.Validate(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid joke endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		endpoint: normalized,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (f *Fetcher) Endpoint() string {
	return f.endpoint
}

// Random fetches one joke.
func (f *Fetcher) Random(ctx context.Context) (Joke, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Joke{}, fmt.Errorf("%w: creating request: %w", ErrExternalAPI, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Joke{}, fmt.Errorf("%w: %w", ErrExternalAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Joke{}, fmt.Errorf("%w: HTTP error: %d", ErrExternalAPI, resp.StatusCode)
	}

	var j Joke
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&j); err != nil {
		return Joke{}, fmt.Errorf("%w: decoding response: %w", ErrExternalAPI, err)
	}
	j.Setup = strings.TrimSpace(j.Setup)
	j.Punchline = strings.TrimSpace(j.Punchline)
	if j.Setup == "" || j.Punchline == "" {
		return Joke{}, fmt.Errorf("%w: incomplete joke", ErrExternalAPI)
	}
	return j, nil
}
