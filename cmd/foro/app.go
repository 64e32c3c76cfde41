package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pders01/foro/internal/api"
	"github.com/pders01/foro/internal/config"
	"github.com/pders01/foro/internal/db/postgres"
	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/device"
	"github.com/pders01/foro/internal/feed"
	"github.com/pders01/foro/internal/forum"
	"github.com/pders01/foro/internal/joke"
	"github.com/pders01/foro/internal/media"
	"github.com/pders01/foro/internal/remote"
	"github.com/pders01/foro/internal/search"
	"github.com/pders01/foro/internal/storage"
	"github.com/pders01/foro/internal/validation"
)

// app holds everything one CLI invocation needs.
type app struct {
	cfg        *config.Config
	cache      *feed.Cache
	detector   *media.TypeDetector
	notifier   *forum.TerminalNotifier
	controller *forum.Controller
	index      *search.Index
	indexSub   *feed.Subscription
	closers    []func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.detector, err = media.NewTypeDetector()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.notifier = forum.NewTerminalNotifier(os.Stderr)
	a.notifier.Plain = cfg.Notify.Plain
	a.notifier.Quiet = cfg.Notify.Quiet

	a.cache = feed.NewCache(store, cfg.Remote.Table)

	platform, err := device.ParsePlatform(cfg.Device.Platform)
	if err != nil {
		a.Close()
		return nil, err
	}
	camera, err := newCamera(cfg, a.detector)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := forum.Deps{
		Uploader:    media.NewUploader(store, cfg.Remote.Bucket, a.detector),
		Camera:      camera,
		Locator:     newLocator(cfg),
		Platform:    platform,
		Attachments: validation.NewAttachmentValidator(),
		Notifier:    a.notifier,
	}

	jokeValidator := validation.NewEndpointValidator()
	if cfg.Joke.AllowLocal {
		jokeValidator = validation.NewLocalEndpointValidator()
	}
	fetcher, err := joke.NewFetcher(cfg.Joke.Endpoint, cfg.Joke.Timeout, jokeValidator)
	if err != nil {
		debuglog.Warnf("jokes disabled: %v", err)
	} else {
		deps.Jokes = fetcher
	}

	author := forum.NewAuthor(cfg.User.ID, cfg.User.Name, cfg.User.PhotoURL)
	a.controller = forum.NewController(a.cache, author, deps)
	return a, nil
}

// openSearch attaches the search index so every feed update is indexed.
func (a *app) openSearch() error {
	indexPath := a.cfg.Database.SearchIndex
	if indexPath != "" {
		if _, err := validation.NewStateValidator().ValidateDirectory(filepath.Dir(indexPath), true); err != nil {
			return fmt.Errorf("search index directory: %w", err)
		}
	}
	idx, err := search.NewIndex(indexPath)
	if err != nil {
		return err
	}
	a.index = idx
	a.indexSub = idx.Attach(a.cache)
	a.closers = append(a.closers, idx.Close)
	return nil
}

func (a *app) Close() {
	if a.indexSub != nil {
		a.indexSub.Unsubscribe()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			debuglog.Warnf("closing: %v", err)
		}
	}
	a.closers = nil
}

// openStore returns the configured remote store.
func openStore(ctx context.Context, cfg *config.Config) (remote.Store, func() error, error) {
	if cfg.Remote.Backend == config.BackendHTTP {
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.HTTPTimeout)
		return client, func() error { return nil }, nil
	}
	return openLocalBackend(ctx, cfg)
}

// openLocalBackend opens a store that can also serve blobs back, for the
// bolt and postgres backends.
func openLocalBackend(ctx context.Context, cfg *config.Config) (api.Backend, func() error, error) {
	publicBase := cfg.Remote.PublicBaseURL
	if publicBase == "" {
		publicBase = cfg.Remote.BaseURL
	}

	switch cfg.Remote.Backend {
	case config.BackendBolt:
		if _, err := validation.NewStateValidator().ValidateDirectory(filepath.Dir(cfg.Database.Path), true); err != nil {
			return nil, nil, fmt.Errorf("database directory: %w", err)
		}
		store, err := storage.NewStoreWithTimeout(cfg.Database.Path, cfg.Database.Timeout)
		if err != nil {
			return nil, nil, err
		}
		store.SetPublicBaseURL(publicBase)
		return store, store.Close, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		store.SetPublicBaseURL(publicBase)
		return store, store.Close, nil
	}
	return nil, nil, errors.New("the http backend has no local store; set remote.backend to bolt or postgres")
}

func newCamera(cfg *config.Config, detector *media.TypeDetector) (device.Camera, error) {
	if cfg.Device.Camera.Source == "file" {
		return &device.FileCamera{Path: cfg.Device.Camera.File, Detector: detector}, nil
	}

	tools, err := device.NewToolRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Device.Camera.ToolsFile != "" {
		if err := tools.LoadOverrides(cfg.Device.Camera.ToolsFile); err != nil {
			return nil, err
		}
	}
	cam := device.NewCommandCamera(tools, cfg.Device.Camera.Tool)
	if cfg.Device.Camera.Quality > 0 {
		cam.Quality = cfg.Device.Camera.Quality
	}
	return cam, nil
}

func newLocator(cfg *config.Config) *device.Registry {
	loc := cfg.Device.Location
	registry := device.NewRegistry(loc.Timeout)
	registry.Register(&device.NativeProvider{
		Permissions: device.StaticPermission(device.PermissionState(loc.Permission)),
		Positions:   device.FixedPosition{Latitude: loc.Latitude, Longitude: loc.Longitude},
	})
	if loc.Endpoint != "" {
		registry.Register(&device.BrowserProvider{Endpoint: loc.Endpoint})
	}
	return registry
}
