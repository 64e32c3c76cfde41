package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Remote backends.
const (
	BackendHTTP     = "http"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

type Config struct {
	Remote   RemoteConfig   `mapstructure:"remote"`
	Database DatabaseConfig `mapstructure:"database"`
	User     UserConfig     `mapstructure:"user"`
	Device   DeviceConfig   `mapstructure:"device"`
	Joke     JokeConfig     `mapstructure:"joke"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type RemoteConfig struct {
	// Backend is http (hosted service or foro serve), bolt or postgres.
	Backend       string        `mapstructure:"backend"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Table         string        `mapstructure:"table"`
	Bucket        string        `mapstructure:"bucket"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	DSN         string        `mapstructure:"dsn"`
	SearchIndex string        `mapstructure:"search_index"`
}

type UserConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	PhotoURL string `mapstructure:"photo_url"`
}

type DeviceConfig struct {
	Platform string         `mapstructure:"platform"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Location LocationConfig `mapstructure:"location"`
}

type CameraConfig struct {
	// Source is command (run a capture tool) or file (read File).
	Source    string `mapstructure:"source"`
	File      string `mapstructure:"file"`
	Tool      string `mapstructure:"tool"`
	ToolsFile string `mapstructure:"tools_file"`
	Quality   int    `mapstructure:"quality"`
}

type LocationConfig struct {
	Permission string        `mapstructure:"permission"`
	Latitude   float64       `mapstructure:"latitude"`
	Longitude  float64       `mapstructure:"longitude"`
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type JokeConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	AllowLocal bool          `mapstructure:"allow_local"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type NotifyConfig struct {
	Plain bool `mapstructure:"plain"`
	Quiet bool `mapstructure:"quiet"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".foro")

	return &Config{
		Remote: RemoteConfig{
			Backend:     BackendBolt,
			BaseURL:     "http://localhost:8787",
			Table:       "news",
			Bucket:      "chat-media",
			HTTPTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "foro.db"),
			Timeout:     1 * time.Second,
			SearchIndex: filepath.Join(dataDir, "index.bleve"),
		},
		Device: DeviceConfig{
			Platform: "native",
			Camera: CameraConfig{
				Source:    "command",
				ToolsFile: filepath.Join(homeDir, ".config", "foro", "capture_tools.toml"),
				Quality:   70,
			},
			Location: LocationConfig{
				Permission: "prompt",
				Endpoint:   "http://ip-api.com/json",
				Timeout:    10 * time.Second,
			},
		},
		Joke: JokeConfig{
			Endpoint: "https://official-joke-api.appspot.com/jokes/random",
			Timeout:  10 * time.Second,
		},
		Server: ServerConfig{
			Addr:           ":8787",
			MaxUploadBytes: 50 << 20,
		},
		Log: LogConfig{
			Level: "off",
			Path:  filepath.Join(dataDir, "debug.log"),
		},
	}
}

// setDefaults registers every key so environment overrides reach nested
// fields.
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"remote.backend":             cfg.Remote.Backend,
		"remote.base_url":            cfg.Remote.BaseURL,
		"remote.api_key":             cfg.Remote.APIKey,
		"remote.table":               cfg.Remote.Table,
		"remote.bucket":              cfg.Remote.Bucket,
		"remote.http_timeout":        cfg.Remote.HTTPTimeout,
		"remote.public_base_url":     cfg.Remote.PublicBaseURL,
		"database.path":              cfg.Database.Path,
		"database.timeout":           cfg.Database.Timeout,
		"database.dsn":               cfg.Database.DSN,
		"database.search_index":      cfg.Database.SearchIndex,
		"user.id":                    cfg.User.ID,
		"user.name":                  cfg.User.Name,
		"user.photo_url":             cfg.User.PhotoURL,
		"device.platform":            cfg.Device.Platform,
		"device.camera.source":       cfg.Device.Camera.Source,
		"device.camera.file":         cfg.Device.Camera.File,
		"device.camera.tool":         cfg.Device.Camera.Tool,
		"device.camera.tools_file":   cfg.Device.Camera.ToolsFile,
		"device.camera.quality":      cfg.Device.Camera.Quality,
		"device.location.permission": cfg.Device.Location.Permission,
		"device.location.latitude":   cfg.Device.Location.Latitude,
		"device.location.longitude":  cfg.Device.Location.Longitude,
		"device.location.endpoint":   cfg.Device.Location.Endpoint,
		"device.location.timeout":    cfg.Device.Location.Timeout,
		"joke.endpoint":              cfg.Joke.Endpoint,
		"joke.timeout":               cfg.Joke.Timeout,
		"joke.allow_local":           cfg.Joke.AllowLocal,
		"server.addr":                cfg.Server.Addr,
		"server.max_upload_bytes":    cfg.Server.MaxUploadBytes,
		"log.level":                  cfg.Log.Level,
		"log.path":                   cfg.Log.Path,
		"notify.plain":               cfg.Notify.Plain,
		"notify.quiet":               cfg.Notify.Quiet,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads configPath, or config.toml from ~/.config/foro or the working
// directory when configPath is empty. FORO_* environment variables override
// file values, e.g. FORO_REMOTE_API_KEY for remote.api_key.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "foro")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FORO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case BackendHTTP:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for the http backend")
		}
	case BackendBolt:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the bolt backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown remote.backend %q (want http, bolt or postgres)", c.Remote.Backend)
	}

	switch strings.ToLower(c.Device.Camera.Source) {
	case "", "command", "file":
	default:
		return fmt.Errorf("unknown device.camera.source %q (want command or file)", c.Device.Camera.Source)
	}
	if c.Device.Camera.Quality < 0 || c.Device.Camera.Quality > 100 {
		return fmt.Errorf("device.camera.quality must be between 0 and 100")
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// expandPaths expands all paths in the config
func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Device.Camera.File = expandPath(cfg.Device.Camera.File)
	cfg.Device.Camera.ToolsFile = expandPath(cfg.Device.Camera.ToolsFile)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations are written as strings for TOML readability
	v.Set("remote", map[string]any{
		"backend":         config.Remote.Backend,
		"base_url":        config.Remote.BaseURL,
		"api_key":         config.Remote.APIKey,
		"table":           config.Remote.Table,
		"bucket":          config.Remote.Bucket,
		"http_timeout":    config.Remote.HTTPTimeout.String(),
		"public_base_url": config.Remote.PublicBaseURL,
	})
	v.Set("database", map[string]any{
		"path":         config.Database.Path,
		"timeout":      config.Database.Timeout.String(),
		"dsn":          config.Database.DSN,
		"search_index": config.Database.SearchIndex,
	})
	v.Set("user", map[string]any{
		"id":        config.User.ID,
		"name":      config.User.Name,
		"photo_url": config.User.PhotoURL,
	})
	v.Set("device", map[string]any{
		"platform": config.Device.Platform,
		"camera": map[string]any{
			"source":     config.Device.Camera.Source,
			"file":       config.Device.Camera.File,
			"tool":       config.Device.Camera.Tool,
			"tools_file": config.Device.Camera.ToolsFile,
			"quality":    config.Device.Camera.Quality,
		},
		"location": map[string]any{
			"permission": config.Device.Location.Permission,
			"latitude":   config.Device.Location.Latitude,
			"longitude":  config.Device.Location.Longitude,
			"endpoint":   config.Device.Location.Endpoint,
			"timeout":    config.Device.Location.Timeout.String(),
		},
	})
	v.Set("joke", map[string]any{
		"endpoint":    config.Joke.Endpoint,
		"timeout":     config.Joke.Timeout.String(),
		"allow_local": config.Joke.AllowLocal,
	})
	v.Set("server", map[string]any{
		"addr":             config.Server.Addr,
		"max_upload_bytes": config.Server.MaxUploadBytes,
	})
	v.Set("log", map[string]any{
		"level": config.Log.Level,
		"path":  config.Log.Path,
	})
	v.Set("notify", map[string]any{
		"plain": config.Notify.Plain,
		"quiet": config.Notify.Quiet,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
