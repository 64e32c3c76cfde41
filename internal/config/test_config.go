package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Remote.Backend = BackendBolt
	cfg.Remote.HTTPTimeout = 5 * time.Second
	cfg.Database = DatabaseConfig{
		Path:    ":memory:",
		Timeout: 1 * time.Second,
	}
	cfg.User = UserConfig{ID: "test-user", Name: "test@example.com"}
	cfg.Device.Camera.ToolsFile = ""
	cfg.Device.Location.Permission = "granted"
	cfg.Joke.Timeout = 5 * time.Second
	cfg.Log.Path = ""
	return cfg
}
