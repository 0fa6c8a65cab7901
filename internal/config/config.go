// Package config handles configuration loading, validation, and persistence
// for the Parlor lobby service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir     = "config"
	DefaultConfigFile    = "config.json"
	DefaultLobbyPort     = 12345
	DefaultDeveloperPort = 12346
	DefaultAPIPort       = 5000
	DefaultGamePortBase  = 20100
	DefaultStorageDir    = "uploaded_games"
	DefaultDatabaseFile  = "data/parlor.db"
	DefaultKeepAliveSec  = 5
)

// Config is the root configuration structure for Parlor.
type Config struct {
	mu   sync.RWMutex
	path string

	LobbyData       LobbyData       `json:"lobby_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// LobbyData contains the listener and game hosting configuration.
type LobbyData struct {
	// Listeners
	LobbyPort     int    `json:"lobby_port"`
	DeveloperPort int    `json:"developer_port"`
	APIPort       int    `json:"api_port"`
	BindAddress   string `json:"bind_address"`

	// Game server processes
	GamePortBase int `json:"game_port_base"`

	// Storage
	StorageDirectory string `json:"storage_directory"`
	DatabasePath     string `json:"database_path"`
}

// ApplicationData contains service-level configuration.
type ApplicationData struct {
	Timers  TimerConfig   `json:"timers"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// TimerConfig holds periodic task interval settings.
type TimerConfig struct {
	KeepAliveInterval    int `json:"keepalive_interval_sec"`
	StatsPollingInterval int `json:"stats_polling_interval_sec"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LobbyData: LobbyData{
			LobbyPort:        DefaultLobbyPort,
			DeveloperPort:    DefaultDeveloperPort,
			APIPort:          DefaultAPIPort,
			BindAddress:      "0.0.0.0",
			GamePortBase:     DefaultGamePortBase,
			StorageDirectory: DefaultStorageDir,
			DatabasePath:     DefaultDatabaseFile,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				KeepAliveInterval:    DefaultKeepAliveSec,
				StatsPollingInterval: 10,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
				Console:    true,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating a default file when
// none exists yet.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetLobbyData returns a copy of the lobby configuration.
func (c *Config) GetLobbyData() LobbyData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LobbyData
}

// SetLobbyData updates the lobby configuration.
func (c *Config) SetLobbyData(data LobbyData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LobbyData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
