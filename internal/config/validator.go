package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateLobbyData(&cfg.LobbyData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateLobbyData(data *LobbyData, result *ValidationResult) {
	validatePort(data.LobbyPort, "lobby_data.lobby_port", result)
	validatePort(data.DeveloperPort, "lobby_data.developer_port", result)
	validatePort(data.APIPort, "lobby_data.api_port", result)

	// Conflict detection across the three listener ports.
	ports := map[int]string{
		data.LobbyPort:     "lobby",
		data.DeveloperPort: "developer",
		data.APIPort:       "api",
	}
	if len(ports) < 3 {
		result.AddError("lobby_data.ports", "port conflict detected: all ports must be unique")
	}

	if data.GamePortBase < 1024 || data.GamePortBase > 65535 {
		result.AddError("lobby_data.game_port_base",
			fmt.Sprintf("invalid game port base: %d (must be 1024-65535)", data.GamePortBase))
	}

	if strings.TrimSpace(data.StorageDirectory) == "" {
		result.AddError("lobby_data.storage_directory", "storage directory is required")
	}
	if strings.TrimSpace(data.DatabasePath) == "" {
		result.AddError("lobby_data.database_path", "database path is required")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.Timers.KeepAliveInterval < 1 {
		result.AddError("application_data.timers.keepalive_interval_sec",
			"keepalive interval must be at least 1 second")
	}
	if data.Timers.StatsPollingInterval < 1 {
		result.AddWarning("application_data.timers.stats_polling_interval_sec",
			"stats polling interval less than 1s may cause excessive load")
	}

	if data.Logging.MaxSizeMB < 1 {
		result.AddWarning("application_data.logging.max_size_mb",
			"log rotation disabled, a single log file may grow unbounded")
	}
	if data.Logging.MaxBackups < 1 {
		result.AddWarning("application_data.logging.max_backups",
			"log pruning disabled, old log files accumulate")
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
