package config

import "fmt"

// ServerConfig holds the process-level settings of `insight serve`
// (flags, not the router config file).
type ServerConfig struct {
	// ConfigPath is the router config file. Empty means built-in defaults.
	ConfigPath string

	// HTTPAddr is the API listen address.
	HTTPAddr string

	// WatchConfig enables hot reload of ConfigPath.
	WatchConfig bool

	// TracingEnabled indicates whether OpenTelemetry tracing is enabled
	TracingEnabled bool

	// TracingEndpoint is the OTLP gRPC endpoint for trace export
	TracingEndpoint string

	// TracingTLSCAPath is the path to the CA certificate for TLS verification
	TracingTLSCAPath string

	// TracingInsecure disables TLS towards the collector.
	TracingInsecure bool
}

// Validate checks that the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.HTTPAddr == "" {
		return NewConfigError("HTTPAddr must not be empty")
	}
	if c.WatchConfig && c.ConfigPath == "" {
		return NewConfigError("config watching requires --config")
	}
	if c.TracingEnabled && c.TracingEndpoint == "" {
		return NewConfigError("TracingEndpoint must be set when tracing is enabled")
	}
	if c.TracingInsecure && c.TracingTLSCAPath != "" {
		return NewConfigError(fmt.Sprintf("TracingTLSCAPath %q conflicts with insecure tracing", c.TracingTLSCAPath))
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
