package plugin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the generic envelope a backend driver is initialized with.
// cmd/tweetpulse-ingest builds one per driver from the pipeline's own
// configuration (internal/config.Config), with the driver's settings under Backend.
type Config struct {
	Plugin  DriverConfig   `yaml:"plugin"`
	Backend map[string]any `yaml:"backend"`
}

// LoadConfig loads a driver configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// GetBackendConfig extracts the backend-specific section into target by
// round-tripping it through YAML. This is how each driver turns the
// generic map[string]any Backend section into its own typed Config struct.
func (c *Config) GetBackendConfig(target interface{}) error {
	data, err := yaml.Marshal(c.Backend)
	if err != nil {
		return fmt.Errorf("failed to marshal backend config: %w", err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal backend config: %w", err)
	}

	return nil
}
