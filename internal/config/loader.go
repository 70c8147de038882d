package config

import (
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

// LoadAndValidate loads and validates the configuration.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resona: failed to read config: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resona: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("resona: config validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("resona: failed to unmarshal into Config struct: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("resona: config validation failed: %w", err)
	}

	return &config, nil
}

// validate enforces cross-field constraints the schema cannot express.
func validate(cfg *Config) error {
	if len(cfg.Models.Profiles) == 0 {
		return fmt.Errorf("models.profiles must define at least one profile")
	}

	if _, ok := cfg.Models.Profiles[cfg.Models.DefaultProfile]; !ok {
		return fmt.Errorf("models.default_profile %q is not defined in models.profiles", cfg.Models.DefaultProfile)
	}

	if cfg.Models.Tokenizer == "" {
		return fmt.Errorf("models.tokenizer must be set")
	}

	if cfg.Models.Prewarm.Enabled {
		role := cfg.Models.Prewarm.Role
		if _, ok := cfg.Models.Profiles[cfg.Models.DefaultProfile][role]; !ok {
			return fmt.Errorf("models.prewarm.role %q is not defined in the default profile", role)
		}
	}

	return nil
}
