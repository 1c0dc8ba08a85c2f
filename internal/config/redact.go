package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/itesm-showroom/showroom/internal/security"
)

// Secrets returns the credential values held by cfg, for registration with
// a security.Redactor.
func (c *Config) Secrets() []string {
	secrets := append([]string(nil), c.Log.Redact...)
	for _, p := range c.Providers {
		secrets = append(secrets, p.OpenAI.APIKey)
	}
	return append(secrets, c.Gateway.Auth.BearerToken, c.Gateway.Auth.BasicPass)
}

// Redacted renders cfg as YAML with every secret masked.
func (c *Config) Redacted() ([]byte, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	security.NewRedactor(c.Secrets()...).RedactMap(tree)
	return yaml.Marshal(tree)
}
