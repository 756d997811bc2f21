// internal/config/secrets.go - credentials for the external backends
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every secret variable, e.g. SITEMONITOR_PORTAL_PASSWORD.
const EnvPrefix = "sitemonitor"

// Secrets holds credentials for the adapters. They only ever come from the
// process environment or an env file.
type Secrets struct {
	ElasticUsername string `envconfig:"ELASTIC_USERNAME"`
	ElasticPassword string `envconfig:"ELASTIC_PASSWORD"`
	ElasticAPIKey   string `envconfig:"ELASTIC_API_KEY"`
	SyntheticAPIKey string `envconfig:"SYNTHETIC_API_KEY"`
	PortalUsername  string `envconfig:"PORTAL_USERNAME"`
	PortalPassword  string `envconfig:"PORTAL_PASSWORD"`
}

// LoadSecrets reads secrets from the environment after loading envFile, if
// it exists. Variables already set in the environment win over the file.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var s Secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Secrets{}, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	return s, nil
}

// Masked returns a copy safe to log or return from the API.
func (s Secrets) Masked() Secrets {
	return Secrets{
		ElasticUsername: s.ElasticUsername,
		ElasticPassword: maskToken(s.ElasticPassword),
		ElasticAPIKey:   maskToken(s.ElasticAPIKey),
		SyntheticAPIKey: maskToken(s.SyntheticAPIKey),
		PortalUsername:  s.PortalUsername,
		PortalPassword:  maskToken(s.PortalPassword),
	}
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
