// Package gatewayconfig loads process configuration: the credential
// file and the environment variables listed in spec §6. It is
// Component K of SPEC_FULL.md, the external collaborator spec.md
// treats as out of core scope but which any runnable binary needs.
package gatewayconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kiro-gateway/gateway/pkg/credential"
)

// Config is everything cmd/gatewaysrv needs to wire the gateway
// together at startup.
type Config struct {
	ClientSecret      string
	Port              string
	LogLevel          string
	UpstreamURL       string
	SocialRefreshURL  string
	IdCRefreshURL     string
	QuotaURL          string
	CredentialConfigs []credential.Config
}

const (
	envClientSecret     = "GATEWAY_CLIENT_SECRET"
	envPort             = "GATEWAY_PORT"
	envLogLevel         = "GATEWAY_LOG_LEVEL"
	envCredentialsFile  = "GATEWAY_CREDENTIALS_FILE"
	envUpstreamURL      = "GATEWAY_UPSTREAM_URL"
	envSocialRefreshURL = "GATEWAY_SOCIAL_REFRESH_URL"
	envIdCRefreshURL    = "GATEWAY_IDC_REFRESH_URL"
	envQuotaURL         = "GATEWAY_QUOTA_URL"
)

// Load reads env vars and the credential file, per spec §6. It returns
// an error rather than exiting directly; main.go is responsible for
// turning that into the spec-mandated non-zero exit code.
func Load() (*Config, error) {
	clientSecret := os.Getenv(envClientSecret)
	if clientSecret == "" {
		return nil, fmt.Errorf("%s is required", envClientSecret)
	}

	credentialsPath := os.Getenv(envCredentialsFile)
	if credentialsPath == "" {
		return nil, fmt.Errorf("%s is required", envCredentialsFile)
	}
	configs, err := loadCredentials(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", envCredentialsFile, err)
	}

	cfg := &Config{
		ClientSecret:      clientSecret,
		Port:              envOrDefault(envPort, "8080"),
		LogLevel:          envOrDefault(envLogLevel, "info"),
		UpstreamURL:       os.Getenv(envUpstreamURL),
		SocialRefreshURL:  os.Getenv(envSocialRefreshURL),
		IdCRefreshURL:     os.Getenv(envIdCRefreshURL),
		QuotaURL:          os.Getenv(envQuotaURL),
		CredentialConfigs: configs,
	}
	return cfg, nil
}

// credentialFileEntry mirrors the on-disk JSON shape from spec §6.
type credentialFileEntry struct {
	Auth         string `json:"auth"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"`
	Description  string `json:"description,omitempty"`
}

func loadCredentials(path string) ([]credential.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []credentialFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing credential file: %w", err)
	}

	var out []credential.Config
	for _, e := range entries {
		if e.Disabled {
			continue
		}
		out = append(out, credential.Config{
			Auth:         credential.AuthMethod(e.Auth),
			RefreshToken: e.RefreshToken,
			ClientID:     e.ClientID,
			ClientSecret: e.ClientSecret,
			Description:  e.Description,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no enabled credentials found in %s", path)
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
