package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cfgTestDomain    = "tenant.eu.auth0.com"
	cfgTestClientID  = "client-123"
	cfgTestSecret    = "s3cret"
	cfgTestAudience  = "https://api.example.com"
	cfgTestEndpoint  = "https://catalog.example.com/api"
	cfgTestFilePerms = 0o600
)

// writeTestConfig writes a config file into a temp dir and returns its path.
func writeTestConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, name)
	if err := os.WriteFile(configPath, []byte(content), cfgTestFilePerms); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

// clearEnv blanks every recognized variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(strings.ToUpper(key), "")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH0_DOMAIN", cfgTestDomain)
	t.Setenv("AUTH0_CLIENT_ID", cfgTestClientID)
	t.Setenv("AUTH0_CLIENT_SECRET", cfgTestSecret)
	t.Setenv("API_AUDIENCE", cfgTestAudience)
	t.Setenv("API_ENDPOINT", cfgTestEndpoint+"/")
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("API_USER", "analyst@example.com")
	t.Setenv("HTTP_TIMEOUT", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, cfgTestDomain, cfg.Auth.Domain)
	assert.Equal(t, cfgTestClientID, cfg.Auth.ClientID)
	assert.Equal(t, "analyst@example.com", cfg.Auth.Username)
	assert.Empty(t, cfg.Auth.Password)
	assert.Equal(t, cfgTestEndpoint, cfg.API.Endpoint, "trailing slash is trimmed")
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultScope, cfg.Auth.Scope)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.DefaultTTL)
	assert.Equal(t, DefaultHTTPTimeout, cfg.API.Timeout)
	assert.Equal(t, DefaultDataverseURL, cfg.Dataverse.URL)
	assert.Equal(t, DefaultPresignTTL, cfg.S3.PresignTTL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.S3.Enabled())
	assert.Empty(t, cfg.S3.Region, "region default only applies when S3 is configured")
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := writeTestConfig(t, ".env", strings.Join([]string{
		"AUTH0_DOMAIN=" + cfgTestDomain,
		"AUTH0_CLIENT_ID=" + cfgTestClientID,
		"AUTH0_CLIENT_SECRET=" + cfgTestSecret,
		"API_AUDIENCE=" + cfgTestAudience,
		"API_ENDPOINT=" + cfgTestEndpoint,
		"API_PASSWORD=from-file",
		"TOKEN_DEFAULT_TTL=3600",
	}, "\n"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfgTestDomain, cfg.Auth.Domain)
	assert.Equal(t, "from-file", cfg.Auth.Password)
	assert.Equal(t, time.Hour, cfg.Auth.DefaultTTL, "bare integers are seconds")
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH0_DOMAIN", "override.auth0.com")
	path := writeTestConfig(t, "datalib.yaml", `
auth0_domain: file.auth0.com
api_endpoint: https://catalog.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override.auth0.com", cfg.Auth.Domain)
	assert.Equal(t, "https://catalog.example.com", cfg.API.Endpoint)
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATALIB_TEST_SECRET", "expanded-secret")
	path := writeTestConfig(t, "datalib.yaml", `
auth0_client_secret: ${DATALIB_TEST_SECRET}
s3_endpoint: http://localhost:9000
s3_use_path_style: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-secret", cfg.Auth.ClientSecret)
	assert.True(t, cfg.S3.Enabled())
	assert.True(t, cfg.S3.UsePathStyle)
	assert.Equal(t, DefaultS3Region, cfg.S3.Region)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth: AuthConfig{
				Domain:       cfgTestDomain,
				ClientID:     cfgTestClientID,
				ClientSecret: cfgTestSecret,
				Audience:     cfgTestAudience,
			},
			API: APIConfig{Endpoint: cfgTestEndpoint},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "credentials are optional",
			mutate: func(c *Config) { c.Auth.Username, c.Auth.Password = "", "" },
		},
		{
			name:    "missing domain",
			mutate:  func(c *Config) { c.Auth.Domain = "" },
			wantErr: []string{"AUTH0_DOMAIN is required"},
		},
		{
			name: "every missing key is reported",
			mutate: func(c *Config) {
				c.Auth.ClientID = ""
				c.Auth.Audience = ""
				c.API.Endpoint = ""
			},
			wantErr: []string{"AUTH0_CLIENT_ID", "API_AUDIENCE", "API_ENDPOINT"},
		},
		{
			name:    "half configured S3 keys",
			mutate:  func(c *Config) { c.S3.AccessKeyID = "AKIA" },
			wantErr: []string{"S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Validate() error = %v, want ErrConfiguration", err)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "90s", want: 90 * time.Second},
		{in: "2h", want: 2 * time.Hour},
		{in: "120", want: 2 * time.Minute},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
