// Package config loads datalib settings from the environment and an optional
// .env or YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration is returned when required settings are missing or invalid.
var ErrConfiguration = errors.New("configuration error")

// Setting keys. Each maps to the upper-case environment variable of the same
// name and to a lower-case key in a config file.
const (
	KeyAPIUser           = "api_user"
	KeyAPIPassword       = "api_password"
	KeyAuth0Domain       = "auth0_domain"
	KeyAuth0ClientID     = "auth0_client_id"
	KeyAuth0ClientSecret = "auth0_client_secret"
	KeyAPIAudience       = "api_audience"
	KeyAPIEndpoint       = "api_endpoint"
	KeyAuth0Scope        = "auth0_scope"
	KeyHTTPTimeout       = "http_timeout"
	KeyTokenDefaultTTL   = "token_default_ttl"
	KeyDataverseURL      = "dataverse_url"
	KeyDataverseAPIToken = "dataverse_api_token"
	KeyS3Region          = "s3_region"
	KeyS3Endpoint        = "s3_endpoint"
	KeyS3AccessKeyID     = "s3_access_key_id"
	KeyS3SecretKey       = "s3_secret_access_key"
	KeyS3SessionToken    = "s3_session_token"
	KeyS3UsePathStyle    = "s3_use_path_style"
	KeyS3PresignTTL      = "s3_presign_ttl"
	KeyLogLevel          = "log_level"
)

// Defaults.
const (
	DefaultScope        = "openid email profile"
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultTokenTTL     = 24 * time.Hour
	DefaultDataverseURL = "https://dataverse.harvard.edu"
	DefaultS3Region     = "us-east-1"
	DefaultPresignTTL   = 15 * time.Minute
	DefaultLogLevel     = "info"
)

var allKeys = []string{
	KeyAPIUser, KeyAPIPassword, KeyAuth0Domain, KeyAuth0ClientID,
	KeyAuth0ClientSecret, KeyAPIAudience, KeyAPIEndpoint, KeyAuth0Scope,
	KeyHTTPTimeout, KeyTokenDefaultTTL, KeyDataverseURL, KeyDataverseAPIToken,
	KeyS3Region, KeyS3Endpoint, KeyS3AccessKeyID, KeyS3SecretKey,
	KeyS3SessionToken, KeyS3UsePathStyle, KeyS3PresignTTL, KeyLogLevel,
}

// Config holds all datalib settings.
type Config struct {
	Auth      AuthConfig
	API       APIConfig
	Dataverse DataverseConfig
	S3        S3Config
	LogLevel  string
}

// AuthConfig configures the Auth0 password grant.
type AuthConfig struct {
	Username     string
	Password     string
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string
	Scope        string
	DefaultTTL   time.Duration
}

// APIConfig configures the catalog API.
type APIConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// DataverseConfig configures the Dataverse backend.
type DataverseConfig struct {
	URL      string
	APIToken string
}

// S3Config configures the S3 backend. It is optional.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// Enabled reports whether any S3 setting was provided.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" || c.AccessKeyID != "" || c.Region != ""
}

// Load reads settings from the environment and, when path is non-empty, from
// a config file. Files ending in .env are parsed as dotenv, everything else by
// extension (yaml, json, toml). Environment variables win over file values.
// The returned config has defaults applied but is not validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	for _, key := range allKeys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	get := func(key string) string {
		return strings.TrimSpace(expandEnvVars(v.GetString(key)))
	}

	cfg := &Config{
		Auth: AuthConfig{
			Username:     get(KeyAPIUser),
			Password:     get(KeyAPIPassword),
			Domain:       get(KeyAuth0Domain),
			ClientID:     get(KeyAuth0ClientID),
			ClientSecret: get(KeyAuth0ClientSecret),
			Audience:     get(KeyAPIAudience),
			Scope:        get(KeyAuth0Scope),
		},
		API: APIConfig{
			Endpoint: strings.TrimRight(get(KeyAPIEndpoint), "/"),
		},
		Dataverse: DataverseConfig{
			URL:      strings.TrimRight(get(KeyDataverseURL), "/"),
			APIToken: get(KeyDataverseAPIToken),
		},
		S3: S3Config{
			Region:          get(KeyS3Region),
			Endpoint:        get(KeyS3Endpoint),
			AccessKeyID:     get(KeyS3AccessKeyID),
			SecretAccessKey: get(KeyS3SecretKey),
			SessionToken:    get(KeyS3SessionToken),
		},
		LogLevel: get(KeyLogLevel),
	}

	var errs []string
	var err error
	if cfg.API.Timeout, err = parseDuration(get(KeyHTTPTimeout)); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", strings.ToUpper(KeyHTTPTimeout), err))
	}
	if cfg.Auth.DefaultTTL, err = parseDuration(get(KeyTokenDefaultTTL)); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", strings.ToUpper(KeyTokenDefaultTTL), err))
	}
	if cfg.S3.PresignTTL, err = parseDuration(get(KeyS3PresignTTL)); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", strings.ToUpper(KeyS3PresignTTL), err))
	}
	if raw := get(KeyS3UsePathStyle); raw != "" {
		cfg.S3.UsePathStyle = v.GetBool(KeyS3UsePathStyle)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}

	applyDefaults(cfg)
	return cfg, nil
}

// parseDuration accepts Go duration strings and bare integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

// expandEnvVars replaces ${VAR} references with environment values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Auth.Scope == "" {
		cfg.Auth.Scope = DefaultScope
	}
	if cfg.Auth.DefaultTTL == 0 {
		cfg.Auth.DefaultTTL = DefaultTokenTTL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = DefaultHTTPTimeout
	}
	if cfg.Dataverse.URL == "" {
		cfg.Dataverse.URL = DefaultDataverseURL
	}
	if cfg.S3.PresignTTL == 0 {
		cfg.S3.PresignTTL = DefaultPresignTTL
	}
	if cfg.S3.Enabled() && cfg.S3.Region == "" {
		cfg.S3.Region = DefaultS3Region
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Validate checks that every required, non-credential setting is present.
// API_USER and API_PASSWORD are optional; the credential store prompts for
// them when they are missing.
func (c *Config) Validate() error {
	var errs []string

	required := []struct {
		key   string
		value string
	}{
		{KeyAuth0Domain, c.Auth.Domain},
		{KeyAuth0ClientID, c.Auth.ClientID},
		{KeyAuth0ClientSecret, c.Auth.ClientSecret},
		{KeyAPIAudience, c.Auth.Audience},
		{KeyAPIEndpoint, c.API.Endpoint},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, strings.ToUpper(r.key)+" is required")
		}
	}

	if c.API.Timeout < 0 {
		errs = append(errs, "HTTP_TIMEOUT must not be negative")
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, "S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}
	return nil
}
