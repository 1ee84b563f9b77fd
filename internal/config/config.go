// Package config provides configuration loading and validation for the
// org management server.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultBaseURL is the default Bitbucket server base URL
	DefaultBaseURL = "https://bitbucket.example.com"

	// DefaultRESTVersion is the Bitbucket REST API version in use
	DefaultRESTVersion = "1.0"

	// DefaultRefreshPeriod is the default interval between cache refreshes
	DefaultRefreshPeriod = 4 * time.Hour

	// DefaultAddress is the default listen address for the REST API
	DefaultAddress = ":8080"

	// DefaultHTTPTimeout is the default per-request timeout for Bitbucket calls
	DefaultHTTPTimeout = 30 * time.Second
)

// defaultContexts are the Bitbucket projects (foundations) read when
// BB_CONTEXTS is not set.
var defaultContexts = []string{"PCF_NPE", "PCF_PRD", "PCF_CDE"}

// Config holds all operational settings for the server. It is built once
// at startup and passed by reference to every component; there is no
// ambient global lookup.
type Config struct {
	// ClientID is the OAuth2 client id used for the client-credentials exchange
	ClientID string

	// ClientSecret is the OAuth2 client secret
	ClientSecret string

	// OAuthURL is the OAuth2 token endpoint
	OAuthURL string

	// ProjectsURL is the base URL for raw file fetches
	// (e.g. <base>/projects)
	ProjectsURL string

	// RESTURL is the base URL for paginated REST listings
	// (e.g. <base>/rest/api/1.0/projects)
	RESTURL string

	// RequestVerify enables TLS certificate verification on Bitbucket
	// requests. Disabled by default to match the deployments this tool
	// was written for, where Bitbucket sits behind an internal CA.
	RequestVerify bool

	// Contexts are the Bitbucket projects (foundations) to harvest
	Contexts []string

	// RefreshPeriod is the interval between scheduled cache refreshes.
	// A period of zero or less disables rescheduling (single-shot).
	RefreshPeriod time.Duration

	// Address is the listen address for the REST API
	Address string

	// HTTPTimeout bounds every individual Bitbucket request
	HTTPTimeout time.Duration

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// Load reads configuration from the environment, applying defaults for
// everything except the OAuth credentials.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	baseURL := strings.TrimSuffix(getString(v, "BB_BASE_URL", DefaultBaseURL), "/")
	defaultProjects := fmt.Sprintf("%s/projects", baseURL)
	defaultREST := fmt.Sprintf("%s/rest/api/%s/projects", baseURL, DefaultRESTVersion)

	cfg := &Config{
		ClientID:      v.GetString("BB_CLIENT_ID"),
		ClientSecret:  v.GetString("BB_CLIENT_SECRET"),
		OAuthURL:      v.GetString("BB_OAUTH_URL"),
		ProjectsURL:   strings.TrimSuffix(getString(v, "BB_PROJECTS_URL", defaultProjects), "/"),
		RESTURL:       strings.TrimSuffix(getString(v, "BB_REST_URL", defaultREST), "/"),
		RequestVerify: v.GetBool("BB_REQUEST_VERIFY"),
		Contexts:      ParseContexts(getString(v, "BB_CONTEXTS", strings.Join(defaultContexts, ","))),
		RefreshPeriod: getDuration(v, "REFRESH_PERIOD", DefaultRefreshPeriod),
		Address:       getString(v, "REST_ADDRESS", DefaultAddress),
		HTTPTimeout:   getDuration(v, "HTTP_TIMEOUT", DefaultHTTPTimeout),
		LogLevel:      getString(v, "LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required settings are present.
func (c *Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "BB_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "BB_CLIENT_SECRET")
	}
	if c.OAuthURL == "" {
		missing = append(missing, "BB_OAUTH_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment variable(s): %s", strings.Join(missing, ", "))
	}
	if len(c.Contexts) == 0 {
		return fmt.Errorf("no contexts configured")
	}
	return nil
}

// ParseContexts splits a context list supplied as a string. Both ','
// and ':' are accepted as separators; empty elements are dropped.
func ParseContexts(s string) []string {
	s = strings.ReplaceAll(s, ",", ":")
	var contexts []string
	for _, part := range strings.Split(s, ":") {
		if part = strings.TrimSpace(part); part != "" {
			contexts = append(contexts, part)
		}
	}
	return contexts
}

func getString(v *viper.Viper, key, fallback string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return fallback
}

func getDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	s := v.GetString(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// Plain integers are taken as seconds, matching the historical
	// REFRESH_PERIOD contract. Non-positive values disable rescheduling
	// (single-shot) rather than falling back to the default.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return fallback
}
