package app

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/catalogue-manager/internal/client/credentials"
	"github.com/xenking/catalogue-manager/internal/domain/auth"
)

const defaultAddr = "0.0.0.0:8080"

// Auth modes for the catalogue service.
const (
	AuthOAuth2 = "oauth2"
	AuthBasic  = "basic"
	AuthNone   = "none"
)

// Config holds the complete application configuration, loadable from
// environment variables (MANAGER_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string          `default:"0.0.0.0:8080" usage:"Web server listen address" validate:"required"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
	Auth      AuthConfig      `yaml:"auth"`
	// Managers are "username:bcrypt_hash[:ROLE+ROLE]" entries. Roles default
	// to MANAGER.
	Managers []string       `usage:"Managers allowed to sign in, as username:bcrypt_hash[:ROLE+ROLE]"`
	Graceful GracefulConfig `yaml:"graceful"`
}

// CatalogueConfig locates the catalogue REST service.
type CatalogueConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL" default:"http://localhost:8081/catalogue-api" usage:"Catalogue API root URL" flag:"catalogue-url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" default:"10s" usage:"Timeout of a single catalogue request" flag:"catalogue-timeout" validate:"gt=0"`
}

// AuthConfig selects how requests to the catalogue service are authenticated.
type AuthConfig struct {
	Mode   string       `yaml:"mode" default:"oauth2" usage:"Catalogue auth mode: oauth2, basic or none" flag:"auth-mode" validate:"oneof=oauth2 basic none"`
	OAuth2 OAuth2Config `yaml:"oauth2" env:"OAUTH2" validate:"-"`
	Basic  BasicConfig  `yaml:"basic" validate:"-"`
}

// OAuth2Config is the client registration used for the client credentials
// grant.
type OAuth2Config struct {
	ClientID     string   `yaml:"client_id" env:"CLIENT_ID" usage:"OAuth2 client id" validate:"required"`
	ClientSecret string   `yaml:"client_secret" env:"CLIENT_SECRET" usage:"OAuth2 client secret" validate:"required"`
	TokenURL     string   `yaml:"token_url" env:"TOKEN_URL" usage:"OAuth2 token endpoint" validate:"required,url"`
	Scopes       []string `yaml:"scopes" default:"openid" usage:"OAuth2 scopes"`
}

// BasicConfig holds static credentials for the catalogue service.
type BasicConfig struct {
	Username string `yaml:"username" usage:"Catalogue basic auth username" validate:"required"`
	Password string `yaml:"password" usage:"Catalogue basic auth password"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `yaml:"readiness_delay" env:"READINESS_DELAY" default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files
// and flags, applies platform-specific defaults and validates the result.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "MANAGER",
		Files:     []string{"config.yaml", "/etc/catalogue-manager/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, acfg)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the platform-provided PORT variable (Railway,
// Render, etc.) to the listen address.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks field constraints, including the credentials required by
// the selected auth mode, and parses the manager entries.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	switch c.Auth.Mode {
	case AuthOAuth2:
		if err := v.Struct(c.Auth.OAuth2); err != nil {
			return errors.Wrap(err, "invalid oauth2 config")
		}
	case AuthBasic:
		if err := v.Struct(c.Auth.Basic); err != nil {
			return errors.Wrap(err, "invalid basic auth config")
		}
	}
	if _, err := c.ManagerList(); err != nil {
		return errors.Wrap(err, "invalid managers")
	}
	return nil
}

// ManagerList parses Managers.
func (c *Config) ManagerList() ([]auth.Manager, error) {
	managers := make([]auth.Manager, 0, len(c.Managers))
	for _, entry := range c.Managers {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("manager entry %q: want username:bcrypt_hash[:ROLE+ROLE]", redact(entry))
		}
		roles := []string{auth.RoleManager}
		if len(parts) == 3 && parts[2] != "" {
			roles = strings.Split(parts[2], "+")
		}
		managers = append(managers, auth.Manager{
			Username:     parts[0],
			PasswordHash: parts[1],
			Roles:        roles,
		})
	}
	return managers, nil
}

// redact keeps only the username of a manager entry.
func redact(entry string) string {
	if i := strings.IndexByte(entry, ':'); i >= 0 {
		return entry[:i] + ":***"
	}
	return entry
}

// CredentialsProvider builds the provider for the configured auth mode.
// tokenClient is used to reach the OAuth2 token endpoint.
func (c *Config) CredentialsProvider(ctx context.Context, tokenClient *http.Client) (credentials.Provider, error) {
	switch c.Auth.Mode {
	case AuthOAuth2:
		return credentials.NewClientCredentials(ctx, credentials.ClientRegistration{
			ClientID:     c.Auth.OAuth2.ClientID,
			ClientSecret: c.Auth.OAuth2.ClientSecret,
			TokenURL:     c.Auth.OAuth2.TokenURL,
			Scopes:       c.Auth.OAuth2.Scopes,
		}, tokenClient), nil
	case AuthBasic:
		return credentials.Basic{
			Username: c.Auth.Basic.Username,
			Password: c.Auth.Basic.Password,
		}, nil
	case AuthNone:
		return credentials.None{}, nil
	default:
		return nil, errors.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
}
