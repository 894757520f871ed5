// Package config declares the provider's flag surface and resolves it into a
// validated runtime configuration. Every flag has an ORD_PROVIDER_* env
// fallback; an optional YAML file supplies values for flags set neither on
// the command line nor in the environment.
package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

// Source selects where content comes from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceGitHub Source = "github"
)

// Environment variables read outside the flag surface. Secrets stay out of
// argv so they never show up in process listings.
const (
	EnvBasicAuth     = "BASIC_AUTH"
	EnvWebhookSecret = "WEBHOOK_SECRET"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
	EnvVCAP          = "VCAP_APPLICATION"
)

// CLI is the kong flag grammar. The provider is a single serve command, so
// the flags sit at the root.
type CLI struct {
	BaseURL               string   `name:"base-url" env:"ORD_PROVIDER_BASE_URL" help:"Public base URL of this provider (mandatory unless discoverable from VCAP_APPLICATION)."`
	SourceType            string   `name:"source-type" env:"ORD_PROVIDER_SOURCE_TYPE" enum:"local,github" default:"github" help:"Content source: local directory or GitHub repository."`
	Directory             string   `name:"directory" env:"ORD_PROVIDER_DIRECTORY" help:"Local mode: content directory. GitHub mode: sub-path within the repository."`
	DocumentsSubdirectory string   `name:"documents-subdirectory" env:"ORD_PROVIDER_DOCUMENTS_SUBDIRECTORY" default:"documents" help:"Directory holding the ORD documents, relative to the content root."`
	Auth                  []string `name:"auth" env:"ORD_PROVIDER_AUTH" default:"open" help:"Authentication methods: open, basic, cf-mtls. Open is exclusive."`

	Host string `name:"host" env:"ORD_PROVIDER_HOST" default:"0.0.0.0" help:"Listen host."`
	Port int    `name:"port" env:"ORD_PROVIDER_PORT" default:"8080" help:"Listen port."`

	GithubAPIURL     string `name:"github-api-url" env:"ORD_PROVIDER_GITHUB_API_URL" help:"GitHub API root, e.g. https://api.github.com."`
	GithubRepository string `name:"github-repository" env:"ORD_PROVIDER_GITHUB_REPOSITORY" help:"Repository in owner/name form."`
	GithubBranch     string `name:"github-branch" env:"ORD_PROVIDER_GITHUB_BRANCH" default:"main" help:"Branch to serve content from."`
	GithubToken      string `name:"github-token" env:"ORD_PROVIDER_GITHUB_TOKEN" help:"Token for private repositories."`

	DataDir                string   `name:"data-dir" env:"ORD_PROVIDER_DATA_DIR" default:"./data" help:"Directory for snapshots, staging and update history."`
	UpdateDelay            int      `name:"update-delay" env:"ORD_PROVIDER_UPDATE_DELAY" default:"30" help:"Webhook cooldown in seconds."`
	StatusDashboardEnabled bool     `name:"status-dashboard-enabled" env:"ORD_PROVIDER_STATUS_DASHBOARD_ENABLED" default:"true" negatable:"" help:"Serve the HTML status page on /status."`
	CORS                   []string `name:"cors" env:"ORD_PROVIDER_CORS" help:"Allowed CORS origins."`
	Config                 string   `name:"config" env:"ORD_PROVIDER_CONFIG" help:"Optional YAML file pre-filling flags not set on the command line or environment." type:"existingfile" short:"c"`
	NATSURL                string   `name:"nats-url" env:"NATS_URL" help:"Optional NATS server URL for update event publishing."`

	MTLSTrustFile string   `name:"mtls-trust-file" env:"ORD_PROVIDER_MTLS_TRUST_FILE" help:"YAML file with trusted certificate subjects for cf-mtls."`
	MTLSTrustURL  []string `name:"mtls-trust-url" env:"ORD_PROVIDER_MTLS_TRUST_URL" help:"HTTPS endpoints returning trusted certificate subjects for cf-mtls."`
}

// GitHub holds the remote source coordinates.
type GitHub struct {
	APIURL     string
	Repository string
	Branch     string
	Token      string
}

// Config is the resolved and validated runtime configuration.
type Config struct {
	BaseURL               string
	SourceType            Source
	Directory             string
	DocumentsSubdirectory string
	AuthMethods           []ord.AuthMethod
	Host                  string
	Port                  int
	GitHub                GitHub
	DataDir               string
	UpdateDelay           time.Duration
	DashboardEnabled      bool
	AllowedOrigins        []string
	NATSURL               string
	MTLSTrustFile         string
	MTLSTrustURLs         []string

	// From the environment, never from flags.
	BasicUsers    map[string]string
	WebhookSecret string
	LogLevel      string
	LogJSON       bool
}

// Resolve turns parsed flags plus process environment into a Config and
// validates it. The first violated rule is returned; validation order is
// stable so operators see the same error for the same mistake.
func Resolve(cli *CLI) (*Config, error) {
	cfg := &Config{
		BaseURL:               cli.BaseURL,
		SourceType:            Source(cli.SourceType),
		Directory:             cli.Directory,
		DocumentsSubdirectory: strings.Trim(cli.DocumentsSubdirectory, "/"),
		Host:                  cli.Host,
		Port:                  cli.Port,
		GitHub: GitHub{
			APIURL:     strings.TrimSuffix(cli.GithubAPIURL, "/"),
			Repository: cli.GithubRepository,
			Branch:     cli.GithubBranch,
			Token:      cli.GithubToken,
		},
		DataDir:          cli.DataDir,
		UpdateDelay:      time.Duration(cli.UpdateDelay) * time.Second,
		DashboardEnabled: cli.StatusDashboardEnabled,
		AllowedOrigins:   cli.CORS,
		NATSURL:          cli.NATSURL,
		MTLSTrustFile:    cli.MTLSTrustFile,
		MTLSTrustURLs:    cli.MTLSTrustURL,
		WebhookSecret:    os.Getenv(EnvWebhookSecret),
		LogLevel:         os.Getenv(EnvLogLevel),
		LogJSON:          strings.EqualFold(os.Getenv(EnvLogFormat), "json") || os.Getenv(EnvVCAP) != "",
	}

	methods, err := parseAuthMethods(cli.Auth)
	if err != nil {
		return nil, err
	}
	cfg.AuthMethods = methods

	if raw := os.Getenv(EnvBasicAuth); raw != "" {
		users, uerr := ParseBasicAuthUsers(raw)
		if uerr != nil {
			return nil, uerr
		}
		cfg.BasicUsers = users
	}

	if cfg.BaseURL == "" {
		if discovered := BaseURLFromVCAP(os.Getenv(EnvVCAP)); discovered != "" {
			cfg.BaseURL = discovered
		}
	}

	if verr := cfg.validate(); verr != nil {
		return nil, verr
	}
	return cfg, nil
}

// parseAuthMethods normalizes the --auth list. Kong already splits on commas;
// entries are trimmed and lowercased here so env values with spaces work.
func parseAuthMethods(raw []string) ([]ord.AuthMethod, error) {
	methods := make([]ord.AuthMethod, 0, len(raw))
	for _, entry := range raw {
		m := ord.AuthMethod(strings.ToLower(strings.TrimSpace(entry)))
		switch m {
		case "":
			continue
		case ord.AuthMethodOpen, ord.AuthMethodBasic, ord.AuthMethodCFMTLS:
			methods = append(methods, m)
		default:
			return nil, ferrors.ConfigError("unknown auth method").
				WithTarget(string(m)).
				WithDetail("allowed_values", "open, basic, cf-mtls").
				Build()
		}
	}
	if len(methods) == 0 {
		methods = []ord.AuthMethod{ord.AuthMethodOpen}
	}
	return methods, nil
}

// ParseBasicAuthUsers decodes the BASIC_AUTH JSON object mapping user names
// to bcrypt hashes.
func ParseBasicAuthUsers(raw string) (map[string]string, error) {
	var users map[string]string
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, ferrors.ConfigError("BASIC_AUTH is not a valid JSON object").Build()
	}
	for user, hash := range users {
		if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") && !strings.HasPrefix(hash, "$2y$") {
			return nil, ferrors.ConfigError("BASIC_AUTH password is not a bcrypt hash").
				WithTarget(user).Build()
		}
	}
	return users, nil
}

// HasAuthMethod reports whether the method is configured.
func (c *Config) HasAuthMethod(m ord.AuthMethod) bool {
	for _, existing := range c.AuthMethods {
		if existing == m {
			return true
		}
	}
	return false
}

// vcapApplication is the subset of the Cloud Foundry VCAP_APPLICATION
// document the provider reads.
type vcapApplication struct {
	ApplicationURIs []string `json:"application_uris"`
}

// BaseURLFromVCAP derives the public base URL from a Cloud Foundry
// VCAP_APPLICATION value: https:// plus the first application URI. Returns
// "" when the document is absent or carries no URIs.
func BaseURLFromVCAP(raw string) string {
	if raw == "" {
		return ""
	}
	var vcap vcapApplication
	if err := json.Unmarshal([]byte(raw), &vcap); err != nil {
		return ""
	}
	if len(vcap.ApplicationURIs) == 0 {
		return ""
	}
	uri := strings.TrimSuffix(strings.TrimSpace(vcap.ApplicationURIs[0]), "/")
	if uri == "" {
		return ""
	}
	return "https://" + uri
}
