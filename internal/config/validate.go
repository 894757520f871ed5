package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

// baseURLPattern admits http(s), a host, an optional port, and plain path
// segments. Trailing slashes and query strings are rejected on purpose: every
// document URL is built by joining onto this value.
var baseURLPattern = regexp.MustCompile(`^http[s]?://[^:/\s]+(:[0-9]+)?(/[a-zA-Z0-9-._~]+)*$`)

// validate applies the startup rules in a stable order and returns the first
// violation as a fatal config error.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return ferrors.ConfigError("base URL is required").
			WithTarget("base-url").
			WithDetail("hint", "set --base-url or ORD_PROVIDER_BASE_URL, or run with VCAP_APPLICATION").
			Fatal().Build()
	}
	if !baseURLPattern.MatchString(c.BaseURL) {
		return ferrors.ConfigError("base URL is not valid").
			WithTarget(c.BaseURL).
			WithDetail("pattern", baseURLPattern.String()).
			Fatal().Build()
	}

	if c.HasAuthMethod(ord.AuthMethodOpen) && len(c.AuthMethods) > 1 {
		return ferrors.ConfigError("open authentication cannot be combined with other methods").
			WithTarget("auth").Fatal().Build()
	}
	if c.HasAuthMethod(ord.AuthMethodBasic) && len(c.BasicUsers) == 0 {
		return ferrors.ConfigError("basic authentication requires BASIC_AUTH").
			WithTarget(EnvBasicAuth).
			WithDetail("format", `{"user": "<bcrypt hash>"}`).
			Fatal().Build()
	}
	if c.HasAuthMethod(ord.AuthMethodCFMTLS) && c.MTLSTrustFile == "" && len(c.MTLSTrustURLs) == 0 {
		return ferrors.ConfigError("cf-mtls requires a trust source").
			WithTarget("auth").
			WithDetail("hint", "set --mtls-trust-file or --mtls-trust-url").
			Fatal().Build()
	}

	switch c.SourceType {
	case SourceGitHub:
		if c.GitHub.APIURL == "" {
			return ferrors.ConfigError("github source requires --github-api-url").
				WithTarget("github-api-url").Fatal().Build()
		}
		if !strings.HasPrefix(c.GitHub.APIURL, "http://") && !strings.HasPrefix(c.GitHub.APIURL, "https://") {
			return ferrors.ConfigError("github API URL must be http(s)").
				WithTarget(c.GitHub.APIURL).Fatal().Build()
		}
		if c.GitHub.Repository == "" {
			return ferrors.ConfigError("github source requires --github-repository").
				WithTarget("github-repository").Fatal().Build()
		}
		if strings.Count(c.GitHub.Repository, "/") != 1 {
			return ferrors.ConfigError("github repository must be in owner/name form").
				WithTarget(c.GitHub.Repository).Fatal().Build()
		}
	case SourceLocal:
		if c.Directory == "" {
			return ferrors.ConfigError("local source requires --directory").
				WithTarget("directory").Fatal().Build()
		}
		info, err := os.Stat(c.Directory)
		if err != nil || !info.IsDir() {
			return ferrors.LocalDirectoryError("local content directory does not exist").
				WithTarget(c.Directory).Fatal().Build()
		}
	default:
		return ferrors.ConfigError("source type must be local or github").
			WithTarget(string(c.SourceType)).Fatal().Build()
	}

	if c.Port < 1 || c.Port > 65535 {
		return ferrors.ConfigError(fmt.Sprintf("port %d out of range", c.Port)).
			WithTarget("port").Fatal().Build()
	}
	if c.UpdateDelay < 0 {
		return ferrors.ConfigError("update delay cannot be negative").
			WithTarget("update-delay").Fatal().Build()
	}
	return nil
}
