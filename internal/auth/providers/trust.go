package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

const trustFetchTimeout = 15 * time.Second

// maxTrustBody bounds remote trust list downloads.
const maxTrustBody = 1 << 20

// TrustedPair is one allowed client identity: issuer and subject must both
// match the presented certificate's DNs.
type TrustedPair struct {
	Issuer  string `yaml:"issuer" json:"issuer"`
	Subject string `yaml:"subject" json:"subject"`
}

// TrustConfig is the cf-mtls trust material: trusted (issuer, subject)
// certificate pairs and trusted root CA distinguished names.
type TrustConfig struct {
	Certificates []TrustedPair `yaml:"certificates" json:"certificates"`
	RootCAs      []string      `yaml:"rootCAs" json:"rootCAs"`
}

// IsEmpty reports whether no trust material is configured.
func (t TrustConfig) IsEmpty() bool {
	return len(t.Certificates) == 0 && len(t.RootCAs) == 0
}

// Merge combines two trust configurations.
func (t TrustConfig) Merge(other TrustConfig) TrustConfig {
	return TrustConfig{
		Certificates: append(append([]TrustedPair(nil), t.Certificates...), other.Certificates...),
		RootCAs:      append(append([]string(nil), t.RootCAs...), other.RootCAs...),
	}
}

// LoadTrustFile reads a YAML trust list. Environment variable references in
// the file are expanded before parsing.
func LoadTrustFile(path string) (TrustConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TrustConfig{}, ferrors.WrapError(err, ferrors.CategoryConfig,
			fmt.Sprintf("failed to read mTLS trust file %s", path)).Build()
	}

	expanded := os.ExpandEnv(string(data))

	var trust TrustConfig
	if err := yaml.Unmarshal([]byte(expanded), &trust); err != nil {
		return TrustConfig{}, ferrors.WrapError(err, ferrors.CategoryConfig,
			fmt.Sprintf("failed to parse mTLS trust file %s", path)).Build()
	}
	return trust, nil
}

// FetchTrust downloads a trust list from an HTTPS endpoint. The body is
// parsed as YAML, which also accepts JSON. A nil client uses
// http.DefaultClient.
func FetchTrust(ctx context.Context, client *http.Client, url string) (TrustConfig, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, trustFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TrustConfig{}, ferrors.WrapError(err, ferrors.CategoryConfig,
			fmt.Sprintf("invalid mTLS trust URL %s", url)).Build()
	}

	resp, err := client.Do(req)
	if err != nil {
		return TrustConfig{}, ferrors.WrapError(err, ferrors.CategoryConfig,
			fmt.Sprintf("failed to fetch mTLS trust list from %s", url)).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TrustConfig{}, ferrors.ConfigError(
			fmt.Sprintf("mTLS trust endpoint %s returned status %d", url, resp.StatusCode)).Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTrustBody))
	if err != nil {
		return TrustConfig{}, ferrors.WrapError(err, ferrors.CategoryConfig,
			fmt.Sprintf("failed to read mTLS trust list from %s", url)).Build()
	}

	var trust TrustConfig
	if err := yaml.Unmarshal(body, &trust); err != nil {
		return TrustConfig{}, ferrors.WrapError(err, ferrors.CategoryConfig,
			fmt.Sprintf("failed to parse mTLS trust list from %s", url)).Build()
	}
	return trust, nil
}
