// Package integration exercises the assembled provider end to end: a real
// daemon with a real HTTP listener, and the content update pipeline against
// real git repositories.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"git.home.luguber.info/inful/ordprovider/internal/config"
	"git.home.luguber.info/inful/ordprovider/internal/daemon"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

// ordDocument renders a minimal valid ORD document. Extra top-level
// properties are merged in.
func ordDocument(t *testing.T, extra map[string]any) string {
	t.Helper()

	doc := map[string]any{
		"openResourceDiscovery": "1.9",
		"describedSystemInstance": map[string]any{
			"baseUrl": "https://upstream.example.com",
		},
		"apiResources": []any{},
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

// writeContentDir lays out a content root with the given files, paths
// relative to the root.
func writeContentDir(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return root
}

// providerConfig returns a local-source configuration serving contentDir on
// an ephemeral port.
func providerConfig(t *testing.T, contentDir string) *config.Config {
	t.Helper()

	return &config.Config{
		BaseURL:               "https://provider.example.com",
		SourceType:            config.SourceLocal,
		Directory:             contentDir,
		DocumentsSubdirectory: "documents",
		AuthMethods:           []ord.AuthMethod{ord.AuthMethodOpen},
		Host:                  "127.0.0.1",
		Port:                  0,
		DataDir:               t.TempDir(),
		UpdateDelay:           time.Second,
		DashboardEnabled:      true,
	}
}

// startProvider runs the daemon for the duration of the test and returns its
// base URL.
func startProvider(t *testing.T, cfg *config.Config) string {
	t.Helper()

	d, err := daemon.New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		require.NoError(t, d.Stop(stopCtx))
	})

	return "http://" + d.Addr()
}

// get issues a GET with optional headers and returns the response plus its
// fully read body.
func get(t *testing.T, base, path string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, base+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

// getJSON fetches path and decodes the body into out, requiring a 200.
func getJSON(t *testing.T, base, path string, headers map[string]string, out any) {
	t.Helper()

	resp, body := get(t, base, path, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET %s: %s", path, body)
	require.NoError(t, json.Unmarshal(body, out))
}

// bcryptHash hashes a password at the cheapest cost; tests only need the
// shape, not the work factor.
func bcryptHash(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

// postJSON issues a POST with a JSON body and returns the response plus the
// read body.
func postJSON(t *testing.T, base, path string, headers map[string]string, payload string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, base+path, strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

// errorEnvelope mirrors the JSON error body the provider writes.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Target  string `json:"target"`
	} `json:"error"`
}

func decodeError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(body, &env), "error body: %s", body)
	return env
}
