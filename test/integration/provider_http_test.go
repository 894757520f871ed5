package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/server/middleware"
)

// TestDiscoveryFlow walks the protocol the way a consumer does: fetch the
// well-known configuration, then every document it advertises. Verifies:
// - document URLs resolve relative to the server
// - describedSystemInstance.baseUrl is rewritten to the provider's base URL
// - every response carries the server version header.
func TestDiscoveryFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/service.json":        ordDocument(t, nil),
		"documents/nested/catalog.json": ordDocument(t, nil),
	})
	base := startProvider(t, providerConfig(t, content))

	resp, body := get(t, base, ord.WellKnownPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.VersionHeader))

	var cfg ord.Configuration
	require.NoError(t, json.Unmarshal(body, &cfg))
	require.Equal(t, "https://provider.example.com", cfg.BaseURL)
	require.Len(t, cfg.OpenResourceDiscoveryV1.Documents, 2)

	for _, desc := range cfg.OpenResourceDiscoveryV1.Documents {
		require.Equal(t, []ord.AccessStrategy{{Type: "open"}}, desc.AccessStrategies)

		docResp, docBody := get(t, base, desc.URL, nil)
		require.Equal(t, http.StatusOK, docResp.StatusCode, "GET %s", desc.URL)
		require.NotEmpty(t, docResp.Header.Get(middleware.VersionHeader))

		var doc map[string]any
		require.NoError(t, json.Unmarshal(docBody, &doc))
		dsi, ok := doc["describedSystemInstance"].(map[string]any)
		require.True(t, ok, "document %s lacks describedSystemInstance", desc.URL)
		require.Equal(t, "https://provider.example.com", dsi["baseUrl"])
	}
}

// TestPerspectiveFilter verifies the well-known endpoint filters its document
// list by the perspective query parameter and rejects unknown values.
func TestPerspectiveFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/instance.json": ordDocument(t, nil),
		"documents/version.json":  ordDocument(t, map[string]any{"perspective": ord.PerspectiveSystemVersion}),
	})
	base := startProvider(t, providerConfig(t, content))

	var all ord.Configuration
	getJSON(t, base, ord.WellKnownPath, nil, &all)
	require.Len(t, all.OpenResourceDiscoveryV1.Documents, 2)

	var filtered ord.Configuration
	getJSON(t, base, ord.WellKnownPath+"?perspective="+ord.PerspectiveSystemVersion, nil, &filtered)
	require.Len(t, filtered.OpenResourceDiscoveryV1.Documents, 1)
	require.Equal(t, ord.PerspectiveSystemVersion, filtered.OpenResourceDiscoveryV1.Documents[0].Perspective)

	resp, body := get(t, base, ord.WellKnownPath+"?perspective=sideways", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeError(t, body)
	require.Equal(t, "sideways", env.Error.Target)
}

// TestBasicAuthProtectsDocuments verifies the authentication split: documents
// under /ord/v1 need credentials while the well-known endpoint and the
// operational routes stay reachable.
func TestBasicAuthProtectsDocuments(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/service.json": ordDocument(t, nil),
	})
	cfg := providerConfig(t, content)
	cfg.AuthMethods = []ord.AuthMethod{ord.AuthMethodBasic}
	cfg.BasicUsers = map[string]string{"reader": bcryptHash(t, "s3cret")}
	base := startProvider(t, cfg)

	docPath := ord.ServerPrefix + "/documents/service"

	resp, _ := get(t, base, docPath, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "no credentials")

	req, err := http.NewRequest(http.MethodGet, base+docPath, nil)
	require.NoError(t, err)
	req.SetBasicAuth("reader", "wrong")
	wrongResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, wrongResp.Body.Close())
	require.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode, "wrong password")

	req, err = http.NewRequest(http.MethodGet, base+docPath, nil)
	require.NoError(t, err)
	req.SetBasicAuth("reader", "s3cret")
	okResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, okResp.Body.Close())
	require.Equal(t, http.StatusOK, okResp.StatusCode, "valid credentials")

	// The discovery entry point and operational routes never require auth.
	for _, path := range []string{ord.WellKnownPath, "/health", "/api/v1/status"} {
		open, _ := get(t, base, path, nil)
		require.Equal(t, http.StatusOK, open.StatusCode, "GET %s without credentials", path)
	}

	var cfgResp ord.Configuration
	getJSON(t, base, ord.WellKnownPath, nil, &cfgResp)
	require.Equal(t, []ord.AccessStrategy{{Type: "basic-auth"}},
		cfgResp.OpenResourceDiscoveryV1.Documents[0].AccessStrategies)
}

// TestPathContainment verifies that requests can never read outside the
// content root: traversal sequences and hidden path segments both end in 404.
func TestPathContainment(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/service.json": ordDocument(t, nil),
		".secrets/token":         "do-not-serve",
	})
	base := startProvider(t, providerConfig(t, content))

	paths := []string{
		ord.ServerPrefix + "/documents/..%2f..%2fetc%2fpasswd",
		ord.ServerPrefix + "/..%2f..%2f..%2fetc%2fpasswd",
		ord.ServerPrefix + "/.secrets/token",
		ord.ServerPrefix + "/documents/.hidden",
	}
	for _, p := range paths {
		resp, body := get(t, base, p, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "GET %s: %s", p, body)
		env := decodeError(t, body)
		require.NotEmpty(t, env.Error.Code, "GET %s should answer with the error envelope", p)
	}
}

// TestConditionalRequests verifies the ETag round trip: a 200 carries a
// strong ETag, and replaying it via If-None-Match yields 304 with no body.
func TestConditionalRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/service.json": ordDocument(t, nil),
	})
	base := startProvider(t, providerConfig(t, content))

	for _, path := range []string{ord.WellKnownPath, ord.ServerPrefix + "/documents/service"} {
		resp, _ := get(t, base, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		etag := resp.Header.Get("ETag")
		require.NotEmpty(t, etag, "GET %s must carry an ETag", path)

		notModified, body := get(t, base, path, map[string]string{"If-None-Match": etag})
		require.Equal(t, http.StatusNotModified, notModified.StatusCode, "GET %s with If-None-Match", path)
		require.Empty(t, body)

		again, _ := get(t, base, path, map[string]string{"If-None-Match": `"different"`})
		require.Equal(t, http.StatusOK, again.StatusCode)
		require.Equal(t, etag, again.Header.Get("ETag"), "ETag must be stable for unchanged content")
	}
}

// TestRootRedirect verifies GET / points humans at the dashboard when it is
// enabled and at the well-known endpoint otherwise.
func TestRootRedirect(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/service.json": ordDocument(t, nil),
	})

	noFollow := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	withDashboard := startProvider(t, providerConfig(t, content))
	resp, err := noFollow.Get(withDashboard + "/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/status", resp.Header.Get("Location"))

	cfg := providerConfig(t, content)
	cfg.DashboardEnabled = false
	withoutDashboard := startProvider(t, cfg)
	resp, err = noFollow.Get(withoutDashboard + "/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, ord.WellKnownPath, resp.Header.Get("Location"))
}

// TestUnknownRouteAnswersJSON verifies unmatched paths get the JSON error
// envelope instead of the default plain-text 404.
func TestUnknownRouteAnswersJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	content := writeContentDir(t, map[string]string{
		"documents/service.json": ordDocument(t, nil),
	})
	base := startProvider(t, providerConfig(t, content))

	resp, body := get(t, base, "/no/such/route", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	env := decodeError(t, body)
	require.Equal(t, "/no/such/route", env.Error.Target)
}
