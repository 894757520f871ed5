package ord

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func fqnFixture(t *testing.T) FQNMap {
	t.Helper()
	doc, err := ParseDocument([]byte(`{
		"openResourceDiscovery": "1.6",
		"apiResources": [{
			"ordId": "urn:apiResource:astronomy:v1",
			"resourceDefinitions": [
				{"type": "openapi-v3", "url": "/urn_apiResource_astronomy_v1/openapi-v3.json"},
				{"type": "openapi-v3", "url": "https://example.com/remote.json"}
			]
		}],
		"eventResources": [{
			"ordId": "urn:eventResource:observations:v1",
			"resourceDefinitions": [
				{"type": "asyncapi-v2", "url": "../urn_eventResource_observations_v1/asyncapi.json"}
			]
		}]
	}`))
	require.NoError(t, err)
	return BuildFQNMap(map[string]Document{"documents/example.json": doc})
}

func TestBuildFQNMap(t *testing.T) {
	m := fqnFixture(t)

	require.Len(t, m, 2)
	require.Equal(t, []FQNEntry{{
		FileName: "openapi-v3.json",
		FilePath: "urn_apiResource_astronomy_v1/openapi-v3.json",
	}}, m["urn:apiResource:astronomy:v1"])
	require.Equal(t, []FQNEntry{{
		FileName: "asyncapi.json",
		FilePath: "urn_eventResource_observations_v1/asyncapi.json",
	}}, m["urn:eventResource:observations:v1"])
}

func TestFQNMapResolve(t *testing.T) {
	m := fqnFixture(t)

	// Canonical id.
	p, ok := m.Resolve("urn:apiResource:astronomy:v1", "openapi-v3.json")
	require.True(t, ok)
	require.Equal(t, "urn_apiResource_astronomy_v1/openapi-v3.json", p)

	// Escaped id normalizes before lookup.
	p, ok = m.Resolve("urn_apiResource_astronomy_v1", "openapi-v3.json")
	require.True(t, ok)
	require.Equal(t, "urn_apiResource_astronomy_v1/openapi-v3.json", p)

	_, ok = m.Resolve("urn:apiResource:astronomy:v1", "missing.json")
	require.False(t, ok)
	_, ok = m.Resolve("urn:apiResource:unknown:v1", "openapi-v3.json")
	require.False(t, ok)
}

// The rewritten URL and the FQN map must identify the same on-disk file.
func TestRewriteAndFQNPathsAgree(t *testing.T) {
	urls := []string{
		"/urn_apiResource_astronomy_v1/openapi-v3.json",
		"../urn_eventResource_observations_v1/asyncapi.json",
		"/schemas/shared/types.json",
		"./data.json",
	}
	for _, u := range urls {
		rewritten := RewriteResourceURL(u)
		require.True(t, strings.HasPrefix(rewritten, ServerPrefix+"/"), "rewritten %q", rewritten)

		requestPath := strings.TrimPrefix(rewritten, ServerPrefix+"/")
		// A served request resolves the escaped on-disk variant of the path.
		require.Equal(t, SnapshotRelativePath(u), EscapePathSegments(requestPath),
			"url %q: rewrite and FQN disagree", u)
	}
}

func TestSnapshotRelativePathEscapesIDSegments(t *testing.T) {
	got := SnapshotRelativePath("/urn:apiResource:astronomy:v1/openapi.json")
	require.Equal(t, "urn_apiResource_astronomy_v1/openapi.json", got)
}
