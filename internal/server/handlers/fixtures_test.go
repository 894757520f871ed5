package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordprovider/internal/cache"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/repository"
)

const (
	fixtureBaseURL = "https://provider.example.com"
	astronomyID    = "sap.test:apiResource:astronomy:v1"
	astronomyDir   = "sap.test_apiResource_astronomy_v1"
)

func writeFixtureFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// newContentFixture builds a content root with two documents, one resource
// definition directory, and a couple of plain snapshot files.
func newContentFixture(t *testing.T) (*Content, string) {
	t.Helper()
	root := t.TempDir()

	writeFixtureFile(t, root, "documents/service.json", `{
		"openResourceDiscovery": "1.9",
		"apiResources": [{
			"ordId": "`+astronomyID+`",
			"resourceDefinitions": [
				{"type": "openapi-v3", "url": "../`+astronomyID+`/openapi-v3.json"}
			]
		}]
	}`)
	writeFixtureFile(t, root, "documents/nested/billing.json",
		`{"openResourceDiscovery": "1.9", "perspective": "system-version"}`)
	writeFixtureFile(t, root, astronomyDir+"/openapi-v3.json", `{"openapi": "3.0.0"}`)
	writeFixtureFile(t, root, "release-notes.json", `{"version": 1}`)
	writeFixtureFile(t, root, "notes.yaml", "answer: 42\n")
	writeFixtureFile(t, root, "broken.json", "{not json")

	repo := repository.New(repository.FixedRoot(root), "documents")
	artifactCache := cache.New(cache.Pipeline{DocumentsSubDir: "documents"})
	pctx := ord.ProcessingContext{
		BaseURL:     fixtureBaseURL,
		AuthMethods: []ord.AuthMethod{ord.AuthMethodOpen},
	}
	return NewContent(repo, artifactCache, pctx, nil), root
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// errorEnvelope mirrors the wire shape of error responses.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Target  string `json:"target"`
	} `json:"error"`
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	env := decodeBody[errorEnvelope](t, rec)
	require.Equal(t, code, env.Error.Code)
}
