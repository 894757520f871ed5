package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

func serveDocuments(t *testing.T, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	content, _ := newContentFixture(t)
	h := NewDocumentsHandler(content)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeProcessedDocument(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/documents/service", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	doc := decodeBody[map[string]any](t, rec)
	dsi, _ := doc["describedSystemInstance"].(map[string]any)
	require.NotNil(t, dsi)
	require.Equal(t, fixtureBaseURL, dsi["baseUrl"])

	resources := doc["apiResources"].([]any)
	res := resources[0].(map[string]any)
	def := res["resourceDefinitions"].([]any)[0].(map[string]any)
	require.Equal(t, ord.ServerPrefix+"/"+astronomyID+"/openapi-v3.json", def["url"])
	strategies := def["accessStrategies"].([]any)
	require.Len(t, strategies, 1)
	require.Equal(t, "open", strategies[0].(map[string]any)["type"])
}

func TestServeProcessedDocumentWithExtension(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/documents/service.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[map[string]any](t, rec)
	require.Equal(t, "1.9", doc["openResourceDiscovery"])
}

func TestServeNestedDocument(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/documents/nested/billing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[map[string]any](t, rec)
	require.Equal(t, "system-version", doc["perspective"])
}

func TestDocumentNotFound(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/documents/missing", nil)
	requireErrorCode(t, rec, http.StatusNotFound, ferrors.CodeNotFound)
}

func TestResourceDefinitionByCanonicalID(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/"+astronomyID+"/openapi-v3.json", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "3.0.0", body["openapi"])
}

func TestResourceDefinitionByEscapedID(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/"+astronomyDir+"/openapi-v3.json", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "3.0.0", body["openapi"])
}

func TestResourceDefinitionUnknownFile(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/"+astronomyID+"/missing.json", nil)
	requireErrorCode(t, rec, http.StatusNotFound, ferrors.CodeNotFound)
}

func TestRootLevelJSONReserialized(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/release-notes.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, float64(1), body["version"])
}

func TestRootLevelRawFile(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/notes.yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	require.Equal(t, "answer: 42\n", rec.Body.String())
}

func TestBrokenStoredJSONIsInternalError(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/broken.json", nil)
	requireErrorCode(t, rec, http.StatusInternalServerError, ferrors.CodeInternalServerError)
}

func TestHiddenPathsStayInvisible(t *testing.T) {
	for _, target := range []string{
		"/ord/v1/.git/config",
		"/ord/v1/documents/../../etc/passwd",
		"/ord/v1/..",
	} {
		rec := serveDocuments(t, target, nil)
		require.Equal(t, http.StatusNotFound, rec.Code, "path %s", target)
	}
}

func TestPrefixAloneIsNotFound(t *testing.T) {
	rec := serveDocuments(t, "/ord/v1/", nil)
	requireErrorCode(t, rec, http.StatusNotFound, ferrors.CodeNotFound)
}

func TestDocumentConditionalRequest(t *testing.T) {
	content, _ := newContentFixture(t)
	h := NewDocumentsHandler(content)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ord/v1/documents/service", nil))
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/ord/v1/documents/service", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	require.Equal(t, http.StatusNotModified, second.Code)
	require.Empty(t, second.Body.String())
}
