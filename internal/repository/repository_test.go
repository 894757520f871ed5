package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

const testDoc = `{"openResourceDiscovery": "1.9", "apiResources": []}`

func newTestRepo(t *testing.T, files map[string]string) *Repository {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return New(FixedRoot(root), "documents")
}

func TestListDocuments(t *testing.T) {
	repo := newTestRepo(t, map[string]string{
		"documents/b.json":       testDoc,
		"documents/a.json":       testDoc,
		"documents/sub/c.json":   testDoc,
		"documents/notes.md":     "not a document",
		"documents/.hidden.json": testDoc,
		"documents/.work/x.json": testDoc,
		"resources/openapi.json": `{"openapi": "3.0.0"}`,
	})

	docs, err := repo.ListDocuments()
	require.NoError(t, err)
	require.Equal(t, []string{
		"documents/a.json",
		"documents/b.json",
		"documents/sub/c.json",
	}, docs)
}

func TestListDocumentsMissingDir(t *testing.T) {
	repo := newTestRepo(t, map[string]string{"other/a.json": testDoc})

	_, err := repo.ListDocuments()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestListDocumentsNoRoot(t *testing.T) {
	repo := New(func() (string, bool) { return "", false }, "documents")

	_, err := repo.ListDocuments()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestReadDocument(t *testing.T) {
	repo := newTestRepo(t, map[string]string{
		"documents/doc.json":    testDoc,
		"documents/broken.json": `{"no": "marker"}`,
		"documents/syntax.json": `{oops`,
	})

	doc, err := repo.ReadDocument("documents/doc.json")
	require.NoError(t, err)
	require.Equal(t, "1.9", doc.ORDVersion())

	_, err = repo.ReadDocument("documents/broken.json")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryInternal))

	_, err = repo.ReadDocument("documents/syntax.json")
	require.Error(t, err)
}

func TestReadFileEscapedVariant(t *testing.T) {
	repo := newTestRepo(t, map[string]string{
		"documents/doc.json": testDoc,
		"astronomy/urn_apiResource_astronomy_v1/openapi-v3.json": `{"openapi": "3.0.0"}`,
	})

	// Canonical id in the request path resolves to the escaped directory.
	data, err := repo.ReadFile("astronomy/urn:apiResource:astronomy:v1/openapi-v3.json")
	require.NoError(t, err)
	require.Contains(t, string(data), "openapi")

	// The literal escaped path works as well.
	data, err = repo.ReadFile("astronomy/urn_apiResource_astronomy_v1/openapi-v3.json")
	require.NoError(t, err)
	require.Contains(t, string(data), "openapi")
}

func TestReadFileNotFound(t *testing.T) {
	repo := newTestRepo(t, map[string]string{"documents/doc.json": testDoc})

	_, err := repo.ReadFile("documents/missing.json")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestReadFileRejectsEscapes(t *testing.T) {
	repo := newTestRepo(t, map[string]string{"documents/doc.json": testDoc})

	// A sibling outside the root must be unreachable.
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	for _, rel := range []string{
		"../secret.txt",
		"documents/../../secret.txt",
		"/etc/passwd",
		".git/config",
		"documents/.git/config",
		"..",
		"",
		"documents\\..\\doc.json",
	} {
		_, err := repo.ReadFile(rel)
		require.Error(t, err, "path %q must not resolve", rel)
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound),
			"path %q must surface as not found, got %v", rel, err)
	}
}

func TestReadFileDotSegmentsInsideRootStayContained(t *testing.T) {
	repo := newTestRepo(t, map[string]string{"documents/doc.json": testDoc})

	// Cleans to a path inside the root, so it resolves.
	data, err := repo.ReadFile("documents/sub/../doc.json")
	require.NoError(t, err)
	require.Contains(t, string(data), "openResourceDiscovery")
}
