package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

func TestParseRepositoryURL(t *testing.T) {
	tests := []struct {
		url     string
		host    string
		owner   string
		repo    string
		wantErr bool
	}{
		{url: "https://github.com/acme/ord-content", host: "github.com", owner: "acme", repo: "ord-content"},
		{url: "https://github.com/acme/ord-content.git", host: "github.com", owner: "acme", repo: "ord-content"},
		{url: "https://github.example.corp/tools/metadata.git", host: "github.example.corp", owner: "tools", repo: "metadata"},
		{url: "git@github.com:acme/ord-content.git", host: "github.com", owner: "acme", repo: "ord-content"},
		{url: "https://github.com/acme", wantErr: true},
		{url: "not a url", wantErr: true},
		{url: "git@github.com", wantErr: true},
	}

	for _, tt := range tests {
		host, owner, repo, err := ParseRepositoryURL(tt.url)
		if tt.wantErr {
			require.Error(t, err, "url %s", tt.url)
			continue
		}
		require.NoError(t, err, "url %s", tt.url)
		require.Equal(t, tt.host, host)
		require.Equal(t, tt.owner, owner)
		require.Equal(t, tt.repo, repo)
	}
}

func TestCloneURL(t *testing.T) {
	tests := []struct {
		apiURL string
		want   string
	}{
		{apiURL: "https://api.github.com", want: "https://github.com/acme/ord-content.git"},
		{apiURL: "https://api.github.com/", want: "https://github.com/acme/ord-content.git"},
		{apiURL: "https://github.example.corp/api/v3", want: "https://github.example.corp/acme/ord-content.git"},
		{apiURL: "https://github.example.corp", want: "https://github.example.corp/acme/ord-content.git"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CloneURL(tt.apiURL, "acme/ord-content"), "api url %s", tt.apiURL)
	}
}

func TestNewClientResolvesAPIEndpoint(t *testing.T) {
	c, err := NewClient("https://github.com/acme/ord-content.git", "tok")
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com", c.apiURL)
	require.Equal(t, "acme/ord-content", c.FullName())

	c, err = NewClient("https://github.example.corp/acme/ord-content.git", "tok")
	require.NoError(t, err)
	require.Equal(t, "https://github.example.corp/api/v3", c.apiURL)
}

func TestBranch(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "main",
			"commit": {
				"sha": "abc123",
				"commit": {"tree": {"sha": "tree456"}}
			}
		}`))
	}))
	defer srv.Close()

	c, err := NewClient("https://github.com/acme/ord-content.git", "tok")
	require.NoError(t, err)
	c.WithAPIURL(srv.URL)

	info, err := c.Branch(context.Background(), "main")
	require.NoError(t, err)
	require.Equal(t, "abc123", info.CommitSHA)
	require.Equal(t, "tree456", info.TreeSHA)
	require.Equal(t, "/repos/acme/ord-content/branches/main", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)
}

func TestBranchErrorClassification(t *testing.T) {
	tests := []struct {
		status   int
		category ferrors.ErrorCategory
	}{
		{http.StatusUnauthorized, ferrors.CategoryGitHubAccess},
		{http.StatusForbidden, ferrors.CategoryGitHubAccess},
		{http.StatusNotFound, ferrors.CategoryGitHubDirNotFound},
		{http.StatusBadGateway, ferrors.CategoryGitHubNetwork},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c, err := NewClient("https://github.com/acme/ord-content.git", "tok")
		require.NoError(t, err)
		c.WithAPIURL(srv.URL)

		_, err = c.Branch(context.Background(), "main")
		require.Error(t, err, "status %d", tt.status)
		require.True(t, ferrors.HasCategory(err, tt.category),
			"status %d should map to %s, got %v", tt.status, tt.category, err)
		srv.Close()
	}
}

func TestBranchNetworkErrorIsRetryable(t *testing.T) {
	c, err := NewClient("https://github.com/acme/ord-content.git", "tok")
	require.NoError(t, err)
	// Nothing listens here.
	c.WithAPIURL("http://127.0.0.1:1")

	_, err = c.Branch(context.Background(), "main")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryGitHubNetwork))

	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.True(t, classified.CanRetry())
}
