// Package github holds the small GitHub REST surface the provider needs:
// branch lookups for change detection and webhook signature validation.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

// Client is a minimal GitHub REST API client scoped to one repository.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	owner      string
	repo       string
}

// NewClient builds a client for the repository behind cloneURL. For
// github.com the public API endpoint is used; any other host is assumed to
// be a GitHub Enterprise instance with the <host>/api/v3 layout.
func NewClient(cloneURL, token string) (*Client, error) {
	host, owner, repo, err := ParseRepositoryURL(cloneURL)
	if err != nil {
		return nil, err
	}

	apiURL := "https://api.github.com"
	if host != "github.com" {
		apiURL = "https://" + host + "/api/v3"
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     apiURL,
		token:      token,
		owner:      owner,
		repo:       repo,
	}, nil
}

// WithAPIURL overrides the resolved API endpoint.
func (c *Client) WithAPIURL(apiURL string) *Client {
	c.apiURL = strings.TrimSuffix(apiURL, "/")
	return c
}

// CloneURL derives the https clone URL for an owner/name repository from a
// GitHub API endpoint: the public API maps to github.com, an Enterprise
// <host>/api/v3 endpoint maps to its host.
func CloneURL(apiURL, fullName string) string {
	base := strings.TrimSuffix(apiURL, "/")
	if u, err := url.Parse(base); err == nil && u.Hostname() == "api.github.com" {
		return "https://github.com/" + fullName + ".git"
	}
	base = strings.TrimSuffix(base, "/api/v3")
	return base + "/" + fullName + ".git"
}

// FullName returns the owner/name pair identifying the repository.
func (c *Client) FullName() string {
	return c.owner + "/" + c.repo
}

// ParseRepositoryURL splits a git clone URL into host, owner and repository
// name. Both https and scp-like ssh forms are accepted.
func ParseRepositoryURL(cloneURL string) (host, owner, repo string, err error) {
	s := strings.TrimSuffix(cloneURL, ".git")

	if rest, ok := strings.CutPrefix(s, "git@"); ok {
		hostPart, pathPart, found := strings.Cut(rest, ":")
		if !found {
			return "", "", "", fmt.Errorf("unsupported repository url: %s", cloneURL)
		}
		parts := strings.Split(strings.Trim(pathPart, "/"), "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", "", "", fmt.Errorf("repository url has no owner/name: %s", cloneURL)
		}
		return hostPart, parts[0], parts[1], nil
	}

	u, perr := url.Parse(s)
	if perr != nil || u.Host == "" {
		return "", "", "", fmt.Errorf("unsupported repository url: %s", cloneURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("repository url has no owner/name: %s", cloneURL)
	}
	return u.Hostname(), parts[0], parts[1], nil
}

// BranchInfo carries the change-detection relevant part of a branch.
type BranchInfo struct {
	CommitSHA string
	TreeSHA   string
}

type branchResponse struct {
	Commit struct {
		SHA    string `json:"sha"`
		Commit struct {
			Tree struct {
				SHA string `json:"sha"`
			} `json:"tree"`
		} `json:"commit"`
	} `json:"commit"`
}

// Branch fetches the head commit and root tree SHA of the named branch. The
// tree SHA identifies content irrespective of commit metadata, which keeps
// polling quiet across history rewrites that do not change files.
func (c *Client) Branch(ctx context.Context, name string) (*BranchInfo, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/branches/%s", c.owner, c.repo, url.PathEscape(name))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryGitHubNetwork, "github api unreachable").
			Retryable().WithTarget(c.FullName()).Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ferrors.GitHubAccessError("github api denied access").
			WithTarget(c.FullName()).Build()
	case resp.StatusCode == http.StatusNotFound:
		return nil, ferrors.GitHubDirNotFoundError("branch not found").
			WithTarget(name).Build()
	case resp.StatusCode >= 500:
		return nil, ferrors.GitHubNetworkError("github api error: " + resp.Status).
			WithTarget(c.FullName()).Build()
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("github api error: %s", resp.Status)
	}

	var body branchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding branch response: %w", err)
	}
	return &BranchInfo{
		CommitSHA: body.Commit.SHA,
		TreeSHA:   body.Commit.Commit.Tree.SHA,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "ord-provider")
	return req, nil
}
