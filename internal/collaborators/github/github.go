// Package github implements project discovery and solution relay against the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"agent-orchestration-service/internal/collaborators/httpclient"
	"agent-orchestration-service/internal/selection"
)

// Client covers the two GitHub calls the agents make.
type Client struct {
	baseURL string
	perPage int
	http    *httpclient.Client
}

func NewClient(baseURL string, perPage int, timeout time.Duration) (*Client, error) {
	hc, err := httpclient.New(timeout)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if perPage <= 0 {
		perPage = 10
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), perPage: perPage, http: hc}, nil
}

func (c *Client) headers(token string) map[string]string {
	h := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if token != "" {
		h["Authorization"] = "token " + token
	}
	return h
}

type searchResponse struct {
	Items []struct {
		Name            string `json:"name"`
		FullName        string `json:"full_name"`
		Description     string `json:"description"`
		Language        string `json:"language"`
		StargazersCount int    `json:"stargazers_count"`
		ForksCount      int    `json:"forks_count"`
		OpenIssuesCount int    `json:"open_issues_count"`
		HTMLURL         string `json:"html_url"`
	} `json:"items"`
}

// Search runs one repository search, most recently updated first.
func (c *Client) Search(ctx context.Context, token, query string) ([]selection.Candidate, error) {
	endpoint := fmt.Sprintf("%s/search/repositories?q=%s&sort=updated&per_page=%d",
		c.baseURL, url.QueryEscape(query), c.perPage)

	var resp searchResponse
	err := c.http.Do(ctx, "github repository search", httpclient.Request{
		Method:  consts.MethodGet,
		URL:     endpoint,
		Headers: c.headers(token),
		Out:     &resp,
	})
	if err != nil {
		return nil, err
	}
	out := make([]selection.Candidate, 0, len(resp.Items))
	for _, it := range resp.Items {
		lang := it.Language
		if lang == "" {
			lang = "Unknown"
		}
		out = append(out, selection.Candidate{
			Name:        it.Name,
			FullName:    it.FullName,
			Description: it.Description,
			Language:    lang,
			Stars:       it.StargazersCount,
			Forks:       it.ForksCount,
			OpenIssues:  it.OpenIssuesCount,
			URL:         it.HTMLURL,
		})
	}
	return out, nil
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
}

type putContentsResponse struct {
	Content struct {
		Path    string `json:"path"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
}

// Publish writes a file into owner/repo through the contents API and returns its path.
func (c *Client) Publish(ctx context.Context, token, owner, repo, path, message, content string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), escapePath(path))

	var resp putContentsResponse
	err := c.http.Do(ctx, "github publish file", httpclient.Request{
		Method:  consts.MethodPut,
		URL:     endpoint,
		Headers: c.headers(token),
		Body: putContentsRequest{
			Message: message,
			Content: base64.StdEncoding.EncodeToString([]byte(content)),
		},
		Out: &resp,
	})
	if err != nil {
		return "", err
	}
	if resp.Content.Path != "" {
		return resp.Content.Path, nil
	}
	return path, nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
