package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/go-github/v60/github"
)

// GitHubSearchTool looks up public repositories so the planner can ground
// gaps like "which library handles X" in real projects.
type GitHubSearchTool struct {
	client *github.Client
}

// NewGitHubSearchTool creates the github_search_repositories tool. token
// may be empty; unauthenticated search works with tighter rate limits.
func NewGitHubSearchTool(token string, httpClient *http.Client) *GitHubSearchTool {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubSearchTool{client: client}
}

func (t *GitHubSearchTool) Definition() Definition {
	return Definition{
		Name:        "github_search_repositories",
		Description: "Search public GitHub repositories. Returns name, description, stars and URL for the top matches.",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "GitHub search query, e.g. \"sqlite fts5 language:go\"", Required: true},
			{Name: "limit", Type: TypeNumber, Description: "Max results, default 5, max 10"},
		},
	}
}

func (t *GitHubSearchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query, _ := params["query"].(string)

	limit := 5
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	if limit > 10 {
		limit = 10
	}

	result, _, err := t.client.Search.Repositories(ctx, query, &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return "", fmt.Errorf("github search: %w", err)
	}

	type repo struct {
		FullName    string `json:"full_name"`
		Description string `json:"description"`
		Stars       int    `json:"stars"`
		URL         string `json:"url"`
	}
	repos := make([]repo, 0, limit)
	for i, r := range result.Repositories {
		if i >= limit {
			break
		}
		repos = append(repos, repo{
			FullName:    r.GetFullName(),
			Description: r.GetDescription(),
			Stars:       r.GetStargazersCount(),
			URL:         r.GetHTMLURL(),
		})
	}

	out, err := json.Marshal(map[string]any{
		"total":        result.GetTotal(),
		"repositories": repos,
	})
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(out), nil
}
