package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultReleaseAPI is the GitHub API base used by ReleaseClient.
const DefaultReleaseAPI = "https://api.github.com"

// ReleaseClient looks up upstream release tags. It is only used by build
// tooling; runtime flows always take a pinned version.
type ReleaseClient struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewReleaseClient creates a release client. An empty baseURL uses
// DefaultReleaseAPI.
func NewReleaseClient(baseURL, token string) *ReleaseClient {
	if baseURL == "" {
		baseURL = DefaultReleaseAPI
	}
	return &ReleaseClient{
		client:  &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Latest returns the tag of the newest release of repo ("owner/name"),
// without a leading "v".
func (r *ReleaseClient) Latest(ctx context.Context, repo string) (string, error) {
	if repo == "" || strings.Count(repo, "/") != 1 {
		return "", fmt.Errorf("invalid repository %q: want owner/name", repo)
	}

	url := fmt.Sprintf("%s/repos/%s/releases/latest", r.baseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", transportErr("create request for %s: %v", url, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", transportErr("GET %s: unexpected status code: %d", url, resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&release); err != nil {
		return "", transportErr("decode release for %s: %v", repo, err)
	}
	if release.TagName == "" {
		return "", transportErr("release for %s has no tag", repo)
	}

	return strings.TrimPrefix(release.TagName, "v"), nil
}
