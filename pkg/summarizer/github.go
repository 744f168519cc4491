/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v75/github"
)

// PRVerifier confirms that a pull request reported by the agent exists.
type PRVerifier interface {
	VerifyPR(ctx context.Context, prURL string) error
}

// GitHubVerifier checks pull requests through the GitHub REST API.
type GitHubVerifier struct {
	client *gh.Client
}

// NewGitHubVerifier returns a verifier authenticated with token. An empty token
// makes unauthenticated requests.
func NewGitHubVerifier(token string) *GitHubVerifier {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubVerifier{client: client}
}

// NewGitHubAppVerifier returns a verifier authenticated as a GitHub App
// installation.
func NewGitHubAppVerifier(appID, installationID int64, privateKeyPath string) (*GitHubVerifier, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, key)
	if err != nil {
		return nil, fmt.Errorf("create installation transport: %w", err)
	}
	return &GitHubVerifier{client: gh.NewClient(&http.Client{Transport: itr})}, nil
}

func newVerifierFromGH(client *gh.Client) *GitHubVerifier {
	return &GitHubVerifier{client: client}
}

// VerifyPR fetches the pull request and fails if it does not exist or is closed
// without being merged.
func (v *GitHubVerifier) VerifyPR(ctx context.Context, prURL string) error {
	owner, repo, number, err := parsePRURL(prURL)
	if err != nil {
		return err
	}
	pr, _, err := v.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("getting pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	if pr.GetState() == "closed" && !pr.GetMerged() {
		return fmt.Errorf("pull request %s/%s#%d is closed", owner, repo, number)
	}
	return nil
}

// parsePRURL splits https://github.com/{owner}/{repo}/pull/{number}.
func parsePRURL(prURL string) (owner, repo string, number int, err error) {
	u, err := url.Parse(prURL)
	if err != nil {
		return "", "", 0, fmt.Errorf("parsing PR URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[2] != "pull" {
		return "", "", 0, fmt.Errorf("not a pull request URL: %q", prURL)
	}
	number, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid pull request number in %q: %w", prURL, err)
	}
	return parts[0], parts[1], number, nil
}
