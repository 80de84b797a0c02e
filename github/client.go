// Package github talks to the GitHub REST API: the low-level Git Data API for
// multi-file atomic commits, and the Contents API for single-file writes.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	acceptHeader = "application/vnd.github+json"
	apiVersion   = "2022-11-28"
	userAgent    = "pubforge"
)

// Encoding of a commit entry's content.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// Client is an authenticated client for one repository.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	owner   string
	repo    string
}

// New creates a Client for owner/repo. baseURL defaults to the public API.
func New(baseURL, token, owner, repo string) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		owner:   owner,
		repo:    repo,
	}
}

// Entry is one file to include in a commit.
type Entry struct {
	Path     string // repo-relative path
	Content  string // raw text for utf-8, base64 payload for base64
	Encoding string // EncodingUTF8 or EncodingBase64
}

// CommitResult reports the commit created by CommitFiles.
type CommitResult struct {
	SHA     string
	HTMLURL string
}

// StageError identifies which step of the commit sequence failed and carries
// the upstream response body verbatim. Nothing is retried; the branch ref is
// never moved on failure, so the repository's visible state is unchanged.
type StageError struct {
	Stage string // getRef, getRef.parse, createBlob, getCommitTree, createTree, createCommit, updateRef
	Path  string // set for per-entry stages (createBlob)
	Body  string // raw upstream error payload
}

func (e *StageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("github: %s failed for %s: %s", e.Stage, e.Path, e.Body)
	}
	return fmt.Sprintf("github: %s failed: %s", e.Stage, e.Body)
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// CommitFiles commits entries to branch as a single commit, in GitHub's
// documented Git Data order: resolve the branch ref, create a blob per entry,
// fetch the base tree, create a tree layered on it, create a commit whose sole
// parent is the prior head, then fast-forward the ref. Intermediate objects
// are unreferenced until the final ref update, so a failure at any step leaves
// the branch untouched.
func (c *Client) CommitFiles(ctx context.Context, branch, message string, entries []Entry) (*CommitResult, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("github: no entries to commit")
	}

	// 1) Resolve the branch head.
	var ref refResponse
	body, err := c.do(ctx, http.MethodGet, "/git/refs/heads/"+branch, nil)
	if err != nil {
		return nil, &StageError{Stage: "getRef", Body: errBody(err)}
	}
	if err := json.Unmarshal(body, &ref); err != nil || ref.Object.SHA == "" {
		return nil, &StageError{Stage: "getRef.parse", Body: string(body)}
	}
	headSHA := ref.Object.SHA

	// 2) One blob per entry.
	blobSHAs := make([]string, len(entries))
	for i, entry := range entries {
		payload := map[string]string{"content": entry.Content, "encoding": entry.Encoding}
		body, err := c.do(ctx, http.MethodPost, "/git/blobs", payload)
		if err != nil {
			return nil, &StageError{Stage: "createBlob", Path: entry.Path, Body: errBody(err)}
		}
		var blob shaResponse
		if err := json.Unmarshal(body, &blob); err != nil || blob.SHA == "" {
			return nil, &StageError{Stage: "createBlob", Path: entry.Path, Body: string(body)}
		}
		blobSHAs[i] = blob.SHA
	}

	// 3) Tree of the current head commit.
	body, err = c.do(ctx, http.MethodGet, "/git/commits/"+headSHA, nil)
	if err != nil {
		return nil, &StageError{Stage: "getCommitTree", Body: errBody(err)}
	}
	var head commitResponse
	if err := json.Unmarshal(body, &head); err != nil || head.Tree.SHA == "" {
		return nil, &StageError{Stage: "getCommitTree", Body: string(body)}
	}

	// 4) New tree layered on the base tree; existing files carry over.
	tree := make([]treeEntry, len(entries))
	for i, entry := range entries {
		tree[i] = treeEntry{Path: entry.Path, Mode: "100644", Type: "blob", SHA: blobSHAs[i]}
	}
	body, err = c.do(ctx, http.MethodPost, "/git/trees", map[string]any{
		"base_tree": head.Tree.SHA,
		"tree":      tree,
	})
	if err != nil {
		return nil, &StageError{Stage: "createTree", Body: errBody(err)}
	}
	var newTree shaResponse
	if err := json.Unmarshal(body, &newTree); err != nil || newTree.SHA == "" {
		return nil, &StageError{Stage: "createTree", Body: string(body)}
	}

	// 5) Commit pointing at the new tree, parented on the prior head.
	body, err = c.do(ctx, http.MethodPost, "/git/commits", map[string]any{
		"message": message,
		"tree":    newTree.SHA,
		"parents": []string{headSHA},
	})
	if err != nil {
		return nil, &StageError{Stage: "createCommit", Body: errBody(err)}
	}
	var newCommit shaResponse
	if err := json.Unmarshal(body, &newCommit); err != nil || newCommit.SHA == "" {
		return nil, &StageError{Stage: "createCommit", Body: string(body)}
	}

	// 6) Fast-forward the ref. No force; a concurrent writer surfaces here as
	// a non-fast-forward error, passed through as-is.
	if _, err = c.do(ctx, http.MethodPatch, "/git/refs/heads/"+branch, map[string]string{
		"sha": newCommit.SHA,
	}); err != nil {
		return nil, &StageError{Stage: "updateRef", Body: errBody(err)}
	}

	return &CommitResult{
		SHA:     newCommit.SHA,
		HTMLURL: fmt.Sprintf("https://github.com/%s/%s/commit/%s", c.owner, c.repo, newCommit.SHA),
	}, nil
}

// httpError carries a non-2xx upstream response.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func errBody(err error) string {
	var he *httpError
	if errors.As(err, &he) {
		return he.body
	}
	return err.Error()
}

// do issues one API request against the client's repository and returns the
// response body. Non-2xx responses come back as *httpError.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/repos/%s/%s%s", c.baseURL, c.owner, c.repo, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
