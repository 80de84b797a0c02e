package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// FileExists reports whether path exists on the given branch, via the
// Contents API. A 404 means it does not; any other failure is an error.
func (c *Client) FileExists(ctx context.Context, branch, path string) (bool, error) {
	_, err := c.do(ctx, http.MethodGet,
		"/contents/"+url.PathEscape(path)+"?ref="+url.QueryEscape(branch), nil)
	if err == nil {
		return true, nil
	}
	var he *httpError
	if errors.As(err, &he) && he.status == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// CreatedFile describes the file written by CreateFile.
type CreatedFile struct {
	Path    string
	HTMLURL string
}

type contentsResponse struct {
	Content struct {
		Path    string `json:"path"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
}

// CreateFile writes a new file on branch through the Contents API, one commit
// per call. The body is base64-encoded as the API requires.
func (c *Client) CreateFile(ctx context.Context, branch, path, content, message string) (*CreatedFile, error) {
	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	body, err := c.do(ctx, http.MethodPut, "/contents/"+url.PathEscape(path), payload)
	if err != nil {
		return nil, fmt.Errorf("create file %s: %w", path, err)
	}
	var resp contentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &CreatedFile{Path: resp.Content.Path, HTMLURL: resp.Content.HTMLURL}, nil
}
