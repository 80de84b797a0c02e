package pubforge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubforge/github"
)

const (
	postsDir  = "src/content/posts/"
	assetsDir = "src/assets/images/"
)

// commitDefault resolves an optional commit flag against its default.
func commitDefault(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

// checkCommitConfig verifies the repo target and token are configured before
// any commit is attempted. Returns a ready JSON error response, or nil.
func (a *App) checkCommitConfig(c echo.Context) error {
	if a.Config.GitHubOwner == "" || a.Config.GitHubRepo == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "GITHUB_REPO must be owner/repo"})
	}
	if a.Config.GitHubToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "Missing AI_GITHUB_TOKEN"})
	}
	return nil
}

// commitError shapes a commit-engine failure: stage-tagged 400 for engine
// failures, plain error otherwise.
func commitError(c echo.Context, err error) error {
	var stageErr *github.StageError
	if errors.As(err, &stageErr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "stage": stageErr.Stage, "error": stageErr.Body})
	}
	return err
}

// fetchFailure shapes an aborted image-URL fetch, propagating the upstream
// status and body verbatim.
func fetchFailure(c echo.Context, err error) (bool, error) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return true, c.JSON(fe.Status, echo.Map{"ok": false, "error": "fetch image failed", "detail": fe.Body})
	}
	return false, nil
}

type generateRequest struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Commit *bool  `json:"commit"`
}

// handleGenerate creates a text-only post through the Contents API, one file
// per commit, with a best-effort unique-filename loop.
func (a *App) handleGenerate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_title"})
	}

	ctx := c.Request().Context()
	body := a.acquireContent(ctx, c.Logger(), req.Title, req.Prompt, "", stubBody(req.Title))

	markdown := fmt.Sprintf(
		"---\ntitle: %s\npublished: %s\ndescription: ''\nimage: ''\ntags: []\ncategory: ''\ndraft: true\nlang: ''\n---\n\n%s",
		req.Title, DateStamp(time.Now()), body)

	// No commit requested, or nothing to commit with: hand back the document.
	if !commitDefault(req.Commit, true) || a.Config.GitHubToken == "" {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "committed": false, "content": markdown})
	}
	if a.Config.GitHubOwner == "" || a.Config.GitHubRepo == "" {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error", "message": "GITHUB_REPO must be owner/repo"})
	}

	slug := Slugify(req.Title)
	if slug == "" {
		slug = fmt.Sprintf("ai-post-%d", time.Now().UnixMilli())
	}

	// Best-effort uniqueness: check-then-write, so a concurrent request for
	// the same slug can still collide. Kept as-is; the Git Data engine used
	// by the other handlers does not have this loop.
	filename := postsDir + slug + ".md"
	for i := 1; ; i++ {
		exists, err := a.gh.FileExists(ctx, a.Config.GitHubBranch, filename)
		if err != nil || !exists {
			break
		}
		filename = fmt.Sprintf("%s%s-%d.md", postsDir, slug, i)
	}

	created, err := a.gh.CreateFile(ctx, a.Config.GitHubBranch, filename, markdown,
		"chore: create AI post "+req.Title)
	if err != nil {
		c.Logger().Errorf("failed to create file: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "create_failed", "details": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{"ok": true, "committed": true, "path": created.Path, "html_url": created.HTMLURL})
}

type generateImageRequest struct {
	Prompt     string `json:"prompt"`
	ImageURL   string `json:"image_url"`
	Commit     *bool  `json:"commit"`
	Collection string `json:"collection"`
	Provider   string `json:"provider"`
}

// handleGenerateImage imports or generates a cover image and commits it on
// its own.
func (a *App) handleGenerateImage(c echo.Context) error {
	var req generateImageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid_body"})
	}
	if req.Collection == "" {
		req.Collection = "blog"
	}

	ctx := c.Request().Context()
	img, err := a.acquireImage(ctx, c.Logger(), req.ImageURL, req.Prompt, req.Prompt, req.Provider)
	if err != nil {
		if handled, jsonErr := fetchFailure(c, err); handled {
			return jsonErr
		}
		return err
	}
	img = processCover(img, a.Config.ImageMaxWidth)

	ext := ExtForContentType(img.contentType)
	fname := AssetID() + "." + ext
	repoPath := assetsDir + fname
	publicPath := "/assets/images/" + fname

	if !commitDefault(req.Commit, false) {
		return c.JSON(http.StatusOK, echo.Map{
			"ok": true, "committed": false, "path": publicPath, "content_type": img.contentType,
		})
	}
	if resp := a.checkCommitConfig(c); resp != nil {
		return resp
	}

	result, err := a.gh.CommitFiles(ctx, a.Config.GitHubBranch, "assets: add cover "+fname, []github.Entry{
		{Path: repoPath, Content: base64.StdEncoding.EncodeToString(img.bytes), Encoding: github.EncodingBase64},
	})
	if err != nil {
		return commitError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":        true,
		"committed": true,
		"path":      publicPath,
		"repo_path": repoPath,
		"rel_path":  RelPathForCollection(publicPath, req.Collection),
		"html_url":  result.HTMLURL,
	})
}

type generateComboRequest struct {
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	BodyPrompt string `json:"bodyPrompt"`
	ImageURL   string `json:"image_url"`
	Prompt     string `json:"prompt"`
	Commit     *bool  `json:"commit"`
	Collection string `json:"collection"`
	Provider   string `json:"provider"`
	Author     string `json:"author"`
	Lang       string `json:"lang"`
}

// handleGenerateCombo writes the post document and its cover image in one
// atomic commit through the Git Data engine.
func (a *App) handleGenerateCombo(c echo.Context) error {
	var req generateComboRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid_body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "missing title"})
	}
	if req.Collection == "" {
		req.Collection = "blog"
	}

	now := time.Now()
	safeSlug := Slugify(req.Slug)
	if safeSlug == "" {
		safeSlug = Slugify(req.Title)
	}
	mdFilename := DateStamp(now) + "-" + safeSlug + ".md"
	mdRepoPath := postsDir + mdFilename

	coverPrompt := req.Prompt
	if coverPrompt == "" {
		coverPrompt = "Minimal cover image for: " + req.Title
	}

	ctx := c.Request().Context()
	img, err := a.acquireImage(ctx, c.Logger(), req.ImageURL, coverPrompt, req.Title, req.Provider)
	if err != nil {
		if handled, jsonErr := fetchFailure(c, err); handled {
			return jsonErr
		}
		return err
	}
	img = processCover(img, a.Config.ImageMaxWidth)

	ext := ExtForContentType(img.contentType)
	imgName := AssetID() + "." + ext
	imgRepoPath := assetsDir + imgName
	imgPublicPath := "/assets/images/" + imgName
	imgRelPath := RelPathForCollection(imgPublicPath, req.Collection)

	author := req.Author
	if author == "" {
		author = a.Config.DefaultAuthor
	}
	lang := req.Lang
	if lang == "" {
		lang = a.Config.DefaultLang
	}

	body := a.acquireContent(ctx, c.Logger(), req.Title, req.Prompt, req.BodyPrompt, comboStub(req.Title))
	markdown := comboFrontMatter(req.Title, safeSlug, PublishedStamp(now), author, lang, imgRelPath) + body

	if !commitDefault(req.Commit, true) {
		return c.JSON(http.StatusOK, echo.Map{
			"ok":         true,
			"committed":  false,
			"md_path":    mdRepoPath,
			"image_path": imgPublicPath,
			"rel_path":   imgRelPath,
			"content":    markdown,
		})
	}
	if resp := a.checkCommitConfig(c); resp != nil {
		return resp
	}

	message := fmt.Sprintf("content(blog): add %s + cover %s", safeSlug, imgName)
	result, err := a.gh.CommitFiles(ctx, a.Config.GitHubBranch, message, []github.Entry{
		{Path: mdRepoPath, Content: markdown, Encoding: github.EncodingUTF8},
		{Path: imgRepoPath, Content: base64.StdEncoding.EncodeToString(img.bytes), Encoding: github.EncodingBase64},
	})
	if err != nil {
		return commitError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":         true,
		"committed":  true,
		"md_path":    mdRepoPath,
		"image_path": imgPublicPath,
		"rel_path":   imgRelPath,
		"html_url":   result.HTMLURL,
	})
}

// comboFrontMatter renders the front-matter block for combo posts. Values are
// JSON-quoted, which keeps titles with quotes or colons valid YAML.
func comboFrontMatter(title, slug, published, author, lang, image string) string {
	quote := func(s string) string {
		data, _ := json.Marshal(s)
		return string(data)
	}
	lines := []string{
		"---",
		"title: " + quote(title),
		"slug: " + quote(slug),
		"published: " + quote(published),
		"author: " + quote(author),
		"lang: " + quote(lang),
		"image: " + quote(image),
		"---",
		"",
	}
	return strings.Join(lines, "\n")
}
