package pubforge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// warnLogger is the slice of echo.Logger the acquisition chains need.
type warnLogger interface {
	Warnf(format string, args ...interface{})
}

// FetchError propagates an upstream HTTP failure verbatim: the handler
// responds with the same status and carries the body as detail.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("upstream fetch failed with status %d", e.Status)
}

// acquiredImage is the product of the image acquisition chain.
type acquiredImage struct {
	bytes       []byte
	contentType string
}

// imageSource attempts to produce cover bytes. ok=false means the source does
// not apply (or soft-failed) and the chain moves on; a non-nil error aborts.
type imageSource func(ctx context.Context) (acquiredImage, bool, error)

// firstImage runs sources in order and returns the first success.
func firstImage(ctx context.Context, sources ...imageSource) (acquiredImage, error) {
	for _, source := range sources {
		img, ok, err := source(ctx)
		if err != nil {
			return acquiredImage{}, err
		}
		if ok {
			return img, nil
		}
	}
	return acquiredImage{}, fmt.Errorf("no image source produced bytes")
}

// acquireImage obtains cover bytes, trying in order: a caller-supplied URL,
// the generation provider, and finally the placeholder service.
func (a *App) acquireImage(ctx context.Context, log warnLogger, imageURL, prompt, fallbackText, provider string) (acquiredImage, error) {
	return firstImage(ctx,
		a.imageFromURL(imageURL),
		a.imageFromProvider(log, provider, prompt),
		a.imageFromPlaceholder(fallbackText),
	)
}

// imageFromURL fetches caller-supplied image bytes. Upstream failures abort
// the chain with the upstream status and body, no retry.
func (a *App) imageFromURL(imageURL string) imageSource {
	return func(ctx context.Context) (acquiredImage, bool, error) {
		if imageURL == "" {
			return acquiredImage{}, false, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return acquiredImage{}, false, fmt.Errorf("build image request: %w", err)
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return acquiredImage{}, false, fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return acquiredImage{}, false, fmt.Errorf("read image: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return acquiredImage{}, false, &FetchError{Status: resp.StatusCode, Body: string(body)}
		}
		return acquiredImage{bytes: body, contentType: resp.Header.Get("Content-Type")}, true, nil
	}
}

// imageFromProvider renders the prompt through the generation provider.
// Provider failures log a warning and fall through to the next source.
func (a *App) imageFromProvider(log warnLogger, provider, prompt string) imageSource {
	return func(ctx context.Context) (acquiredImage, bool, error) {
		if prompt == "" {
			return acquiredImage{}, false, nil
		}
		if provider != "openai" && !(provider == "" && a.ai.Enabled()) {
			return acquiredImage{}, false, nil
		}
		if !a.ai.Enabled() {
			return acquiredImage{}, false, nil
		}
		raw, err := a.ai.GenerateImage(ctx, prompt)
		if err != nil {
			log.Warnf("image generation failed, falling back: %v", err)
			return acquiredImage{}, false, nil
		}
		return acquiredImage{bytes: raw, contentType: "image/png"}, true, nil
	}
}

// imageFromPlaceholder fetches a deterministic placeholder parameterized by
// text. This is the terminal source; its failure propagates as a plain error.
func (a *App) imageFromPlaceholder(text string) imageSource {
	return func(ctx context.Context) (acquiredImage, bool, error) {
		if text == "" {
			text = "cover"
		}
		placeholderURL := a.Config.PlaceholderURL + "&text=" + url.QueryEscape(text)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, placeholderURL, nil)
		if err != nil {
			return acquiredImage{}, false, fmt.Errorf("build placeholder request: %w", err)
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return acquiredImage{}, false, fmt.Errorf("fetch placeholder: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return acquiredImage{}, false, fmt.Errorf("placeholder service returned %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return acquiredImage{}, false, fmt.Errorf("read placeholder: %w", err)
		}
		return acquiredImage{bytes: body, contentType: resp.Header.Get("Content-Type")}, true, nil
	}
}

// contentSource attempts to produce Markdown body text.
type contentSource func(ctx context.Context) (string, bool)

// firstContent runs sources in order; the final source must always produce.
func firstContent(ctx context.Context, sources ...contentSource) string {
	for _, source := range sources {
		if text, ok := source(ctx); ok {
			return text
		}
	}
	return ""
}

const bodySystemPrompt = `You are an assistant that writes blog posts in Markdown. Return the full markdown body (no surrounding JSON) with appropriate frontmatter omitted.`

// acquireContent obtains the Markdown body: explicit text wins, then the
// generation provider, then the given static stub. Provider failures never
// abort the request.
func (a *App) acquireContent(ctx context.Context, log warnLogger, title, prompt, bodyText, stub string) string {
	return firstContent(ctx,
		func(context.Context) (string, bool) {
			return bodyText, bodyText != ""
		},
		func(ctx context.Context) (string, bool) {
			if !a.ai.Enabled() {
				return "", false
			}
			user := fmt.Sprintf("Write a blog post titled %q. %s", title, prompt)
			body, err := a.ai.ChatCompletion(ctx, bodySystemPrompt, strings.TrimSpace(user), 1000)
			if err != nil {
				log.Warnf("content generation failed, falling back to stub: %v", err)
				return "", false
			}
			return body, body != ""
		},
		func(context.Context) (string, bool) {
			return stub, true
		},
	)
}

// stubBody is the fallback body for text-only generation.
func stubBody(title string) string {
	return fmt.Sprintf("# %s\n\nThis is an AI-generated stub. Replace with your content.", title)
}

// comboStub is the fallback body for combo generation, shaped like a skeleton
// post the author fills in.
func comboStub(title string) string {
	return fmt.Sprintf("# %s\n\n> (AI demo) Automatically generated from the title.\n\n## Background\nShort description...\n\n## Steps\n- Step 1\n- Step 2\n\n## Notes\n- ...\n\n", title)
}
