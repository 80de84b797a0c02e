// Package pubforge is the server-side companion for a GitHub-backed headless
// CMS: it brokers the GitHub OAuth popup handshake for the admin UI and
// generates blog posts and cover images (optionally via an OpenAI-compatible
// provider), committing the resulting files to the content repository through
// the GitHub REST API.
package pubforge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubforge/github"
	"github.com/eringen/pubforge/openai"
	"github.com/eringen/pubforge/views"
)

// App is the central pubforge application. It wires together the config,
// outbound clients, rate limiter, and HTTP routes.
type App struct {
	Config Config
	Echo   *echo.Echo

	gh         *github.Client
	ai         *openai.Client
	httpClient *http.Client
	limiter    *RateLimiter

	customRoutes []func(*App)
}

// New creates a pubforge App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:     cfg,
		Echo:       echo.New(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    NewRateLimiter(cfg.GenerateRateLimit, time.Minute),
	}
	a.gh = github.New(cfg.GitHubAPIURL, cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo)
	a.ai = openai.New(openai.Config{
		APIURL:     cfg.OpenAIAPIURL,
		APIKey:     cfg.OpenAIAPIKey,
		TextModel:  cfg.OpenAITextModel,
		ImageModel: cfg.OpenAIImageModel,
	})

	for _, opt := range opts {
		opt(a)
	}

	a.Echo.HideBanner = true
	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}

	return a
}

// Start validates required config and starts the server.
func (a *App) Start() error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("pubforge: SessionSecret is required")
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/", a.handleIndex)
	e.GET("/healthz", handleHealth)

	// Generation endpoints answer the admin UI; they fan out to paid
	// upstreams, so they sit behind the per-IP limiter.
	ai := e.Group("/api/ai", a.rateLimitMiddleware)
	ai.POST("/generate", a.handleGenerate)
	ai.POST("/generate-image", a.handleGenerateImage)
	ai.POST("/generate-combo", a.handleGenerateCombo)

	// The original deployment shipped the start handler under three paths;
	// all of them stay routable.
	e.GET("/api/oauth", a.handleOAuthStart)
	e.GET("/api/oauth/start", a.handleOAuthStart)
	e.GET("/api/oauth/index", a.handleOAuthStart)
	e.GET("/api/oauth/callback", a.handleOAuthCallback)
}

func (a *App) handleIndex(c echo.Context) error {
	return Render(c, views.Landing(a.Config.SiteURL))
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
