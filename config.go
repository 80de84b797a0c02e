package pubforge

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for a pubforge instance. It is built once at
// startup (see FromEnv) and passed into the App; handlers never read the
// environment themselves.
type Config struct {
	Addr    string // Listen address (default ":3000")
	SiteURL string // Canonical admin site URL, no trailing slash; required for OAuth

	GitHubOwner  string // Target repository owner
	GitHubRepo   string // Target repository name
	GitHubBranch string // Target branch (default "main")
	GitHubToken  string // Token used for commits (AI_GITHUB_TOKEN or GITHUB_TOKEN)
	GitHubAPIURL string // Override for tests (default "https://api.github.com")

	OAuthClientID     string
	OAuthClientSecret string
	OAuthScope        string // default "repo"
	OAuthHostname     string // default "github.com"
	OAuthTokenURL     string // override for tests (default derived from hostname)
	OAuthKeepPopup    bool   // leave the callback popup open instead of closing it

	OpenAIAPIKey     string
	OpenAIAPIURL     string // default "https://api.openai.com/v1"
	OpenAITextModel  string // default "gpt-4o-mini"
	OpenAIImageModel string // default "gpt-image-1"

	PlaceholderURL string // Placeholder image service base (default dummyimage.com)

	DefaultAuthor string // Front matter author fallback
	DefaultLang   string // Front matter lang fallback (default "vi")

	SessionSecret string // Required: cookie encryption secret
	CookieSecure  bool   // Set true for HTTPS

	ImageMaxWidth     int // Downscale covers wider than this before commit; 0 = off
	GenerateRateLimit int // Generation requests per IP per minute; 0 = off
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.GitHubBranch == "" {
		c.GitHubBranch = "main"
	}
	if c.GitHubAPIURL == "" {
		c.GitHubAPIURL = "https://api.github.com"
	}
	if c.OAuthScope == "" {
		c.OAuthScope = "repo"
	}
	if c.OAuthHostname == "" {
		c.OAuthHostname = "github.com"
	}
	if c.OpenAIAPIURL == "" {
		c.OpenAIAPIURL = "https://api.openai.com/v1"
	}
	if c.OpenAITextModel == "" {
		c.OpenAITextModel = "gpt-4o-mini"
	}
	if c.OpenAIImageModel == "" {
		c.OpenAIImageModel = "gpt-image-1"
	}
	if c.PlaceholderURL == "" {
		c.PlaceholderURL = "https://dummyimage.com/1200x630/0b7285/ffffff"
	}
	if c.DefaultLang == "" {
		c.DefaultLang = "vi"
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
}

// MissingOAuth reports which OAuth-related variables are absent, keyed by
// environment variable name. Returns nil when nothing is missing. Used for the
// MissingEnv error responses.
func (c *Config) MissingOAuth(needSecret bool) map[string]bool {
	missing := map[string]bool{
		"OAUTH_CLIENT_ID": c.OAuthClientID == "",
		"SITE_URL":        c.SiteURL == "",
	}
	if needSecret {
		missing["OAUTH_CLIENT_SECRET"] = c.OAuthClientSecret == ""
	}
	for _, absent := range missing {
		if absent {
			return missing
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables. Call godotenv (or
// equivalent) before this if a .env file should be honored.
func FromEnv() Config {
	return Config{
		Addr:              os.Getenv("ADDR"),
		SiteURL:           os.Getenv("SITE_URL"),
		GitHubOwner:       splitRepo(os.Getenv("GITHUB_REPO"), 0),
		GitHubRepo:        splitRepo(os.Getenv("GITHUB_REPO"), 1),
		GitHubBranch:      os.Getenv("GITHUB_BRANCH"),
		GitHubToken:       EnvOr("AI_GITHUB_TOKEN", os.Getenv("GITHUB_TOKEN")),
		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthScope:        os.Getenv("OAUTH_SCOPE"),
		OAuthHostname:     os.Getenv("OAUTH_HOSTNAME"),
		OAuthKeepPopup:    envBool("OAUTH_KEEP_POPUP", false),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIAPIURL:      os.Getenv("OPENAI_API_URL"),
		OpenAITextModel:   os.Getenv("OPENAI_TEXT_MODEL"),
		OpenAIImageModel:  os.Getenv("OPENAI_IMAGE_MODEL"),
		PlaceholderURL:    os.Getenv("PLACEHOLDER_URL"),
		DefaultAuthor:     os.Getenv("DEFAULT_AUTHOR"),
		DefaultLang:       os.Getenv("DEFAULT_LANG"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		CookieSecure:      envBool("COOKIE_SECURE", false),
		ImageMaxWidth:     envInt("IMAGE_MAX_WIDTH", 0),
		GenerateRateLimit: envInt("GENERATE_RATE_LIMIT", 10),
	}
}

// splitRepo pulls owner (i=0) or name (i=1) out of an "owner/repo" string.
func splitRepo(ownerRepo string, i int) string {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 {
		return ""
	}
	return parts[i]
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("pubforge: required environment variable %s is not set", key)
	}
	return v
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}
