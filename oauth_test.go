package pubforge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
)

func oauthConfig() Config {
	return Config{
		SessionSecret:     "s",
		SiteURL:           "https://blog.example.com",
		OAuthClientID:     "client-id",
		OAuthClientSecret: "client-secret",
	}
}

func getJSON(t *testing.T, app *App, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, out
}

func TestOAuthStartRedirects(t *testing.T) {
	app := New(oauthConfig())

	for _, path := range []string{"/api/oauth", "/api/oauth/start", "/api/oauth/index"} {
		rec, _ := getJSON(t, app, path)
		if rec.Code != http.StatusFound {
			t.Fatalf("%s: status = %d, want 302", path, rec.Code)
		}

		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatalf("%s: bad Location: %v", path, err)
		}
		if loc.Host != "github.com" || loc.Path != "/login/oauth/authorize" {
			t.Errorf("%s: Location = %s", path, loc)
		}
		q := loc.Query()
		if q.Get("client_id") != "client-id" {
			t.Errorf("client_id = %q", q.Get("client_id"))
		}
		if q.Get("redirect_uri") != "https://blog.example.com/api/oauth/callback" {
			t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
		}
		if q.Get("scope") != "repo" {
			t.Errorf("scope = %q", q.Get("scope"))
		}
		if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(q.Get("state")) {
			t.Errorf("state = %q, want 32 hex chars", q.Get("state"))
		}

		var found bool
		for _, ck := range rec.Result().Cookies() {
			if ck.Name == oauthSessionName && ck.Value != "" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: no %s cookie set", path, oauthSessionName)
		}
	}
}

func TestOAuthStartMissingEnv(t *testing.T) {
	app := New(Config{SessionSecret: "s"})

	rec, out := getJSON(t, app, "/api/oauth")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["error"] != "MissingEnv" {
		t.Errorf("error = %v", out["error"])
	}
	missing, _ := out["missing"].(map[string]any)
	if missing["OAUTH_CLIENT_ID"] != true || missing["SITE_URL"] != true {
		t.Errorf("missing = %v", missing)
	}
}

func TestOAuthCallbackMissingCode(t *testing.T) {
	app := New(oauthConfig())

	rec, out := getJSON(t, app, "/api/oauth/callback")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["error"] != "MissingCode" {
		t.Errorf("error = %v", out["error"])
	}
	if msg, _ := out["message"].(string); !strings.Contains(msg, `"code" is required`) {
		t.Errorf("message = %v", out["message"])
	}
}

func tokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthCallbackRelaysToken(t *testing.T) {
	var gotForm url.Values
	token := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_abc123"})
	})

	cfg := oauthConfig()
	cfg.OAuthTokenURL = token.URL
	app := New(cfg)

	rec, _ := getJSON(t, app, "/api/oauth/callback?code=the-code&state=xyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	if gotForm.Get("code") != "the-code" ||
		gotForm.Get("client_id") != "client-id" ||
		gotForm.Get("client_secret") != "client-secret" {
		t.Errorf("exchange form = %v", gotForm)
	}

	html := rec.Body.String()
	for _, want := range []string{
		"authorization:github:success:",
		"netlify-cms-oauth-provider:",
		"gho_abc123",
		"https://blog.example.com",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("relay page missing %q", want)
		}
	}
}

func TestOAuthCallbackOriginQueryOverride(t *testing.T) {
	token := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})

	cfg := oauthConfig()
	cfg.OAuthTokenURL = token.URL
	app := New(cfg)

	rec, _ := getJSON(t, app, "/api/oauth/callback?code=c&origin="+url.QueryEscape("https://other.example.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "https://other.example.com") {
		t.Errorf("relay page does not target the query origin:\n%s", rec.Body.String())
	}
}

func TestOAuthCallbackProviderError(t *testing.T) {
	token := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
	})

	cfg := oauthConfig()
	cfg.OAuthTokenURL = token.URL
	app := New(cfg)

	rec, out := getJSON(t, app, "/api/oauth/callback?code=expired")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["error"] != "bad_verification_code" {
		t.Errorf("error = %v", out["error"])
	}
	if desc, _ := out["description"].(string); !strings.Contains(desc, "incorrect or expired") {
		t.Errorf("description = %v", out["description"])
	}
}

func TestOAuthCallbackNoAccessToken(t *testing.T) {
	token := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	})

	cfg := oauthConfig()
	cfg.OAuthTokenURL = token.URL
	app := New(cfg)

	rec, out := getJSON(t, app, "/api/oauth/callback?code=c")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["error"] != "NoAccessToken" {
		t.Errorf("error = %v", out["error"])
	}
	if details, _ := out["details"].(string); !strings.Contains(details, "not json at all") {
		t.Errorf("details = %v", out["details"])
	}
}

func TestOAuthCallbackMissingSecret(t *testing.T) {
	cfg := oauthConfig()
	cfg.OAuthClientSecret = ""
	app := New(cfg)

	rec, out := getJSON(t, app, "/api/oauth/callback?code=c")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	missing, _ := out["missing"].(map[string]any)
	if missing["OAUTH_CLIENT_SECRET"] != true {
		t.Errorf("missing = %v", missing)
	}
}
