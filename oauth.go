package pubforge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pubforge/views"
)

const oauthSessionName = "oauth_state"

// handleOAuthStart issues the authorize redirect for the CMS login popup and
// stashes the CSRF state (and the caller's origin, if given) in a short-lived
// cookie for the callback to compare against.
func (a *App) handleOAuthStart(c echo.Context) error {
	if missing := a.Config.MissingOAuth(false); missing != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "MissingEnv", "missing": missing})
	}

	state := strings.ReplaceAll(uuid.NewString(), "-", "")

	sess, err := session.Get(oauthSessionName, c)
	if err == nil {
		sess.Options.MaxAge = 600
		sess.Values["state"] = state
		if origin := c.QueryParam("origin"); origin != "" {
			sess.Values["origin"] = origin
		}
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			c.Logger().Warnf("could not persist oauth state cookie: %v", err)
		}
	} else {
		c.Logger().Warnf("could not open oauth session: %v", err)
	}

	authorize := url.URL{
		Scheme: "https",
		Host:   a.Config.OAuthHostname,
		Path:   "/login/oauth/authorize",
	}
	q := authorize.Query()
	q.Set("client_id", a.Config.OAuthClientID)
	q.Set("redirect_uri", a.redirectURI())
	q.Set("scope", a.Config.OAuthScope)
	q.Set("state", state)
	authorize.RawQuery = q.Encode()

	return c.Redirect(http.StatusFound, authorize.String())
}

// tokenExchangeResult models the provider's token response: either a token
// (under one of two historical keys) or an error with a description.
type tokenExchangeResult struct {
	AccessToken      string `json:"access_token"`
	Token            string `json:"token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// accessToken returns whichever token field is populated.
func (r tokenExchangeResult) accessToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// handleOAuthCallback exchanges the authorization code for a token and
// renders the relay page that hands the token back to the opening window.
func (a *App) handleOAuthCallback(c echo.Context) error {
	if missing := a.Config.MissingOAuth(true); missing != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "MissingEnv", "missing": missing})
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "MissingCode", "message": `OAuth "code" is required`})
	}

	savedState, savedOrigin := a.oauthSessionValues(c)
	if savedState == "" || savedState != state {
		// Deliberately permissive: a mismatch is logged but does not abort,
		// so flaky cookie delivery cannot dead-end a legitimate login. Make
		// this a hard 403 to enforce strict CSRF on the callback.
		c.Logger().Warnf("oauth state mismatch: saved=%q got=%q", savedState, state)
	}

	result, raw, err := a.exchangeCode(c, code)
	if err != nil {
		c.Logger().Errorf("token exchange failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "TokenExchangeFailed", "message": err.Error()})
	}
	if result.Error != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": result.Error, "description": result.ErrorDescription})
	}
	token := result.accessToken()
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "NoAccessToken", "details": raw})
	}

	origin := c.QueryParam("origin")
	if origin == "" {
		origin = savedOrigin
	}
	if origin == "" {
		origin = a.Config.SiteURL
	}

	return Render(c, views.RelayPage(relayMessages(token, state), origin, a.Config.OAuthKeepPopup))
}

// relayMessages builds every message-format variant a CMS consumer might
// listen for, newest first.
func relayMessages(token, state string) []string {
	content, _ := json.Marshal(map[string]string{
		"token":    token,
		"provider": "github",
		"backend":  "github",
		"state":    state,
	})
	return []string{
		"authorization:github:success:" + string(content),
		"netlify-cms-oauth-provider:" + string(content),
	}
}

// exchangeCode swaps the authorization code for an access token. The raw
// response body is returned alongside the parsed result so malformed
// payloads can be surfaced to the caller.
func (a *App) exchangeCode(c echo.Context, code string) (tokenExchangeResult, string, error) {
	form := url.Values{
		"client_id":     {a.Config.OAuthClientID},
		"client_secret": {a.Config.OAuthClientSecret},
		"code":          {code},
		"redirect_uri":  {a.redirectURI()},
	}

	tokenURL := a.tokenURL()
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodPost, tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return tokenExchangeResult{}, "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return tokenExchangeResult{}, "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenExchangeResult{}, "", fmt.Errorf("read token response: %w", err)
	}

	var result tokenExchangeResult
	if err := json.Unmarshal(body, &result); err != nil {
		// Leave the result zeroed; the caller reports NoAccessToken with the
		// raw payload.
		return tokenExchangeResult{}, string(body), nil
	}
	return result, string(body), nil
}

func (a *App) redirectURI() string {
	return a.Config.SiteURL + "/api/oauth/callback"
}

func (a *App) tokenURL() string {
	if a.Config.OAuthTokenURL != "" {
		return a.Config.OAuthTokenURL
	}
	return "https://" + a.Config.OAuthHostname + "/login/oauth/access_token"
}

// oauthSessionValues reads the state and origin stashed by handleOAuthStart.
func (a *App) oauthSessionValues(c echo.Context) (state, origin string) {
	sess, err := session.Get(oauthSessionName, c)
	if err != nil {
		return "", ""
	}
	state, _ = sess.Values["state"].(string)
	origin, _ = sess.Values["origin"].(string)
	return state, origin
}
