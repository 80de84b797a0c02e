// Package views renders the small HTML surface of pubforge (the OAuth relay
// page and a landing page) as templ components.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// RelayPage is the page the OAuth popup lands on after a successful token
// exchange. Its script broadcasts every message variant to whichever window
// opened the popup (opener first, then parent), targeting origin with a "*"
// retry for consumers behind mismatched origins. Unless keepOpen is set the
// popup closes itself shortly after.
func RelayPage(messages []string, origin string, keepOpen bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n")
		b.WriteString("<meta charset=\"utf-8\" />\n<title>Completing sign-in…</title>\n")
		b.WriteString("<meta name=\"robots\" content=\"noindex\" />\n")
		b.WriteString("<style>body{font-family:system-ui; margin:2rem;}</style>\n")
		b.WriteString("</head>\n<body>\n")
		b.WriteString("<p>Signed in with GitHub. Returning to the CMS…</p>\n")
		b.WriteString("<script>\n(function() {\n")
		fmt.Fprintf(&b, "  var msgs = %s;\n", jsValue(messages))
		fmt.Fprintf(&b, "  var origin = %s;\n", jsValue(origin))
		b.WriteString(`  function send(target, tgtOrigin) {
    try {
      if (target && typeof target.postMessage === 'function') {
        for (var i = 0; i < msgs.length; i++) target.postMessage(msgs[i], tgtOrigin);
        return true;
      }
    } catch (e) { console.error('postMessage error:', e); }
    return false;
  }
  var ok = false;
  if (window.opener && !window.opener.closed) ok = send(window.opener, origin);
  if (!ok && window.parent && window.parent !== window) ok = send(window.parent, origin);
  if (!ok) {
    if (window.opener && !window.opener.closed) ok = send(window.opener, '*');
    else if (window.parent && window.parent !== window) ok = send(window.parent, '*');
  }
`)
		if !keepOpen {
			b.WriteString("  setTimeout(function(){ window.close(); }, 800);\n")
		}
		b.WriteString("})();\n</script>\n</body>\n</html>\n")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Landing is the index page shown when the service root is opened directly.
func Landing(siteURL string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n")
		b.WriteString("<meta charset=\"utf-8\" />\n<title>pubforge</title>\n")
		b.WriteString("<style>body{font-family:system-ui; margin:2rem; max-width:40rem;}</style>\n")
		b.WriteString("</head>\n<body>\n<h1>pubforge</h1>\n")
		b.WriteString("<p>OAuth gateway and post generator for a GitHub-backed CMS. Nothing to see here; the admin UI drives this service.</p>\n")
		if siteURL != "" {
			fmt.Fprintf(&b, "<p><a href=\"%s\">Back to the site</a></p>\n", html.EscapeString(siteURL))
		}
		b.WriteString("</body>\n</html>\n")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// jsValue embeds a Go value as a JavaScript literal.
func jsValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	// Keep the embedded JSON from terminating the surrounding script block.
	return strings.ReplaceAll(string(data), "</", "<\\/")
}
