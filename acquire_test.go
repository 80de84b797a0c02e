package pubforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testLogger struct{ warnings []string }

func (l *testLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func TestFirstImageOrder(t *testing.T) {
	skip := func(context.Context) (acquiredImage, bool, error) {
		return acquiredImage{}, false, nil
	}
	hit := func(context.Context) (acquiredImage, bool, error) {
		return acquiredImage{bytes: []byte("img"), contentType: "image/png"}, true, nil
	}
	never := func(context.Context) (acquiredImage, bool, error) {
		t.Fatal("source after a success must not run")
		return acquiredImage{}, false, nil
	}

	img, err := firstImage(context.Background(), skip, hit, never)
	if err != nil {
		t.Fatalf("firstImage failed: %v", err)
	}
	if string(img.bytes) != "img" {
		t.Errorf("bytes = %q", img.bytes)
	}
}

func TestFirstImageErrorAborts(t *testing.T) {
	boom := func(context.Context) (acquiredImage, bool, error) {
		return acquiredImage{}, false, &FetchError{Status: 404, Body: "nope"}
	}
	never := func(context.Context) (acquiredImage, bool, error) {
		t.Fatal("source after an error must not run")
		return acquiredImage{}, false, nil
	}

	_, err := firstImage(context.Background(), boom, never)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 404 {
		t.Fatalf("expected FetchError(404), got %v", err)
	}
}

func TestImageFromProviderGating(t *testing.T) {
	// No API key configured: the provider source must skip, regardless of
	// the requested provider.
	app := New(Config{SessionSecret: "s"})
	log := &testLogger{}

	for _, provider := range []string{"", "openai", "stability"} {
		_, ok, err := app.imageFromProvider(log, provider, "a prompt")(context.Background())
		if err != nil || ok {
			t.Errorf("provider %q without key: ok=%v err=%v, want skip", provider, ok, err)
		}
	}

	// Empty prompt skips even with a key.
	app = New(Config{SessionSecret: "s", OpenAIAPIKey: "k"})
	_, ok, err := app.imageFromProvider(log, "", "")(context.Background())
	if err != nil || ok {
		t.Errorf("empty prompt: ok=%v err=%v, want skip", ok, err)
	}
}

func TestImageFromProviderSoftFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"no capacity"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	app := New(Config{SessionSecret: "s", OpenAIAPIKey: "k", OpenAIAPIURL: srv.URL})
	log := &testLogger{}

	_, ok, err := app.imageFromProvider(log, "openai", "a prompt")(context.Background())
	if err != nil {
		t.Fatalf("provider failure must not abort: %v", err)
	}
	if ok {
		t.Error("provider failure must fall through")
	}
	if len(log.warnings) == 0 {
		t.Error("provider failure should be logged")
	}
}

func TestAcquireImagePlaceholderFallback(t *testing.T) {
	placeholder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("placeholder-bytes"))
	}))
	defer placeholder.Close()

	app := New(Config{SessionSecret: "s", PlaceholderURL: placeholder.URL + "/1200x630/0b7285/ffffff"})
	img, err := app.acquireImage(context.Background(), &testLogger{}, "", "", "cover", "")
	if err != nil {
		t.Fatalf("acquireImage failed: %v", err)
	}
	if string(img.bytes) != "placeholder-bytes" || img.contentType != "image/png" {
		t.Errorf("img = %q %q", img.bytes, img.contentType)
	}
}

func TestAcquireContentPriority(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "generated body"}}},
		})
	}))
	defer chat.Close()

	app := New(Config{SessionSecret: "s", OpenAIAPIKey: "k", OpenAIAPIURL: chat.URL})
	log := &testLogger{}
	ctx := context.Background()

	// Explicit body text wins over the provider.
	if got := app.acquireContent(ctx, log, "T", "", "verbatim", stubBody("T")); got != "verbatim" {
		t.Errorf("content = %q, want verbatim body", got)
	}

	// Provider next.
	if got := app.acquireContent(ctx, log, "T", "p", "", stubBody("T")); got != "generated body" {
		t.Errorf("content = %q, want provider output", got)
	}

	// Stub when the provider is unavailable.
	app = New(Config{SessionSecret: "s"})
	if got := app.acquireContent(ctx, log, "T", "p", "", stubBody("T")); got != stubBody("T") {
		t.Errorf("content = %q, want stub", got)
	}
}

func TestAcquireContentProviderFailureFallsBack(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusInternalServerError)
	}))
	defer chat.Close()

	app := New(Config{SessionSecret: "s", OpenAIAPIKey: "k", OpenAIAPIURL: chat.URL})
	log := &testLogger{}

	got := app.acquireContent(context.Background(), log, "T", "p", "", stubBody("T"))
	if got != stubBody("T") {
		t.Errorf("content = %q, want stub fallback", got)
	}
	if len(log.warnings) == 0 {
		t.Error("provider failure should be logged")
	}
}
