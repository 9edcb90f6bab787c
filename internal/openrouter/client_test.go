package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	c, err := New(Config{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		RequestDelay:  0,
		MaxRetries:    maxRetries,
		BackoffFactor: 2.0,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.sleep = func(time.Duration) {}
	c.jitter = func() float64 { return 0.1 }
	return c
}

func chatOK(content string) string {
	return `{"choices":[{"message":{"content":` + jsonString(content) + `}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("got %v, want ErrMissingAPIKey", err)
	}
}

func TestChatWithImages_Success(t *testing.T) {
	var seen struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL *struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	var seenAuth, seenReferer, seenTitle string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		seenAuth = r.Header.Get("Authorization")
		seenReferer = r.Header.Get("HTTP-Referer")
		seenTitle = r.Header.Get("X-Title")
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Write([]byte(chatOK("# Extracted")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 3)
	out, err := c.ChatWithImages(context.Background(), "google/gemma-3-27b-it:free", "Extract this page.", [][]byte{[]byte("png-bytes"), []byte("more-png")}, 0)
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if out != "# Extracted" {
		t.Fatalf("unexpected content %q", out)
	}
	if seenAuth != "Bearer test-key" {
		t.Fatalf("auth header %q", seenAuth)
	}
	if seenReferer == "" || seenTitle == "" {
		t.Fatalf("descriptive headers missing: referer=%q title=%q", seenReferer, seenTitle)
	}
	if seen.Model != "google/gemma-3-27b-it:free" || seen.MaxTokens != 4000 || seen.Temperature != 0.1 {
		t.Fatalf("payload basics wrong: %+v", seen)
	}
	if len(seen.Messages) != 1 || seen.Messages[0].Role != "user" {
		t.Fatalf("expected single user message, got %+v", seen.Messages)
	}
	content := seen.Messages[0].Content
	if len(content) != 3 {
		t.Fatalf("expected text part + 2 images in one call, got %d parts", len(content))
	}
	if content[0].Type != "text" || content[0].Text != "Extract this page." {
		t.Fatalf("first part not the prompt: %+v", content[0])
	}
	for _, part := range content[1:] {
		if part.Type != "image_url" || part.ImageURL == nil || !strings.HasPrefix(part.ImageURL.URL, "data:image/png;base64,") {
			t.Fatalf("image part malformed: %+v", part)
		}
	}
}

func TestChatWithImages_RetriesOn429ThenFails(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 3)
	_, err := c.ChatWithImages(context.Background(), "m", "p", [][]byte{[]byte("x")}, 0)

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("got %v, want *RateLimitError", err)
	}
	if rle.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", rle.Attempts)
	}
	if calls != 4 {
		t.Fatalf("server saw %d calls, want initial + 3 retries = 4", calls)
	}
}

func TestChatWithImages_RecoversAfter429(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatOK("recovered")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 3)
	out, err := c.ChatWithImages(context.Background(), "m", "p", [][]byte{[]byte("x")}, 0)
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("content %q", out)
	}
	if calls != 3 {
		t.Fatalf("server saw %d calls, want 3", calls)
	}
}

func TestChatWithImages_ServerErrorNotRetried(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 3)
	_, err := c.ChatWithImages(context.Background(), "m", "p", [][]byte{[]byte("x")}, 0)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("got %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status %d", httpErr.StatusCode)
	}
	if calls != 1 {
		t.Fatalf("500 must not be retried, server saw %d calls", calls)
	}
}

func TestChatWithImages_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 3)
	_, err := c.ChatWithImages(context.Background(), "m", "p", [][]byte{[]byte("x")}, 0)

	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("got %v, want *MalformedResponseError", err)
	}
}

func TestBackoffDelay_Monotone(t *testing.T) {
	c := newTestClient(t, "http://unused", 5)

	var prev time.Duration
	for attempt := 0; attempt < 5; attempt++ {
		d := c.backoffDelay(attempt)
		floor := time.Duration(math.Pow(2.0, float64(attempt)) * float64(time.Second))
		if d < floor {
			t.Errorf("attempt %d: delay %v below backoff floor %v (jitter may only add)", attempt, d, floor)
		}
		if d <= prev {
			t.Errorf("attempt %d: delay %v not greater than previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":[{"id":"google/gemma-3-27b-it:free","name":"Gemma 3"},{"id":"openai/gpt-4o-mini"}]}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 0)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0].ID != "google/gemma-3-27b-it:free" {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestListModels_HTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 0)
	_, err := c.ListModels(context.Background())
	var mle *ModelListError
	if !errors.As(err, &mle) {
		t.Fatalf("got %v, want *ModelListError", err)
	}
}
