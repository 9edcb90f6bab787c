package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdf2md/internal/metrics"
	"github.com/local/pdf2md/internal/ratelimit"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"

	// Vision inference on large pages is slow; the chat call gets a generous
	// timeout while the models listing stays short.
	chatTimeout   = 120 * time.Second
	modelsTimeout = 30 * time.Second

	defaultMaxTokens = 4000
	temperature      = 0.1

	refererHeader = "https://github.com/pdf2md-ollama"
	titleHeader   = "PDF2MD Ollama"

	errorSnippetLimit = 400
)

// Config holds the knobs for a single job run. Immutable after construction.
type Config struct {
	APIKey        string
	BaseURL       string
	RequestDelay  time.Duration // minimum spacing between requests
	MaxRetries    int           // retries on 429, not counting the first attempt
	BackoffFactor float64       // exponential backoff multiplier, > 1.0
}

// ErrMissingAPIKey is reported before any network call is attempted.
var ErrMissingAPIKey = errors.New("OpenRouter API key is required: set OPENROUTER_API_KEY")

// Client talks to the OpenRouter chat-completions API with per-request rate
// limiting and bounded exponential-backoff retry on throttling.
type Client struct {
	http          *http.Client
	baseURL       string
	apiKey        string
	limiter       *ratelimit.Limiter
	maxRetries    int
	backoffFactor float64

	// injectable for tests
	sleep  func(time.Duration)
	jitter func() float64
}

// New validates the credential and builds a client. The rate limiter starts
// fresh: the first request never waits.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffFactor <= 1.0 {
		cfg.BackoffFactor = 2.0
	}
	return &Client{
		http:          &http.Client{Timeout: chatTimeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        cfg.APIKey,
		limiter:       ratelimit.New(cfg.RequestDelay),
		maxRetries:    cfg.MaxRetries,
		backoffFactor: cfg.BackoffFactor,
		sleep:         time.Sleep,
		jitter:        func() float64 { return 0.1 + rand.Float64()*0.4 },
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []messagePart `json:"content"`
}

type messagePart struct {
	Type     string    `json:"type"`                // "text" | "image_url"
	Text     string    `json:"text,omitempty"`      // when Type == "text"
	ImageURL *imageURL `json:"image_url,omitempty"` // when Type == "image_url"
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Model describes one entry of the OpenRouter model catalog.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// ChatWithImages sends a prompt plus one or more PNG page images to a vision
// model and returns the generated text. All images go out in a single call.
// Only throttling (429) is retried; any other failure surfaces immediately.
func (c *Client) ChatWithImages(ctx context.Context, model, prompt string, images [][]byte, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	content := make([]messagePart, 0, len(images)+1)
	content = append(content, messagePart{Type: "text", Text: prompt})
	for _, img := range images {
		content = append(content, messagePart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	payload := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		c.limiter.Wait()

		start := time.Now()
		text, status, err := c.postChat(ctx, body)
		dur := time.Since(start)

		switch {
		case err == nil:
			metrics.ObserveRequest("openrouter", model, "success", dur)
			return text, nil

		case status == http.StatusTooManyRequests, status == 0 && mentionsThrottle(err):
			metrics.ObserveRequest("openrouter", model, "rate_limited", dur)
			if attempt >= c.maxRetries {
				return "", &RateLimitError{Attempts: c.maxRetries}
			}
			delay := c.backoffDelay(attempt)
			log.Warn().
				Int("attempt", attempt+1).
				Int("max_attempts", c.maxRetries+1).
				Str("model", model).
				Msg(fmt.Sprintf("rate limited (429), retrying in %.1fs", delay.Seconds()))
			metrics.IncRetry()
			c.sleep(delay)

		default:
			result := "failed"
			var malformed *MalformedResponseError
			if errors.As(err, &malformed) {
				result = "malformed"
			}
			metrics.ObserveRequest("openrouter", model, result, dur)
			return "", err
		}
	}

	// unreachable: the final 429 returns inside the loop
	return "", &RateLimitError{Attempts: c.maxRetries}
}

// postChat issues one chat-completions call. The returned status is the HTTP
// status code when a response was received, 0 on transport failure.
func (c *Client) postChat(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		var r chatResponse
		msg := "no error message"
		if json.Unmarshal(respBody, &r) == nil && r.Error != nil && r.Error.Message != "" {
			msg = r.Error.Message
		}
		return "", resp.StatusCode, &HTTPError{StatusCode: resp.StatusCode, Body: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), errorSnippetLimit)}
	}

	var r chatResponse
	if err := json.Unmarshal(respBody, &r); err != nil {
		return "", resp.StatusCode, &MalformedResponseError{Reason: err.Error()}
	}
	if len(r.Choices) == 0 {
		return "", resp.StatusCode, &MalformedResponseError{Reason: "missing choices"}
	}
	return r.Choices[0].Message.Content, resp.StatusCode, nil
}

// ListModels fetches the catalog of available models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	cctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, &ModelListError{Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ModelListError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ModelListError{Err: &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), errorSnippetLimit)}}
	}

	var r modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, &ModelListError{Err: err}
	}
	return r.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", refererHeader)
	req.Header.Set("X-Title", titleHeader)
}

// backoffDelay computes factor^attempt seconds plus a small random jitter so
// that parallel jobs sharing a key do not resynchronize their retries.
func (c *Client) backoffDelay(attempt int) time.Duration {
	secs := math.Pow(c.backoffFactor, float64(attempt)) + c.jitter()
	return time.Duration(secs * float64(time.Second))
}

// mentionsThrottle is a best-effort classification of transport-level errors
// that carry a 429 in their text (e.g. proxies that abort the response). HTTP
// responses are classified by status code, never by string inspection.
func mentionsThrottle(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
