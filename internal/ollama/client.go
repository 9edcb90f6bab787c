package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/local/pdf2md/internal/metrics"
)

const defaultHost = "http://localhost:11434"

// Ollama runs locally and is not rate limited, so calls go out directly and
// may carry several page images at once.
type Client struct {
	http *http.Client
	host string
}

// New builds a client for the given Ollama host. Empty host falls back to
// the local default.
func New(host string) *Client {
	if host == "" {
		host = defaultHost
	}
	return &Client{
		http: &http.Client{Timeout: 120 * time.Second},
		host: strings.TrimRight(host, "/"),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Chat sends a prompt plus image attachments to a local vision model and
// returns the generated text.
func (c *Client) Chat(ctx context.Context, model, prompt string, images [][]byte) (string, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	payload := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt, Images: encoded}},
		Stream:   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	dur := time.Since(start)
	if err != nil {
		metrics.ObserveRequest("ollama", model, "failed", dur)
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.ObserveRequest("ollama", model, "failed", dur)
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var r chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		metrics.ObserveRequest("ollama", model, "malformed", dur)
		return "", fmt.Errorf("decode response: %w", err)
	}
	metrics.ObserveRequest("ollama", model, "success", dur)
	return r.Message.Content, nil
}
