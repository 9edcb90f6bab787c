package backend

import (
	"context"
	"fmt"

	"github.com/local/pdf2md/internal/ollama"
	"github.com/local/pdf2md/internal/openrouter"
)

// Kind selects which inference backend a job runs against.
type Kind string

const (
	Local  Kind = "local"      // Ollama: multi-image capable, not rate limited
	Remote Kind = "openrouter" // OpenRouter: metered, rate limited, one page per call
)

// ParseKind validates a backend name from the CLI.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Local, Remote:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown backend %q (want %q or %q)", s, Local, Remote)
	}
}

// Generator is the single capability the job runner needs from a backend.
type Generator interface {
	Name() string
	Generate(ctx context.Context, model, prompt string, images [][]byte) (string, error)
}

// Ollama adapts the local client to the Generator interface.
type Ollama struct {
	Client *ollama.Client
}

func (o *Ollama) Name() string { return string(Local) }

func (o *Ollama) Generate(ctx context.Context, model, prompt string, images [][]byte) (string, error) {
	return o.Client.Chat(ctx, model, prompt, images)
}

// OpenRouter adapts the remote client to the Generator interface.
type OpenRouter struct {
	Client    *openrouter.Client
	MaxTokens int
}

func (o *OpenRouter) Name() string { return string(Remote) }

func (o *OpenRouter) Generate(ctx context.Context, model, prompt string, images [][]byte) (string, error) {
	return o.Client.ChatWithImages(ctx, model, prompt, images, o.MaxTokens)
}
