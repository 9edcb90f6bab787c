package modelmap

import "strings"

// DefaultRemoteVision is the fallback OpenRouter vision model used whenever a
// local model has no known equivalent. Free tier and vision-capable.
const DefaultRemoteVision = "google/gemma-3-27b-it:free"

// remoteEquivalents maps Ollama model names to their OpenRouter counterparts.
var remoteEquivalents = map[string]string{
	"gemma3:12b":    "google/gemma-3-27b-it:free",
	"gemma3:4b":     "google/gemma-3-27b-it:free",
	"llama3":        "meta-llama/llama-3-8b-instruct",
	"llama3:70b":    "meta-llama/llama-3-70b-instruct",
	"vision":        "meta-llama/llama-3.2-11b-vision-instruct:free",
	"claude-vision": "anthropic/claude-3-haiku:beta",
	"gpt4-vision":   "openai/gpt-4o-mini",
}

// Resolve translates a local (Ollama) model id into the OpenRouter model id to
// use for the same job. It never fails: unknown models resolve to
// DefaultRemoteVision.
func Resolve(localModel string) string {
	if strings.HasPrefix(localModel, "gemma") {
		return DefaultRemoteVision
	}
	if remote, ok := remoteEquivalents[localModel]; ok {
		return remote
	}
	return DefaultRemoteVision
}
