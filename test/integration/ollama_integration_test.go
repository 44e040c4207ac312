package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/llm/ollama"

	"github.com/stretchr/testify/require"
)

// TestOllamaGenerate talks to a local Ollama server. Set OLLAMA_INTEGRATION=true
// and pull the model first.
func TestOllamaGenerate(t *testing.T) {
	if os.Getenv("OLLAMA_INTEGRATION") != "true" {
		t.Skip("Skipping integration test: OLLAMA_INTEGRATION not set")
	}

	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "llama3"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	provider := ollama.NewOllamaProvider(baseURL, model)

	t.Run("Generate", func(t *testing.T) {
		out, err := provider.Generate(ctx, "Reply with the single word: pong", llm.WithTemperature(0))
		require.NoError(t, err)
		require.NotEmpty(t, strings.TrimSpace(out))
		t.Logf("Response: %s", out)
	})

	t.Run("JSON mode", func(t *testing.T) {
		out, err := provider.Generate(ctx, `Return {"intent": "chat"} and nothing else.`, llm.WithJSON())
		require.NoError(t, err)
		require.Contains(t, out, "intent")
	})
}
