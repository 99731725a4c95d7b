package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaAdapter implements Adapter against a local Ollama instance
// (raw net/http POST to /api/generate with stream:false). Used as the
// offline fallback when Gemini is unreachable or over quota.
type OllamaAdapter struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
	Client         *http.Client
}

// NewOllamaAdapter builds an OllamaAdapter, defaulting any blank
// argument.
func NewOllamaAdapter(baseURL, model, embeddingModel string) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}
	return &OllamaAdapter{BaseURL: baseURL, Model: model, EmbeddingModel: embeddingModel, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (o *OllamaAdapter) Summarize(ctx context.Context, text string) (string, error) {
	prompt := "Summarize the following email in at most two sentences, concisely:\n\n" + text + "\n\nSUMMARY:"

	payload := map[string]interface{}{
		"model":  o.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.3,
			"num_predict": 100,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ai: marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: call ollama: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai: ollama %d: %s", resp.StatusCode, string(respBody))
	}
	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("ai: decode ollama response: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// Embed calls Ollama's /api/embeddings endpoint. The dimensionality
// depends on EmbeddingModel; callers that require EmbeddingDims must
// pick a model that produces it, or pad/truncate is rejected as an
// IntegrityFailure upstream rather than silently reshaping the vector.
func (o *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]interface{}{
		"model":  o.EmbeddingModel,
		"prompt": text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal ollama embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai: build ollama embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: call ollama embed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai: ollama embed %d: %s", resp.StatusCode, string(respBody))
	}
	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("ai: decode ollama embed response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ai: ollama returned empty embedding")
	}
	return result.Embedding, nil
}
