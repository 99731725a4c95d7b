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

// GeminiAdapter talks to the Gemini HTTP API directly with net/http.
// Used for both embeddings (embedContent) and summarization
// (generateContent).
type GeminiAdapter struct {
	APIKey string
	Model  string // summarization/generation model, e.g. "gemini-2.5-flash"
	Client *http.Client
}

// NewGeminiAdapter builds a GeminiAdapter with a 30-second client
// timeout; callers additionally cancel via ctx.
func NewGeminiAdapter(apiKey, model string) *GeminiAdapter {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiAdapter{APIKey: apiKey, Model: model, Client: &http.Client{Timeout: 30 * time.Second}}
}

type geminiContentPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiContentPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *GeminiAdapter) Summarize(ctx context.Context, text string) (string, error) {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", g.Model, g.APIKey)

	prompt := "Summarize the following email in at most two sentences. " +
		"If it is promotional mail, reply with a single line naming the sender. " +
		"Be concise and do not truncate mid-sentence.\n\nEMAIL:\n" + text + "\n\nSUMMARY:"

	payload := geminiGenerateRequest{Contents: []geminiContent{{Parts: []geminiContentPart{{Text: prompt}}}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ai: marshal gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: call gemini: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var parsed geminiGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ai: decode gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "gemini request failed"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("ai: gemini %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("ai: gemini returned no candidates")
	}
	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Embed calls Gemini's embedContent endpoint with the embedding-001
// model, which returns a 768-dimension vector matching EmbeddingDims.
func (g *GeminiAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	const embedModel = "models/embedding-001"
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/%s:embedContent?key=%s", embedModel, g.APIKey)

	payload := geminiEmbedRequest{
		Model:   embedModel,
		Content: geminiContent{Parts: []geminiContentPart{{Text: text}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: call gemini embed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var parsed geminiEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("ai: decode embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "gemini embed failed"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("ai: gemini embed %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("ai: gemini returned empty embedding")
	}
	return parsed.Embedding.Values, nil
}
