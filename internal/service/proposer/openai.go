package proposer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOpenAIBaseURL is the public OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

const (
	maxOutputTokens = 1200
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

const systemPrompt = "You are an autonomous operations agent for a student service-hours app. " +
	"Return ONLY valid JSON, not wrapped in markdown, shaped as " +
	`{"actions":[{"title":"","detail":"","actionKind":"","targetEntity":"","targetId":"","diffJson":""}]}. ` +
	"targetId must be the id of a record from the provided context. " +
	"Allowed actionKind values: status_normalization, dedup_metadata, sync_retry, archive_record, " +
	"share_link_change, export_generation, bulk_status_transition. " +
	`If there is nothing to do, return {"actions":[]}.`

// OpenAIBackend generates proposals with the OpenAI Responses API.
type OpenAIBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIBackend creates a backend. An empty baseURL selects
// DefaultOpenAIBaseURL.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAIBackend{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []responsesInput `json:"input"`
	MaxOutputTokens int              `json:"max_output_tokens"`
	Text            responsesText    `json:"text"`
}

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesText struct {
	Format struct {
		Type string `json:"type"`
	} `json:"format"`
}

type responsesResponse struct {
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate sends the bounded context and returns the concatenated output text.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req.Context)
	if err != nil {
		return "", fmt.Errorf("proposer: marshal context: %w", err)
	}

	body := responsesRequest{
		Model: req.Model,
		Input: []responsesInput{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		MaxOutputTokens: maxOutputTokens,
	}
	body.Text.Format.Type = "json_object"

	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("proposer: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/responses", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("proposer: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("proposer: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("proposer: read response: %w", err)
	}

	var result responsesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("proposer: unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("proposer: openai error: %s: %s", result.Error.Code, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proposer: unexpected status %d", resp.StatusCode)
	}
	if result.Status != "" && result.Status != "completed" {
		return "", fmt.Errorf("proposer: response status %q", result.Status)
	}

	var parts []string
	for _, out := range result.Output {
		if out.Type != "message" {
			continue
		}
		for _, c := range out.Content {
			if c.Type == "output_text" && c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
