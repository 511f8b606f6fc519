package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"capitolbrief/config"
	"capitolbrief/models"
)

const systemPrompt = `You are a legislative analyst writing for a general audience.
Given the full text of a bill, respond with a single JSON object:
{"overview": "...", "detailed": "...", "short_text": "...", "relevance_score": 0-10, "tags": ["..."]}
The short_text is a social post of at most 280 characters and must mention the bill's identifier
and link to its page. Never answer with placeholders; if the text is unclear, summarize what is there.`

// Result is the parsed output of one summarization call.
type Result struct {
	Overview       string   `json:"overview"`
	Detailed       string   `json:"detailed"`
	ShortText      string   `json:"short_text"`
	RelevanceScore float64  `json:"relevance_score"`
	Tags           []string `json:"tags"`
}

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates a summarization client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: cfg.SummarizerTimeout},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize produces the derived content fields for a bill with accepted full text.
// The response is untrusted; callers must run it through Validate.
func (c *Client) Summarize(ctx context.Context, bill *models.Bill) (*Result, error) {
	userPayload, err := json.Marshal(map[string]any{
		"bill_id":       bill.BillID,
		"title":         bill.Title,
		"status":        bill.Status,
		"canonical_url": bill.CanonicalURL,
		"full_text":     bill.FullText,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal summarizer payload: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.Config.SummarizerModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": string(userPayload)},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.SummarizerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.SummarizerAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summarizer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("summarizer error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("summarizer returned no choices")
	}

	var res Result
	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, fmt.Errorf("parse summarizer content: %w", err)
	}

	if res.RelevanceScore < 0 {
		res.RelevanceScore = 0
	}
	if res.RelevanceScore > 10 {
		res.RelevanceScore = 10
	}
	if len(res.Tags) > 3 {
		res.Tags = res.Tags[:3]
	}

	c.Logger.Info("Summarization call completed",
		zap.String("bill_id", bill.BillID),
		zap.Float64("relevance_score", res.RelevanceScore),
		zap.Int("short_text_len", len(res.ShortText)))
	return &res, nil
}
