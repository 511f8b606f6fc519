package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"capitolbrief/config"
)

// ErrDuplicateContent is returned when the platform rejects a post because the
// exact same content was already published (e.g. by a prior crashed run that
// posted before committing).
var ErrDuplicateContent = errors.New("platform rejected duplicate content")

// Client posts generated content to the social platform.
type Client struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates a publish client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: cfg.PublishTimeout},
	}
}

type postResponse struct {
	PostURL string `json:"post_url"`
	URL     string `json:"url"`
}

type postError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Post publishes the content and returns the resulting post URL.
func (c *Client) Post(ctx context.Context, content string) (string, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return "", fmt.Errorf("marshal post body: %w", err)
	}

	u := strings.TrimRight(c.Config.PublishBaseURL, "/") + "/api/v1/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.PublishToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		var pe postError
		_ = json.Unmarshal(raw, &pe)
		if pe.Code == "duplicate_content" || strings.Contains(strings.ToLower(pe.Error), "duplicate") {
			return "", ErrDuplicateContent
		}
		return "", fmt.Errorf("platform error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var pr postResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	postURL := pr.PostURL
	if postURL == "" {
		postURL = pr.URL
	}
	if postURL == "" {
		return "", fmt.Errorf("platform response missing post url")
	}

	c.Logger.Info("Post published", zap.String("post_url", postURL))
	return postURL, nil
}
