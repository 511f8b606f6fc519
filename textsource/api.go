package textsource

import (
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

// APISource fetches bill text from the structured text API endpoint.
// It is the first and preferred link of the chain.
type APISource struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewAPISource creates the text-API source.
func NewAPISource(cfg *config.Config, logger *zap.Logger) *APISource {
	return &APISource{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: cfg.TextTimeout},
	}
}

// Name implements Source.
func (s *APISource) Name() string {
	return models.TextSourceFeedAPI
}

type textResponse struct {
	BillID   string `json:"bill_id"`
	FullText string `json:"full_text"`
}

// Fetch implements Source.
func (s *APISource) Fetch(ctx context.Context, bill *models.Bill) (string, error) {
	u := fmt.Sprintf("%s/bills/%s/text", strings.TrimRight(s.Config.TextAPIBaseURL, "/"), bill.BillID)
	s.Logger.Debug("Calling bill text API", zap.String("url", u))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	if s.Config.FeedAPIKey != "" {
		req.Header.Set("X-API-Key", s.Config.FeedAPIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("text api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("text api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr textResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode text api response: %w", err)
	}
	return tr.FullText, nil
}
