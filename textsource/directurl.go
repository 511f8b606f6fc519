package textsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"capitolbrief/config"
	"capitolbrief/models"
)

// DirectURLSource downloads the bill text from a directly published URL,
// if the feed supplied one. It only runs for well-formed absolute URLs.
type DirectURLSource struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewDirectURLSource creates the direct-URL source.
func NewDirectURLSource(cfg *config.Config, logger *zap.Logger) *DirectURLSource {
	return &DirectURLSource{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: cfg.TextTimeout},
	}
}

// Name implements Source.
func (s *DirectURLSource) Name() string {
	return models.TextSourceDirectURL
}

// Fetch implements Source.
func (s *DirectURLSource) Fetch(ctx context.Context, bill *models.Bill) (string, error) {
	if bill.TextURL == "" {
		return "", nil
	}
	u, err := url.Parse(bill.TextURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		s.Logger.Warn("Feed supplied a malformed text URL, skipping direct download",
			zap.String("bill_id", bill.BillID), zap.String("text_url", bill.TextURL))
		return "", nil
	}

	s.Logger.Debug("Downloading bill text from direct URL", zap.String("url", bill.TextURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bill.TextURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("direct url request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("direct url returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read direct url body: %w", err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "html") {
		// Some states publish the "plain text" link as an HTML page.
		return extractHTMLText(strings.NewReader(string(data)))
	}
	return string(data), nil
}
