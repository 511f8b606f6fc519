package textsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"capitolbrief/config"
	"capitolbrief/models"
)

// billTextSelectors are tried in order against the canonical page; the first
// selector with non-trivial text wins.
var billTextSelectors = []string{
	"#bill_all",
	".bill-text",
	"pre",
	"article",
	"main",
}

// ScrapeSource scrapes the bill's canonical source page as a last resort.
type ScrapeSource struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewScrapeSource creates the scraping source.
func NewScrapeSource(cfg *config.Config, logger *zap.Logger) *ScrapeSource {
	return &ScrapeSource{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: cfg.TextTimeout},
	}
}

// Name implements Source.
func (s *ScrapeSource) Name() string {
	return models.TextSourceScraped
}

// Fetch implements Source.
func (s *ScrapeSource) Fetch(ctx context.Context, bill *models.Bill) (string, error) {
	if bill.CanonicalURL == "" {
		return "", nil
	}
	s.Logger.Debug("Scraping canonical bill page", zap.String("url", bill.CanonicalURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bill.CanonicalURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "capitolbrief/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("canonical page returned status %d", resp.StatusCode)
	}
	return extractHTMLText(resp.Body)
}

// extractHTMLText pulls the main text block out of an HTML document.
func extractHTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, sel := range billTextSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := collapseWhitespace(node.Text())
		if text != "" {
			return text, nil
		}
	}

	doc.Find("script, style, nav, header, footer").Remove()
	return collapseWhitespace(doc.Find("body").Text()), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
