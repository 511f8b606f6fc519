package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"capitolbrief/config"
	"capitolbrief/models"
)

// Client pulls newly published bills from the legislature feed API.
type Client struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates a feed client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: cfg.FeedTimeout},
	}
}

type feedBill struct {
	BillID         string `json:"bill_id"`
	Title          string `json:"title"`
	ShortTitle     string `json:"short_title"`
	Status         string `json:"status"`
	IntroducedDate string `json:"introduced_date"`
	TextURL        string `json:"text_url"`
	StateLink      string `json:"state_link"`
}

type feedResponse struct {
	Bills []feedBill `json:"bills"`
}

// FetchNew returns bills whose official text became available since the given time.
func (c *Client) FetchNew(ctx context.Context, since time.Time) ([]*models.Bill, error) {
	u := fmt.Sprintf("%s/bills?since=%s", strings.TrimRight(c.Config.FeedBaseURL, "/"),
		url.QueryEscape(since.UTC().Format(time.RFC3339)))
	log := c.Logger.With(zap.String("url", u))
	log.Debug("Calling legislature feed API.")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.Config.FeedAPIKey != "" {
		req.Header.Set("X-API-Key", c.Config.FeedAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	bills := make([]*models.Bill, 0, len(fr.Bills))
	for _, fb := range fr.Bills {
		if fb.BillID == "" {
			log.Warn("Feed entry without bill_id skipped")
			continue
		}
		bill := &models.Bill{
			BillID:     fb.BillID,
			Title:      fb.Title,
			ShortTitle: fb.ShortTitle,
			Status:     fb.Status,
			StatusNorm: NormalizeStatus(fb.Status),
			Slug:       Slugify(fb.BillID),
			TextURL:    fb.TextURL,
			TextSource: models.TextSourceNotRequested,
		}
		if fb.StateLink != "" {
			bill.CanonicalURL = fb.StateLink
		} else {
			bill.CanonicalURL = fmt.Sprintf("%s/bills/%s", strings.TrimRight(c.Config.CanonicalBase, "/"), bill.Slug)
		}
		if fb.IntroducedDate != "" {
			if d, err := time.Parse("2006-01-02", fb.IntroducedDate); err == nil {
				bill.IntroducedDate = &d
			} else {
				log.Warn("Unparseable introduced_date", zap.String("bill_id", fb.BillID), zap.String("date", fb.IntroducedDate))
			}
		}
		bills = append(bills, bill)
	}

	log.Info("Feed fetch completed", zap.Int("count", len(bills)))
	return bills, nil
}

// Slugify turns a bill identifier into a canonical URL slug.
func Slugify(billID string) string {
	s := strings.ToLower(strings.TrimSpace(billID))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}

// NormalizeStatus maps feed status strings onto a small fixed vocabulary.
func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case strings.Contains(s, "signed"), strings.Contains(s, "enacted"), strings.Contains(s, "chaptered"):
		return "enacted"
	case strings.Contains(s, "veto"):
		return "vetoed"
	case strings.Contains(s, "passed"), strings.Contains(s, "engrossed"), strings.Contains(s, "enrolled"):
		return "passed"
	case strings.Contains(s, "committee"), strings.Contains(s, "referred"):
		return "in-committee"
	case strings.Contains(s, "introduced"), strings.Contains(s, "filed"), strings.Contains(s, "prefiled"):
		return "introduced"
	case s == "":
		return "unknown"
	default:
		return "active"
	}
}
