package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"capitolbrief/config"
	"capitolbrief/models"
)

func TestFetchNew(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bills" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("since") == "" {
			t.Error("missing since parameter")
		}
		if r.Header.Get("X-API-Key") != "sekrit" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bills": [
			{"bill_id": "HB 1234", "title": "Clean Water Act", "status": "Referred to Committee", "introduced_date": "2026-08-01", "text_url": "https://state.example/hb1234.txt"},
			{"bill_id": "SB 9", "title": "Budget", "status": "Signed by Governor", "introduced_date": "not-a-date"},
			{"title": "orphan row without id"}
		]}`))
	}))
	defer server.Close()

	cfg := &config.Config{
		FeedBaseURL:   server.URL,
		FeedAPIKey:    "sekrit",
		FeedTimeout:   5 * time.Second,
		CanonicalBase: "https://capitolbrief.example",
	}
	client := NewClient(cfg, zap.NewNop())

	bills, err := client.FetchNew(context.Background(), time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("FetchNew error: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("expected 2 bills, got %d", len(bills))
	}

	hb := bills[0]
	if hb.BillID != "HB 1234" {
		t.Fatalf("unexpected bill_id: %s", hb.BillID)
	}
	if hb.Slug != "hb-1234" {
		t.Fatalf("unexpected slug: %s", hb.Slug)
	}
	if hb.CanonicalURL != "https://capitolbrief.example/bills/hb-1234" {
		t.Fatalf("unexpected canonical url: %s", hb.CanonicalURL)
	}
	if hb.TextSource != models.TextSourceNotRequested {
		t.Fatalf("new bills must start as not-requested, got %s", hb.TextSource)
	}
	if hb.StatusNorm != "in-committee" {
		t.Fatalf("unexpected status_norm: %s", hb.StatusNorm)
	}
	if hb.IntroducedDate == nil || hb.IntroducedDate.Format("2006-01-02") != "2026-08-01" {
		t.Fatalf("unexpected introduced date: %v", hb.IntroducedDate)
	}

	sb := bills[1]
	if sb.StatusNorm != "enacted" {
		t.Fatalf("unexpected status_norm: %s", sb.StatusNorm)
	}
	if sb.IntroducedDate != nil {
		t.Fatalf("unparseable date should be dropped, got %v", sb.IntroducedDate)
	}
}

func TestFetchNewUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := &config.Config{FeedBaseURL: server.URL, FeedTimeout: 5 * time.Second}
	client := NewClient(cfg, zap.NewNop())

	if _, err := client.FetchNew(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for non-200 feed response")
	}
}

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Signed by Governor":      "enacted",
		"Vetoed":                  "vetoed",
		"Passed Senate":           "passed",
		"Referred to Committee":   "in-committee",
		"Introduced":              "introduced",
		"":                        "unknown",
		"Something else entirely": "active",
	}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	if got := Slugify(" HB 12.34 "); got != "hb-12-34" {
		t.Fatalf("unexpected slug: %s", got)
	}
}
