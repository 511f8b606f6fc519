package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"capitolbrief/config"
	"capitolbrief/models"
	"capitolbrief/publisher"
	"capitolbrief/summarizer"
	"capitolbrief/textsource"
)

type fakeFeed struct {
	bills []*models.Bill
	err   error
}

func (f *fakeFeed) FetchNew(ctx context.Context, since time.Time) ([]*models.Bill, error) {
	return f.bills, f.err
}

type summarizerStub struct {
	res *summarizer.Result
	err error
}

// fakeSummarizer replays a queue of canned responses; the last entry repeats.
type fakeSummarizer struct {
	queue []summarizerStub
	calls int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, bill *models.Bill) (*summarizer.Result, error) {
	i := f.calls
	f.calls++
	if i >= len(f.queue) {
		i = len(f.queue) - 1
	}
	return f.queue[i].res, f.queue[i].err
}

type fakePoster struct {
	post  func(content string) (string, error)
	calls []string
}

func (f *fakePoster) Post(ctx context.Context, content string) (string, error) {
	f.calls = append(f.calls, content)
	if f.post == nil {
		return "https://social.example/p/1", nil
	}
	return f.post(content)
}

type fakeArchiver struct {
	keys []string
}

func (f *fakeArchiver) Archive(ctx context.Context, key string, data []byte) (string, error) {
	f.keys = append(f.keys, key)
	return "https://archive.example/" + key, nil
}

type fakeTextSource struct {
	text string
	err  error
}

func (f *fakeTextSource) Fetch(ctx context.Context, bill *models.Bill) (string, error) {
	return f.text, f.err
}

func (f *fakeTextSource) Name() string { return models.TextSourceFeedAPI }

func testConfig() *config.Config {
	return &config.Config{
		FeedWindow:       48 * time.Hour,
		MinTextLength:    100,
		MinSummaryLength: 50,
		PublishTimeout:   5 * time.Second,
		MaxPostAttempts:  3,
		PublishWindow:    24 * time.Hour,
	}
}

func validResult(slug string) *summarizer.Result {
	return &summarizer.Result{
		Overview:       strings.Repeat("The bill changes state permitting rules for water utilities. ", 2),
		Detailed:       strings.Repeat("Detailed section-by-section analysis of the permitting changes. ", 3),
		ShortText:      "Water utility permitting overhaul clears committee, full breakdown at " + slug + " with timeline.",
		RelevanceScore: 7,
		Tags:           []string{"water", "utilities"},
	}
}

func placeholderResult() *summarizer.Result {
	return &summarizer.Result{
		Overview:  strings.Repeat("Overview text long enough to pass the length check alone. ", 2),
		ShortText: "No summary available for this bill yet, check back later for the full breakdown here.",
	}
}

func feedBill(billID, slug string) *models.Bill {
	return &models.Bill{
		BillID:       billID,
		Title:        "An act relating to water utilities",
		Slug:         slug,
		CanonicalURL: "https://legis.example/bills/" + slug,
		Status:       "Introduced",
		StatusNorm:   "introduced",
		TextSource:   models.TextSourceNotRequested,
	}
}

func newTestPipeline(t *testing.T, db *gorm.DB, cfg *config.Config,
	feed FeedSource, source textsource.Source, summ Summarizer, poster Poster, archiver Archiver) *Pipeline {
	t.Helper()
	log := zap.NewNop()
	store := NewBillStore(db, log)
	chain := textsource.NewChain(log, cfg.MinTextLength, source)
	return NewPipeline(cfg, store, feed, chain, summ, poster, archiver, log)
}

func TestRunOnceFullPass(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	poster := &fakePoster{}
	archiver := &fakeArchiver{}
	p := newTestPipeline(t, db, testConfig(),
		&fakeFeed{bills: []*models.Bill{feedBill("HB 101", "hb-101")}},
		&fakeTextSource{text: strings.Repeat("Section 1. ", 20)},
		&fakeSummarizer{queue: []summarizerStub{{res: validResult("hb-101")}}},
		poster, archiver)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.NewBills != 1 || stats.TextsAccepted != 1 || stats.Summarized != 1 || !stats.Published {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var bill models.Bill
	if err := db.Where("bill_id = ?", "HB 101").First(&bill).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !bill.Published || bill.PostURL == "" || bill.PublishedAt == nil {
		t.Fatalf("publish fields missing: %+v", bill)
	}
	if bill.TextSource != models.TextSourceFeedAPI || bill.ArchiveLink == "" {
		t.Fatalf("text fields missing: %+v", bill)
	}
	if len(archiver.keys) != 1 || archiver.keys[0] != "HB 101.txt" {
		t.Fatalf("archive not written: %v", archiver.keys)
	}
	if len(poster.calls) != 1 || !strings.Contains(poster.calls[0], "hb-101") {
		t.Fatalf("posted content wrong: %v", poster.calls)
	}
}

func TestRunOnceRegeneratesOnceOnRejectedSummary(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	summ := &fakeSummarizer{queue: []summarizerStub{
		{res: placeholderResult()},
		{res: validResult("hb-101")},
	}}
	p := newTestPipeline(t, db, testConfig(),
		&fakeFeed{bills: []*models.Bill{feedBill("HB 101", "hb-101")}},
		&fakeTextSource{text: strings.Repeat("Section 1. ", 20)},
		summ, &fakePoster{}, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summ.calls != 2 {
		t.Fatalf("expected exactly one regeneration, got %d calls", summ.calls)
	}
	if stats.Summarized != 1 || !stats.Published {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var bill models.Bill
	db.Where("bill_id = ?", "HB 101").First(&bill)
	if bill.ProcessingAttempts != 3 { // two summarizer calls plus the publish confirm
		t.Fatalf("expected 3 attempts, got %d", bill.ProcessingAttempts)
	}
}

func TestRunOnceMarksProblematicAfterFailedRegeneration(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	summ := &fakeSummarizer{queue: []summarizerStub{{res: placeholderResult()}}}
	poster := &fakePoster{}
	p := newTestPipeline(t, db, testConfig(),
		&fakeFeed{bills: []*models.Bill{feedBill("HB 101", "hb-101")}},
		&fakeTextSource{text: strings.Repeat("Section 1. ", 20)},
		summ, poster, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summ.calls != 2 {
		t.Fatalf("expected 2 calls then give up, got %d", summ.calls)
	}
	if stats.Problematic != 1 || stats.Published {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(poster.calls) != 0 {
		t.Fatal("problematic bill must never reach the platform")
	}

	var bill models.Bill
	db.Where("bill_id = ?", "HB 101").First(&bill)
	if !bill.Problematic || bill.Summarized || bill.ProblemReason == "" {
		t.Fatalf("problem state wrong: %+v", bill)
	}
}

func TestRunOnceTransientSummarizerErrorLeavesBill(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	summ := &fakeSummarizer{queue: []summarizerStub{{err: errors.New("upstream 503")}}}
	poster := &fakePoster{}
	p := newTestPipeline(t, db, testConfig(),
		&fakeFeed{bills: []*models.Bill{feedBill("HB 101", "hb-101")}},
		&fakeTextSource{text: strings.Repeat("Section 1. ", 20)},
		summ, poster, nil)

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("summarizer outage must not fail the run: %v", err)
	}

	var bill models.Bill
	db.Where("bill_id = ?", "HB 101").First(&bill)
	if bill.Summarized || bill.Problematic {
		t.Fatalf("bill must stay pending for a later pass: %+v", bill)
	}
	if len(poster.calls) != 0 {
		t.Fatal("nothing to publish")
	}
}

func TestRunOnceRejectsTextBelowMinimum(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	summ := &fakeSummarizer{queue: []summarizerStub{{res: validResult("hb-101")}}}
	p := newTestPipeline(t, db, testConfig(),
		&fakeFeed{bills: []*models.Bill{feedBill("HB 101", "hb-101")}},
		&fakeTextSource{text: strings.Repeat("x", 99) + "  "}, // 99 trimmed
		summ, &fakePoster{}, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.TextsAccepted != 0 {
		t.Fatalf("99 chars must not be accepted: %+v", stats)
	}
	if summ.calls != 0 {
		t.Fatal("bill without accepted text must never be summarized")
	}

	var bill models.Bill
	db.Where("bill_id = ?", "HB 101").First(&bill)
	if bill.TextSource != models.TextSourceNone || bill.FullText != "" {
		t.Fatalf("expected exhausted chain state: %+v", bill)
	}
}

func TestRunOnceDuplicateContentMovesToNextCandidate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	now := time.Now()
	seedBill(t, db, "HB X", summarizedBill(now.Add(-1*time.Hour)))
	seedBill(t, db, "HB Y", summarizedBill(now.Add(-2*time.Hour)))

	poster := &fakePoster{post: func(content string) (string, error) {
		if strings.Contains(content, "HB X") {
			return "", publisher.ErrDuplicateContent
		}
		return "https://social.example/p/y", nil
	}}
	p := newTestPipeline(t, db, testConfig(), &fakeFeed{}, &fakeTextSource{}, &fakeSummarizer{}, poster, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !stats.Published || stats.PostURL != "https://social.example/p/y" {
		t.Fatalf("run must continue past the duplicate: %+v", stats)
	}
	if stats.Problematic != 1 {
		t.Fatalf("duplicate must be counted problematic: %+v", stats)
	}

	var x, y models.Bill
	db.Where("bill_id = ?", "HB X").First(&x)
	db.Where("bill_id = ?", "HB Y").First(&y)
	if !x.Problematic || x.Published {
		t.Fatalf("duplicate bill state wrong: %+v", x)
	}
	if !strings.Contains(x.ProblemReason, "duplicate") {
		t.Fatalf("problem reason wrong: %q", x.ProblemReason)
	}
	if !y.Published || y.PostURL != "https://social.example/p/y" {
		t.Fatalf("next candidate not published: %+v", y)
	}
}

func TestRunOnceDailyGuardSkipsPublish(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	recently := time.Now().Add(-2 * time.Hour)
	seedBill(t, db, "HB DONE", func(b *models.Bill) {
		summarizedBill(recently)(b)
		b.Published = true
		b.PostURL = "https://social.example/p/done"
		b.PublishedAt = &recently
	})
	seedBill(t, db, "HB NEXT", summarizedBill(time.Now()))

	poster := &fakePoster{}
	p := newTestPipeline(t, db, testConfig(), &fakeFeed{}, &fakeTextSource{}, &fakeSummarizer{}, poster, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Published || len(poster.calls) != 0 {
		t.Fatalf("guard window must suppress publishing: %+v", stats)
	}

	// Outside the window the candidate goes out.
	aged := time.Now().Add(-25 * time.Hour)
	if err := db.Model(&models.Bill{}).Where("bill_id = ?", "HB DONE").
		Update("published_at", aged).Error; err != nil {
		t.Fatalf("age bill: %v", err)
	}
	stats, err = p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if !stats.Published || len(poster.calls) != 1 {
		t.Fatalf("expected publish after window lapsed: %+v", stats)
	}
}

func TestRunOncePublishFailureKeepsCandidate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedBill(t, db, "HB 101", summarizedBill(time.Now()))

	poster := &fakePoster{post: func(string) (string, error) {
		return "", errors.New("502 bad gateway")
	}}
	p := newTestPipeline(t, db, testConfig(), &fakeFeed{}, &fakeTextSource{}, &fakeSummarizer{}, poster, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("platform outage must not fail the run: %v", err)
	}
	if stats.Published {
		t.Fatalf("unexpected publish: %+v", stats)
	}

	var bill models.Bill
	db.Where("bill_id = ?", "HB 101").First(&bill)
	if bill.Published || bill.Problematic {
		t.Fatalf("bill must stay a candidate below the attempt ceiling: %+v", bill)
	}
	if bill.ProcessingAttempts != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", bill.ProcessingAttempts)
	}
}

func TestRunOncePublishFailureHitsAttemptCeiling(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedBill(t, db, "HB 101", func(b *models.Bill) {
		summarizedBill(time.Now())(b)
		b.ProcessingAttempts = 2
	})

	cfg := testConfig() // ceiling 3: this failure is the third attempt
	poster := &fakePoster{post: func(string) (string, error) {
		return "", errors.New("502 bad gateway")
	}}
	p := newTestPipeline(t, db, cfg, &fakeFeed{}, &fakeTextSource{}, &fakeSummarizer{}, poster, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Problematic != 1 {
		t.Fatalf("expected problematic at ceiling: %+v", stats)
	}

	var bill models.Bill
	db.Where("bill_id = ?", "HB 101").First(&bill)
	if !bill.Problematic || bill.Published {
		t.Fatalf("ceiling state wrong: %+v", bill)
	}
	if bill.ProcessingAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", bill.ProcessingAttempts)
	}
}

func TestRunOnceFeedErrorIsNonFatal(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	p := newTestPipeline(t, db, testConfig(),
		&fakeFeed{err: errors.New("feed unreachable")},
		&fakeTextSource{}, &fakeSummarizer{}, &fakePoster{}, nil)

	stats, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("feed outage must not fail the run: %v", err)
	}
	if stats.NewBills != 0 || stats.Published {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
