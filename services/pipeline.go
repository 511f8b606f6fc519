package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"capitolbrief/config"
	"capitolbrief/models"
	"capitolbrief/publisher"
	"capitolbrief/summarizer"
	"capitolbrief/textsource"
)

// FeedSource pulls newly published bills from the legislature feed.
type FeedSource interface {
	FetchNew(ctx context.Context, since time.Time) ([]*models.Bill, error)
}

// Summarizer produces derived content for a bill with accepted full text.
type Summarizer interface {
	Summarize(ctx context.Context, bill *models.Bill) (*summarizer.Result, error)
}

// Poster publishes content to the social platform and returns the post URL.
type Poster interface {
	Post(ctx context.Context, content string) (string, error)
}

// Archiver stores accepted full texts durably (S3 in production).
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) (string, error)
}

// RunStats summarizes one pipeline invocation.
type RunStats struct {
	NewBills      int
	TextsAccepted int
	Summarized    int
	Problematic   int
	Published     bool
	PostURL       string
}

// Pipeline runs the full ingest-enrich-summarize-publish pass. Invocations
// may overlap across processes; all cross-process safety lives in the store's
// row-locking discipline, not here.
type Pipeline struct {
	Config     *config.Config
	Store      *BillStore
	Feed       FeedSource
	Chain      *textsource.Chain
	Summarizer Summarizer
	Poster     Poster
	Archiver   Archiver
	Logger     *zap.Logger
}

// NewPipeline wires the pipeline components.
func NewPipeline(cfg *config.Config, store *BillStore, feedSource FeedSource, chain *textsource.Chain,
	summarizerClient Summarizer, poster Poster, archiver Archiver, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		Config:     cfg,
		Store:      store,
		Feed:       feedSource,
		Chain:      chain,
		Summarizer: summarizerClient,
		Poster:     poster,
		Archiver:   archiver,
		Logger:     logger,
	}
}

// RunOnce executes one full pipeline pass. A store failure is fatal and
// returned; external-service failures are logged and the run continues.
func (p *Pipeline) RunOnce(ctx context.Context) (RunStats, error) {
	stats := RunStats{}
	log := p.Logger

	if err := p.ingest(ctx, &stats); err != nil {
		return stats, err
	}
	if err := p.enrich(ctx, &stats); err != nil {
		return stats, err
	}
	if err := p.summarize(ctx, &stats); err != nil {
		return stats, err
	}

	// Daily guard: advisory only. A failed check proceeds; the row lock plus
	// the platform's duplicate rejection remain the correctness net.
	recent, err := p.Store.HasPublishedWithin(ctx, p.Config.PublishWindow)
	if err != nil {
		log.Warn("Daily guard check failed, proceeding anyway", zap.Error(err))
	} else if recent {
		log.Info("A bill was already published inside the window, publishing nothing",
			zap.Duration("window", p.Config.PublishWindow))
		return stats, nil
	}

	if err := p.publish(ctx, &stats); err != nil {
		return stats, err
	}

	log.Info("Pipeline run completed",
		zap.Int("new_bills", stats.NewBills),
		zap.Int("texts_accepted", stats.TextsAccepted),
		zap.Int("summarized", stats.Summarized),
		zap.Bool("published", stats.Published))
	return stats, nil
}

// ingest pulls the feed and inserts unseen bills. Feed failure is non-fatal:
// an empty result is a valid terminal state for the run.
func (p *Pipeline) ingest(ctx context.Context, stats *RunStats) error {
	since := time.Now().Add(-p.Config.FeedWindow)
	bills, err := p.Feed.FetchNew(ctx, since)
	if err != nil {
		p.Logger.Error("Feed fetch failed, continuing with zero new bills", zap.Error(err))
		return nil
	}

	inserted, err := p.Store.InsertNew(ctx, bills)
	if err != nil {
		return fmt.Errorf("persist new bills: %w", err)
	}
	stats.NewBills = inserted
	p.Logger.Info("Feed ingested", zap.Int("seen", len(bills)), zap.Int("new", inserted))
	return nil
}

// enrich runs the text fallback chain for every bill lacking full text.
func (p *Pipeline) enrich(ctx context.Context, stats *RunStats) error {
	bills, err := p.Store.BillsNeedingText(ctx, 0)
	if err != nil {
		return err
	}

	for _, bill := range bills {
		text, source := p.Chain.Resolve(ctx, bill)
		if source == models.TextSourceNone {
			if err := p.Store.UpdateTextFields(ctx, bill.BillID, "", models.TextSourceNone, ""); err != nil {
				return err
			}
			continue
		}

		archiveLink := ""
		if p.Archiver != nil {
			link, aErr := p.Archiver.Archive(ctx, bill.BillID+".txt", []byte(text))
			if aErr != nil {
				p.Logger.Warn("Full-text archive failed, keeping text anyway",
					zap.String("bill_id", bill.BillID), zap.Error(aErr))
			} else {
				archiveLink = link
			}
		}

		if err := p.Store.UpdateTextFields(ctx, bill.BillID, text, source, archiveLink); err != nil {
			return err
		}
		stats.TextsAccepted++
	}
	return nil
}

// summarize runs the quality gate for every bill with accepted text:
// one call, one regeneration on validation failure, then problematic.
func (p *Pipeline) summarize(ctx context.Context, stats *RunStats) error {
	bills, err := p.Store.BillsNeedingSummary(ctx, 0)
	if err != nil {
		return err
	}

	for _, bill := range bills {
		log := p.Logger.With(zap.String("bill_id", bill.BillID))

		if err := p.Store.IncrementAttempts(ctx, bill.BillID); err != nil {
			return err
		}
		res, sErr := p.Summarizer.Summarize(ctx, bill)
		if sErr != nil {
			log.Warn("Summarization call failed, leaving bill for a later pass", zap.Error(sErr))
			continue
		}

		vErr := summarizer.Validate(res, bill, p.Config.MinSummaryLength)
		if vErr != nil {
			log.Info("Summary rejected by quality gate, regenerating once", zap.Error(vErr))
			if err := p.Store.IncrementAttempts(ctx, bill.BillID); err != nil {
				return err
			}
			res, sErr = p.Summarizer.Summarize(ctx, bill)
			if sErr != nil {
				log.Warn("Regeneration call failed, leaving bill for a later pass", zap.Error(sErr))
				continue
			}
			vErr = summarizer.Validate(res, bill, p.Config.MinSummaryLength)
		}
		if vErr != nil {
			reason := fmt.Sprintf("summary failed quality gate after regeneration: %v", vErr)
			log.Warn("Marking bill problematic", zap.String("reason", reason))
			if err := p.Store.MarkProblematic(ctx, bill.BillID, reason); err != nil {
				return err
			}
			stats.Problematic++
			continue
		}

		if err := p.Store.UpdateSummaryFields(ctx, bill.BillID, res); err != nil {
			return err
		}
		stats.Summarized++
	}
	return nil
}

// publish claims eligible candidates under the row lock and posts at most one.
// A duplicate-content rejection marks the bill problematic inside the same
// transaction and moves on to the next candidate; any other platform error
// rolls the claim back so the bill stays a candidate for the next invocation.
func (p *Pipeline) publish(ctx context.Context, stats *RunStats) error {
	for {
		var (
			duplicateSkip bool
			failedBillID  string
			failedCount   int
		)

		claimed, err := p.Store.ClaimNext(ctx, func(tx *gorm.DB, bill *models.Bill) error {
			log := p.Logger.With(zap.String("bill_id", bill.BillID))
			content := publisher.BuildContent(bill)

			postCtx, cancel := context.WithTimeout(ctx, p.Config.PublishTimeout)
			defer cancel()
			postURL, postErr := p.Poster.Post(postCtx, content)

			if errors.Is(postErr, publisher.ErrDuplicateContent) {
				// Benign: a prior crashed run posted before committing. Flag it
				// inside this transaction and keep scanning.
				log.Warn("Platform reports duplicate content, marking problematic and skipping")
				duplicateSkip = true
				stats.Problematic++
				return tx.Model(&models.Bill{}).
					Where("bill_id = ?", bill.BillID).
					Updates(map[string]interface{}{
						"problematic":    true,
						"problem_reason": "platform rejected post as duplicate content",
						"updated_at":     time.Now(),
					}).Error
			}
			if postErr != nil {
				failedBillID = bill.BillID
				failedCount = bill.ProcessingAttempts + 1
				return fmt.Errorf("platform post: %w", postErr)
			}

			now := time.Now()
			if err := p.Store.ConfirmPublish(tx, bill.BillID, postURL, now); err != nil {
				return err
			}
			stats.Published = true
			stats.PostURL = postURL
			log.Info("Bill published", zap.String("post_url", postURL))
			return nil
		})

		if err != nil {
			if failedBillID == "" {
				return err
			}
			// Lock already released via rollback; the bill is a candidate again
			// on the next invocation, up to the attempt ceiling.
			p.Logger.Error("Publish failed, bill stays a candidate",
				zap.String("bill_id", failedBillID), zap.Error(err))
			if aErr := p.Store.IncrementAttempts(ctx, failedBillID); aErr != nil {
				return aErr
			}
			if failedCount >= p.Config.MaxPostAttempts {
				reason := fmt.Sprintf("publish failed %d times: %v", failedCount, err)
				if mErr := p.Store.MarkProblematic(ctx, failedBillID, reason); mErr != nil {
					return mErr
				}
				stats.Problematic++
			}
			return nil
		}
		if !claimed {
			p.Logger.Info("No eligible candidate to publish")
			return nil
		}
		if duplicateSkip {
			continue
		}
		return nil
	}
}
