package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"capitolbrief/models"
	"capitolbrief/summarizer"
)

// BillStore is the durable record of bills and their pipeline state.
type BillStore struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewBillStore wires a gorm connection.
func NewBillStore(db *gorm.DB, logger *zap.Logger) *BillStore {
	return &BillStore{DB: db, Logger: logger}
}

// InsertNew persists bills not yet present and returns how many were new.
// Already-known bill IDs are left untouched.
func (s *BillStore) InsertNew(ctx context.Context, bills []*models.Bill) (int, error) {
	inserted := 0
	for _, bill := range bills {
		res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bill_id"}},
			DoNothing: true,
		}).Create(bill)
		if res.Error != nil {
			return inserted, fmt.Errorf("insert bill %s: %w", bill.BillID, res.Error)
		}
		if res.RowsAffected > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// BillsNeedingText returns bills the enrichment chain should visit: no
// accepted text yet, not problematic, not published.
func (s *BillStore) BillsNeedingText(ctx context.Context, limit int) ([]*models.Bill, error) {
	var bills []*models.Bill
	q := s.DB.WithContext(ctx).
		Where("text_source IN ?", []string{models.TextSourceNotRequested, models.TextSourceNone}).
		Where("problematic = ? AND published = ?", false, false).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bills).Error; err != nil {
		return nil, fmt.Errorf("query bills needing text: %w", err)
	}
	return bills, nil
}

// UpdateTextFields stores the result of one enrichment pass.
func (s *BillStore) UpdateTextFields(ctx context.Context, billID, text, source, archiveLink string) error {
	updates := map[string]interface{}{
		"text_source": source,
		"updated_at":  time.Now(),
	}
	if text != "" {
		updates["full_text"] = text
		updates["text_length"] = len(text)
	}
	if archiveLink != "" {
		updates["archive_link"] = archiveLink
	}
	return s.DB.WithContext(ctx).
		Model(&models.Bill{}).
		Where("bill_id = ?", billID).
		Updates(updates).Error
}

// BillsNeedingSummary returns bills with accepted text and no validated
// summary yet. Admin-edited bills are never touched.
func (s *BillStore) BillsNeedingSummary(ctx context.Context, limit int) ([]*models.Bill, error) {
	var bills []*models.Bill
	q := s.DB.WithContext(ctx).
		Where("text_source IN ?", []string{models.TextSourceFeedAPI, models.TextSourceDirectURL, models.TextSourceScraped}).
		Where("full_text <> ''").
		Where("summarized = ? AND problematic = ? AND published = ? AND admin_edited = ?", false, false, false, false).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bills).Error; err != nil {
		return nil, fmt.Errorf("query bills needing summary: %w", err)
	}
	return bills, nil
}

// UpdateSummaryFields stores a validated summarization result and clears any
// prior problem state.
func (s *BillStore) UpdateSummaryFields(ctx context.Context, billID string, res *summarizer.Result) error {
	tags, err := json.Marshal(res.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	return s.DB.WithContext(ctx).
		Model(&models.Bill{}).
		Where("bill_id = ?", billID).
		Updates(map[string]interface{}{
			"overview":        res.Overview,
			"detailed":        res.Detailed,
			"short_text":      res.ShortText,
			"relevance_score": res.RelevanceScore,
			"tags":            tags,
			"summarized":      true,
			"problematic":     false,
			"problem_reason":  "",
			"updated_at":      time.Now(),
		}).Error
}

// MarkProblematic flags a bill out of automatic processing until an operator
// clears it.
func (s *BillStore) MarkProblematic(ctx context.Context, billID, reason string) error {
	return s.DB.WithContext(ctx).
		Model(&models.Bill{}).
		Where("bill_id = ?", billID).
		Updates(map[string]interface{}{
			"problematic":    true,
			"problem_reason": reason,
			"updated_at":     time.Now(),
		}).Error
}

// IncrementAttempts bumps the processing-attempt counter. Only the
// summarization gate and the publisher call this.
func (s *BillStore) IncrementAttempts(ctx context.Context, billID string) error {
	return s.DB.WithContext(ctx).
		Model(&models.Bill{}).
		Where("bill_id = ?", billID).
		Updates(map[string]interface{}{
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"updated_at":          time.Now(),
		}).Error
}

// ClaimNext atomically picks the most recent eligible unpublished bill and
// hands it to the handler under an exclusive row lock. Rows locked by another
// in-flight invocation are skipped, not waited on. The lock is released when
// the transaction commits (handler returned nil) or rolls back (handler
// returned an error). claimed is false when no eligible candidate exists.
func (s *BillStore) ClaimNext(ctx context.Context, handler func(tx *gorm.DB, bill *models.Bill) error) (claimed bool, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("published = ? AND problematic = ? AND summarized = ?", false, false, true).
			Where("text_source IN ?", []string{models.TextSourceFeedAPI, models.TextSourceDirectURL, models.TextSourceScraped}).
			Where("full_text <> ''").
			Order("updated_at DESC")
		// sqlite (tests) has no FOR UPDATE; cross-process exclusion only matters on postgres.
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var bill models.Bill
		qErr := q.First(&bill).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		claimed = true
		return handler(tx, &bill)
	})
	return claimed, err
}

// ConfirmPublish records a successful post inside the claiming transaction.
// Calling it again for an already-published bill with the same post URL is a
// no-op; a different URL is an integrity error.
func (s *BillStore) ConfirmPublish(tx *gorm.DB, billID, postURL string, postedAt time.Time) error {
	if tx == nil {
		tx = s.DB
	}

	var current models.Bill
	if err := tx.Where("bill_id = ?", billID).First(&current).Error; err != nil {
		return fmt.Errorf("load bill %s: %w", billID, err)
	}
	if current.Published {
		if current.PostURL == postURL {
			return nil
		}
		return fmt.Errorf("bill %s already published with a different post url", billID)
	}

	if err := tx.Model(&models.Bill{}).
		Where("bill_id = ?", billID).
		Updates(map[string]interface{}{
			"published":           true,
			"post_url":            postURL,
			"published_at":        postedAt,
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"updated_at":          time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("confirm publish %s: %w", billID, err)
	}

	record := models.PublishRecord{BillID: billID, PostURL: postURL, PostedAt: postedAt}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_url"}},
		DoNothing: true,
	}).Create(&record).Error; err != nil {
		return fmt.Errorf("write publish record %s: %w", billID, err)
	}
	return nil
}

// HasPublishedWithin reports whether any bill was published inside the
// trailing window. Used by the daily guard only; it is advisory.
func (s *BillStore) HasPublishedWithin(ctx context.Context, window time.Duration) (bool, error) {
	var count int64
	cutoff := time.Now().Add(-window)
	err := s.DB.WithContext(ctx).
		Model(&models.Bill{}).
		Where("published = ? AND published_at > ?", true, cutoff).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("daily guard query: %w", err)
	}
	return count > 0, nil
}
