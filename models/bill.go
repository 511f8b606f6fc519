package models

import (
	"time"

	"gorm.io/datatypes"
)

// Text source for a bill's full text, in fallback-chain order.
const (
	TextSourceNotRequested = "not-requested"
	TextSourceFeedAPI      = "feed-api"
	TextSourceDirectURL    = "direct-url"
	TextSourceScraped      = "scraped"
	TextSourceNone         = "none"
)

// Bill represents a legislative bill and everything the pipeline derives from it.
type Bill struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Identity and feed metadata
	BillID         string     `json:"bill_id" gorm:"column:bill_id;uniqueIndex;not null"`
	Title          string     `json:"title"`
	ShortTitle     string     `json:"short_title,omitempty"`
	Status         string     `json:"status,omitempty"`
	StatusNorm     string     `json:"status_norm,omitempty" gorm:"index"`
	IntroducedDate *time.Time `json:"introduced_date,omitempty"`
	Slug           string     `json:"slug" gorm:"index"`
	CanonicalURL   string     `json:"canonical_url,omitempty"`

	// Full text
	FullText    string `json:"full_text,omitempty" gorm:"type:text"`
	TextSource  string `json:"text_source" gorm:"index;default:'not-requested'"`
	TextLength  int    `json:"text_length"`
	TextURL     string `json:"text_url,omitempty"`
	ArchiveLink string `json:"archive_link,omitempty"`

	// Derived content
	Overview       string         `json:"overview,omitempty" gorm:"type:text"`
	Detailed       string         `json:"detailed,omitempty" gorm:"type:text"`
	ShortText      string         `json:"short_text,omitempty" gorm:"type:text"`
	RelevanceScore float64        `json:"relevance_score"`
	Tags           datatypes.JSON `json:"tags,omitempty" gorm:"type:jsonb"`
	Summarized     bool           `json:"summarized" gorm:"default:false"`

	// Publication state
	Published   bool       `json:"published" gorm:"index;default:false"`
	PostURL     string     `json:"post_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// Health state
	Problematic        bool   `json:"problematic" gorm:"index;default:false"`
	ProblemReason      string `json:"problem_reason,omitempty" gorm:"type:text"`
	ProcessingAttempts int    `json:"processing_attempts" gorm:"default:0"`

	// Set by the admin editor; the pipeline never overwrites derived fields once true.
	AdminEdited bool `json:"admin_edited" gorm:"default:false"`
}

// TableName sets the table name explicitly.
func (Bill) TableName() string {
	return "bills"
}

// HasAcceptedText reports whether the enrichment chain accepted a full text.
func (b *Bill) HasAcceptedText() bool {
	switch b.TextSource {
	case TextSourceFeedAPI, TextSourceDirectURL, TextSourceScraped:
		return b.FullText != ""
	}
	return false
}
