package summarizer

import (
	"fmt"
	"strings"

	"capitolbrief/models"
)

// Phrases that mark a summary as a non-answer. Checked case-insensitively
// against the short text and the overview.
var forbiddenPhrases = []string{
	"no summary available",
	"coming soon",
	"to be determined",
	"full bill text needed",
	"unable to summarize",
	"as an ai",
}

// Validate applies the quality policy to a summarization result. A nil error
// means the result is safe to store and publish.
func Validate(res *Result, bill *models.Bill, minLength int) error {
	if res == nil {
		return fmt.Errorf("empty summarizer result")
	}

	joint := strings.ToLower(res.ShortText + "\n" + res.Overview)
	for _, phrase := range forbiddenPhrases {
		if strings.Contains(joint, phrase) {
			return fmt.Errorf("summary contains placeholder phrase %q", phrase)
		}
	}

	if len(strings.TrimSpace(res.ShortText)) < minLength {
		return fmt.Errorf("short text below minimum informative length (%d < %d)",
			len(strings.TrimSpace(res.ShortText)), minLength)
	}
	if len(strings.TrimSpace(res.Overview)) < minLength {
		return fmt.Errorf("overview below minimum informative length (%d < %d)",
			len(strings.TrimSpace(res.Overview)), minLength)
	}

	if !referencesBill(joint, bill) {
		return fmt.Errorf("summary lacks a reference to the bill's canonical page or identifier")
	}
	return nil
}

// referencesBill reports whether the text resolves back to the bill: its
// canonical URL, its slug, or its external identifier.
func referencesBill(lowered string, bill *models.Bill) bool {
	if bill.CanonicalURL != "" && strings.Contains(lowered, strings.ToLower(bill.CanonicalURL)) {
		return true
	}
	if bill.Slug != "" && strings.Contains(lowered, strings.ToLower(bill.Slug)) {
		return true
	}
	return bill.BillID != "" && strings.Contains(lowered, strings.ToLower(bill.BillID))
}
