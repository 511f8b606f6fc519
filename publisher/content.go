package publisher

import (
	"fmt"
	"strings"

	"capitolbrief/models"
)

// BuildContent assembles the externally visible post for a bill from its
// derived fields. If the short text is somehow still empty at publish time,
// it falls back to title + status so the post is always self-describing and
// never a placeholder.
func BuildContent(bill *models.Bill) string {
	short := strings.TrimSpace(bill.ShortText)
	if short != "" {
		if bill.CanonicalURL != "" && !strings.Contains(short, bill.CanonicalURL) {
			return short + "\n" + bill.CanonicalURL
		}
		return short
	}

	title := strings.TrimSpace(bill.Title)
	if title == "" {
		title = bill.BillID
	}
	status := strings.TrimSpace(bill.Status)
	if status == "" {
		status = bill.StatusNorm
	}

	content := fmt.Sprintf("%s: %s", bill.BillID, title)
	if status != "" {
		content += fmt.Sprintf(" (%s)", status)
	}
	if bill.CanonicalURL != "" {
		content += "\n" + bill.CanonicalURL
	}
	return content
}
