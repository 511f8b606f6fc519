package textsource

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"capitolbrief/models"
)

// Source is one strategy for acquiring a bill's full text.
type Source interface {
	// Fetch returns the raw text for the bill, or "" if this source has none.
	Fetch(ctx context.Context, bill *models.Bill) (string, error)

	// Name returns the text-source label stored on the bill (e.g. "feed-api").
	Name() string
}

// Chain tries sources in fixed priority order and stops at the first
// acceptable result.
type Chain struct {
	Sources   []Source
	MinLength int
	Logger    *zap.Logger
}

// NewChain builds the fallback chain in the given order.
func NewChain(logger *zap.Logger, minLength int, sources ...Source) *Chain {
	return &Chain{Sources: sources, MinLength: minLength, Logger: logger}
}

// Resolve attempts each source until one yields text that survives the
// acceptance policy. It returns the accepted text and the source name, or
// ("", TextSourceNone) when every source failed or came up short.
func (c *Chain) Resolve(ctx context.Context, bill *models.Bill) (string, string) {
	log := c.Logger.With(zap.String("bill_id", bill.BillID))

	for _, src := range c.Sources {
		raw, err := src.Fetch(ctx, bill)
		if err != nil {
			log.Warn("Text source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}

		text := strings.TrimSpace(raw)
		if len(text) < c.MinLength {
			log.Info("Text source returned too little content, trying next",
				zap.String("source", src.Name()),
				zap.Int("length", len(text)),
				zap.Int("min_length", c.MinLength))
			continue
		}

		log.Info("Full text accepted",
			zap.String("source", src.Name()),
			zap.Int("length", len(text)),
			zap.String("preview", Preview(text, 100)))
		return text, src.Name()
	}

	log.Warn("All text sources exhausted, bill left without full text")
	return "", models.TextSourceNone
}

// Preview returns the first n words of text.
func Preview(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " ..."
}
