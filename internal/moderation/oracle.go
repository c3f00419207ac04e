package moderation

import (
	"context"

	"chaperone/internal/domain"
)

// Oracle is the external compliance classifier.
type Oracle interface {
	Classify(ctx context.Context, text string) (domain.Verdict, error)
}

// Counter keeps the anonymized tally of blocked drafts: reason and day only.
type Counter interface {
	Increment(ctx context.Context, day, reason string) error
	Counts(ctx context.Context, day string) (map[string]int64, error)
}
