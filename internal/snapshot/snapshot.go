package snapshot

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// Capture builds the unified tree for page's current state, wrapping any
// CDP failure as a PageExtractionError (spec §7).
func Capture(ctx context.Context, page playwright.Page, opts BuildOptions) (*Tree, error) {
	tree, err := Build(ctx, page, opts)
	if err != nil {
		return nil, agenterrors.ExtractionFailed("capture", err)
	}
	return tree, nil
}

// WithDeadline shortens ctx to avoid a hung snapshot, matching the
// teacher's 10s snapshot timeout in browser.go.
func WithDeadline(ctx context.Context, dur time.Duration) (context.Context, context.CancelFunc) {
	if dur <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dur)
}
