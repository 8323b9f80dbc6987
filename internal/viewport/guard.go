package viewport

import (
	"context"

	"github.com/playwright-community/playwright-go"
)

// GuardContext is handed to each guard on attach (spec §3).
type GuardContext struct {
	Page           playwright.Page
	BrowserContext playwright.BrowserContext
	EventBus       *EventHub
}

// Guard is an event-driven monitor attached to a Viewport for one concern
// (spec §4.6). attach registers listeners and pushes teardown closures;
// detach runs them in reverse. Guards must tolerate double-detach.
type Guard interface {
	Name() string
	Priority() int
	Attach(ctx context.Context, gctx GuardContext) error
	Detach()
}

// baseGuard gives concrete guards the teardown-stack plumbing so each one
// only needs to push closures rather than reimplement idempotent detach.
type baseGuard struct {
	teardowns []func()
	detached  bool
}

func (b *baseGuard) onTeardown(fn func()) {
	b.teardowns = append(b.teardowns, fn)
}

func (b *baseGuard) runTeardowns() {
	if b.detached {
		return
	}
	b.detached = true
	for i := len(b.teardowns) - 1; i >= 0; i-- {
		if b.teardowns[i] != nil {
			b.teardowns[i]()
		}
	}
	b.teardowns = nil
}
