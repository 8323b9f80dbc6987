package viewport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// LocalInstanceGuard (pri 10) is a sanity probe: attach fails if the page
// is already detached, grounded on the teacher's pattern of calling
// page.URL() before any action (browser.go's ctx.Err() checks generalized
// to a startup-time probe).
type LocalInstanceGuard struct{ baseGuard }

func (g *LocalInstanceGuard) Name() string { return "local-instance" }
func (g *LocalInstanceGuard) Priority() int { return 10 }

func (g *LocalInstanceGuard) Attach(ctx context.Context, gctx GuardContext) error {
	if gctx.Page == nil || gctx.Page.IsClosed() {
		return fmt.Errorf("local-instance: page is not attached")
	}
	_ = gctx.Page.URL()
	return nil
}

func (g *LocalInstanceGuard) Detach() { g.runTeardowns() }

// UrlPolicyGuard (pri 50) blocks navigation requests that violate an
// allow/block list, emitting a policy-violation event instead of
// propagating an error (spec §4.6, §7 "surfaced only as an event").
type UrlPolicyGuard struct {
	baseGuard
	AllowedURLs []string
	BlockedURLs []string
}

func (g *UrlPolicyGuard) Name() string { return "url-policy" }
func (g *UrlPolicyGuard) Priority() int { return 50 }

func (g *UrlPolicyGuard) Attach(ctx context.Context, gctx GuardContext) error {
	handler := func(route playwright.Route) {
		url := route.Request().URL()
		if g.violates(url) {
			gctx.EventBus.Publish(Event{Kind: EventPolicyViolation, Data: PolicyViolationData{URL: url, Reason: "blocked by url policy"}})
			_ = route.Abort()
			return
		}
		_ = route.Continue()
	}
	if err := gctx.Page.Route("**/*", handler); err != nil {
		return fmt.Errorf("url-policy: route: %w", err)
	}
	g.onTeardown(func() { _ = gctx.Page.Unroute("**/*", handler) })
	return nil
}

func (g *UrlPolicyGuard) Detach() { g.runTeardowns() }

func (g *UrlPolicyGuard) violates(url string) bool {
	for _, blocked := range g.BlockedURLs {
		if blocked != "" && strings.Contains(url, blocked) {
			return true
		}
	}
	if len(g.AllowedURLs) == 0 {
		return false
	}
	for _, allowed := range g.AllowedURLs {
		if strings.Contains(url, allowed) {
			return false
		}
	}
	return true
}

// PolicyViolationData is the payload of an EventPolicyViolation event.
type PolicyViolationData struct {
	URL    string
	Reason string
}

// DefaultHandlerGuard (pri 100) auto-accepts dialogs, grounded on the
// teacher's dialog-free click flows — the teacher never leaves a dialog
// unhandled, implying auto-dismiss is the expected default in this domain.
type DefaultHandlerGuard struct{ baseGuard }

func (g *DefaultHandlerGuard) Name() string { return "default-handler" }
func (g *DefaultHandlerGuard) Priority() int { return 100 }

func (g *DefaultHandlerGuard) Attach(ctx context.Context, gctx GuardContext) error {
	handler := func(dialog playwright.Dialog) {
		_ = dialog.Accept()
	}
	gctx.Page.OnDialog(handler)
	g.onTeardown(func() { gctx.Page.RemoveListener("dialog", handler) })
	return nil
}

func (g *DefaultHandlerGuard) Detach() { g.runTeardowns() }

// PopupGuard (pri 150) observes new pages opened in the context, waits
// for them to settle, emits tab-opened, and brings them to front.
type PopupGuard struct {
	baseGuard
	OnOpened func(playwright.Page)
}

func (g *PopupGuard) Name() string { return "popup" }
func (g *PopupGuard) Priority() int { return 150 }

func (g *PopupGuard) Attach(ctx context.Context, gctx GuardContext) error {
	handler := func(page playwright.Page) {
		_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		})
		gctx.EventBus.Publish(Event{Kind: EventTabOpened, Data: page})
		_ = page.BringToFront()
		if g.OnOpened != nil {
			g.OnOpened(page)
		}
	}
	gctx.BrowserContext.OnPage(handler)
	g.onTeardown(func() { gctx.BrowserContext.RemoveListener("page", handler) })
	return nil
}

func (g *PopupGuard) Detach() { g.runTeardowns() }

// PageReadyGuard (pri 200) tracks load states and mutation silence,
// exposing waitForDomStable and emitting content-ready.
type PageReadyGuard struct {
	baseGuard
	IdleTimeout time.Duration
	log         zerolog.Logger

	lastMutation time.Time
	readyChan    chan struct{}
}

func (g *PageReadyGuard) Name() string { return "page-ready" }
func (g *PageReadyGuard) Priority() int { return 200 }

const defaultIdleTimeout = 500 * time.Millisecond

func (g *PageReadyGuard) Attach(ctx context.Context, gctx GuardContext) error {
	if g.IdleTimeout <= 0 {
		g.IdleTimeout = defaultIdleTimeout
	}
	g.readyChan = make(chan struct{}, 1)

	const exposedFn = "__openBrowserMutationObserved"
	if err := gctx.Page.ExposeFunction(exposedFn, func(args ...any) any {
		g.lastMutation = time.Now()
		select {
		case g.readyChan <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		return fmt.Errorf("page-ready: expose function: %w", err)
	}
	g.onTeardown(func() { _ = gctx.Page.RemoveListener("*", nil) })

	script := fmt.Sprintf(`() => {
		let count = 0;
		const obs = new MutationObserver(() => { count++; window.%s(count); });
		obs.observe(document.documentElement, {subtree:true, childList:true, attributes:true, characterData:true});
	}`, exposedFn)
	if _, err := gctx.Page.Evaluate(script); err != nil {
		g.log.Debug().Err(err).Msg("page-ready: mutation observer injection failed, continuing without it")
	}

	loadHandler := func(playwright.Page) {
		gctx.EventBus.Publish(Event{Kind: EventContentReady, Data: gctx.Page.URL()})
	}
	gctx.Page.OnLoad(loadHandler)
	g.onTeardown(func() { gctx.Page.RemoveListener("load", loadHandler) })

	return nil
}

func (g *PageReadyGuard) Detach() { g.runTeardowns() }

// WaitForDomStable blocks until idleTimeout has elapsed since the last
// observed mutation, or the context/timeout elapses first.
func (g *PageReadyGuard) WaitForDomStable(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(g.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		if time.Since(g.lastMutation) >= g.IdleTimeout {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page-ready: dom did not stabilize within %v", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BlankPageGuard (pri 400) issues a best-effort back-navigation when the
// page lands on about:blank.
type BlankPageGuard struct{ baseGuard }

func (g *BlankPageGuard) Name() string { return "blank-page" }
func (g *BlankPageGuard) Priority() int { return 400 }

func (g *BlankPageGuard) Attach(ctx context.Context, gctx GuardContext) error {
	handler := func(frame playwright.Frame) {
		if frame != gctx.Page.MainFrame() {
			return
		}
		if gctx.Page.URL() == "about:blank" {
			_, _ = gctx.Page.GoBack()
		}
	}
	gctx.Page.OnFrameNavigated(handler)
	g.onTeardown(func() { gctx.Page.RemoveListener("framenavigated", handler) })
	return nil
}

func (g *BlankPageGuard) Detach() { g.runTeardowns() }

// PermissionsGuard (pri 400) grants a configured permission list for the
// current origin on every navigation, re-granting on origin change.
type PermissionsGuard struct {
	baseGuard
	Permissions []string

	lastOrigin string
}

func (g *PermissionsGuard) Name() string { return "permissions" }
func (g *PermissionsGuard) Priority() int { return 400 }

func (g *PermissionsGuard) Attach(ctx context.Context, gctx GuardContext) error {
	if len(g.Permissions) == 0 {
		return nil
	}
	handler := func(frame playwright.Frame) {
		if frame != gctx.Page.MainFrame() {
			return
		}
		origin := originOf(gctx.Page.URL())
		if origin == "" || origin == g.lastOrigin {
			return
		}
		g.lastOrigin = origin
		_ = gctx.BrowserContext.GrantPermissions(g.Permissions, playwright.BrowserContextGrantPermissionsOptions{
			Origin: playwright.String(origin),
		})
	}
	gctx.Page.OnFrameNavigated(handler)
	g.onTeardown(func() { gctx.Page.RemoveListener("framenavigated", handler) })
	return nil
}

func (g *PermissionsGuard) Detach() { g.runTeardowns() }

func originOf(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rawURL[:idx+3] + rest
}

// CrashGuard (pri 500) emits crash and attempts to open a replacement page.
type CrashGuard struct {
	baseGuard
	OnReplacement func(playwright.Page)
}

func (g *CrashGuard) Name() string { return "crash" }
func (g *CrashGuard) Priority() int { return 500 }

func (g *CrashGuard) Attach(ctx context.Context, gctx GuardContext) error {
	handler := func(playwright.Page) {
		gctx.EventBus.Publish(Event{Kind: EventCrash, Data: gctx.Page.URL()})
		replacement, err := gctx.BrowserContext.NewPage()
		if err == nil && g.OnReplacement != nil {
			g.OnReplacement(replacement)
		}
	}
	gctx.Page.OnCrash(handler)
	g.onTeardown(func() { gctx.Page.RemoveListener("crash", handler) })
	return nil
}

func (g *CrashGuard) Detach() { g.runTeardowns() }
