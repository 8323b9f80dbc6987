// Package viewport owns the Playwright browser lifecycle: launching the
// browser, tracking open tabs, and running the guard pipeline that reacts
// to browser-lifecycle events (spec §3, §4.6).
package viewport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// TabID identifies one open page within a Viewport.
type TabID string

// Config selects which guards attach and with what parameters; zero value
// is a minimal, guard-light configuration suitable for tests.
type Config struct {
	Profile *LaunchProfile

	AllowedURLs []string
	BlockedURLs []string
	Permissions []string

	DownloadDir  string
	HarPath      string
	VideoDir     string
	PersistPath  string
}

// Viewport is the process-wide owner of one Playwright browser context: a
// TabID→Page map, the current foreground page, the guard pipeline, and
// the EventHub guards publish to. Grounded on the teacher's
// browser.controller (single page/context pair) generalized to
// multi-tab + guard attachment.
type Viewport struct {
	log zerolog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext

	mu       sync.Mutex
	tabs     map[TabID]playwright.Page
	order    []TabID
	current  TabID
	nextID   int

	guards   []Guard
	eventHub *EventHub

	cfg Config
}

// New launches a browser per cfg and attaches the guard pipeline.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Viewport, error) {
	if cfg.Profile == nil {
		cfg.Profile = NewLaunchProfile().Automation()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, agenterrors.NewViewportError("launch", fmt.Errorf("start playwright driver: %w", err))
	}

	opts := cfg.Profile.Build()
	if cfg.VideoDir != "" {
		opts.Context.RecordVideo = RecordVideoOptions(cfg.VideoDir, 1280, 800)
	}

	browser, err := pw.Chromium.Launch(opts.BrowserType)
	if err != nil {
		_ = pw.Stop()
		return nil, agenterrors.NewViewportError("launch", fmt.Errorf("launch chromium: %w", err))
	}

	bctx, err := browser.NewContext(opts.Context)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, agenterrors.NewViewportError("launch", fmt.Errorf("new context: %w", err))
	}

	v := &Viewport{
		log:      log,
		pw:       pw,
		browser:  browser,
		bctx:     bctx,
		tabs:     make(map[TabID]playwright.Page),
		eventHub: NewEventHub(log),
		cfg:      cfg,
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = v.Close()
		return nil, agenterrors.NewViewportError("launch", fmt.Errorf("new page: %w", err))
	}
	id := v.registerPage(page)
	v.current = id

	if err := v.attachGuards(ctx, page); err != nil {
		_ = v.Close()
		return nil, agenterrors.NewViewportError("launch", fmt.Errorf("attach guards: %w", err))
	}

	return v, nil
}

func (v *Viewport) registerPage(page playwright.Page) TabID {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := TabID(fmt.Sprintf("tab-%d", v.nextID))
	v.tabs[id] = page
	v.order = append(v.order, id)
	return id
}

// guardsInPriorityOrder builds the 12 concrete guards from cfg, sorted
// ascending by Priority (spec §4.6: lower priority attaches, and is
// notified, first).
func (v *Viewport) guardsInPriorityOrder() []Guard {
	guards := []Guard{
		&LocalInstanceGuard{},
		&UrlPolicyGuard{AllowedURLs: v.cfg.AllowedURLs, BlockedURLs: v.cfg.BlockedURLs},
		&DefaultHandlerGuard{},
		&PopupGuard{OnOpened: func(p playwright.Page) { v.registerPage(p) }},
		&PageReadyGuard{log: v.log},
		&DownloadGuard{Dir: v.cfg.DownloadDir, log: v.log},
		&PermissionsGuard{Permissions: v.cfg.Permissions},
		&BlankPageGuard{},
		&CrashGuard{OnReplacement: func(p playwright.Page) { v.registerPage(p) }},
		&HarCaptureGuard{Path: v.cfg.HarPath},
		&VideoCaptureGuard{Dir: v.cfg.VideoDir},
		&PersistenceGuard{Path: v.cfg.PersistPath},
	}
	sort.SliceStable(guards, func(i, j int) bool { return guards[i].Priority() < guards[j].Priority() })
	return guards
}

func (v *Viewport) attachGuards(ctx context.Context, page playwright.Page) error {
	gctx := GuardContext{Page: page, BrowserContext: v.bctx, EventBus: v.eventHub}
	guards := v.guardsInPriorityOrder()
	attached := make([]Guard, 0, len(guards))
	for _, g := range guards {
		if err := g.Attach(ctx, gctx); err != nil {
			for i := len(attached) - 1; i >= 0; i-- {
				attached[i].Detach()
			}
			return fmt.Errorf("%s: %w", g.Name(), err)
		}
		attached = append(attached, g)
	}
	v.guards = attached
	return nil
}

// Events exposes the guard EventHub for subscribers (agent loop, CLI).
func (v *Viewport) Events() *EventHub { return v.eventHub }

func (v *Viewport) currentPage() (playwright.Page, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	page, ok := v.tabs[v.current]
	if !ok {
		return nil, agenterrors.NewViewportError("current-page", fmt.Errorf("no current tab"))
	}
	return page, nil
}

// Navigate loads url in the current tab and waits for the load event,
// mirroring the teacher's Navigate (Goto + WaitUntilStateLoad).
func (v *Viewport) Navigate(ctx context.Context, url string) error {
	page, err := v.currentPage()
	if err != nil {
		return err
	}
	_, err = page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad})
	if err != nil {
		return agenterrors.NewViewportError("navigate", fmt.Errorf("goto %q: %w", url, err))
	}
	return nil
}

// Scroll scrolls the current page vertically. "top" and "bottom" jump to
// the page's ends; "up"/"page_up" and "down"/"page_down" (and any other
// value) move by distancePx, or by the viewport height when distancePx is
// not positive, matching the teacher's window.scrollBy Evaluate call.
func (v *Viewport) Scroll(ctx context.Context, direction string, distancePx int) error {
	page, err := v.currentPage()
	if err != nil {
		return err
	}
	switch direction {
	case "top":
		_, err = page.Evaluate(`() => window.scrollTo(0, 0)`)
	case "bottom":
		_, err = page.Evaluate(`() => window.scrollTo(0, document.documentElement.scrollHeight)`)
	default:
		sign := 1
		if direction == "up" || direction == "page_up" {
			sign = -1
		}
		_, err = page.Evaluate(`([dist, sign]) => window.scrollBy(0, sign * (dist > 0 ? dist : window.innerHeight))`, []int{distancePx, sign})
	}
	if err != nil {
		return agenterrors.NewViewportError("scroll", err)
	}
	return nil
}

// PressKeys sends a key combination to the current page's focused element.
func (v *Viewport) PressKeys(ctx context.Context, keys string) error {
	page, err := v.currentPage()
	if err != nil {
		return err
	}
	if err := page.Keyboard().Press(keys); err != nil {
		return agenterrors.NewViewportError("press-keys", err)
	}
	return nil
}

// FocusTab brings the tab with id to the foreground and makes it current.
func (v *Viewport) FocusTab(ctx context.Context, id string) error {
	v.mu.Lock()
	page, ok := v.tabs[TabID(id)]
	if !ok {
		v.mu.Unlock()
		return agenterrors.NewViewportError("focus-tab", fmt.Errorf("unknown tab %q", id))
	}
	v.current = TabID(id)
	v.mu.Unlock()
	return page.BringToFront()
}

// NewTab opens a tab navigated to url (blank if empty), registers it, and
// returns its id; it also becomes the current tab.
func (v *Viewport) NewTab(ctx context.Context, url string) (string, error) {
	page, err := v.bctx.NewPage()
	if err != nil {
		return "", agenterrors.NewViewportError("new-tab", err)
	}
	id := v.registerPage(page)
	v.mu.Lock()
	v.current = id
	v.mu.Unlock()

	gctx := GuardContext{Page: page, BrowserContext: v.bctx, EventBus: v.eventHub}
	for _, g := range v.guards {
		if pr, ok := g.(*PageReadyGuard); ok {
			_ = pr.Attach(ctx, gctx)
		}
	}

	if url != "" {
		if _, err := page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}); err != nil {
			return string(id), agenterrors.NewViewportError("new-tab", fmt.Errorf("goto %q: %w", url, err))
		}
	}
	return string(id), nil
}

// CloseTab closes the given tab; if it was current, focus falls back to
// the most recently opened remaining tab.
func (v *Viewport) CloseTab(ctx context.Context, id string) error {
	v.mu.Lock()
	page, ok := v.tabs[TabID(id)]
	if !ok {
		v.mu.Unlock()
		return agenterrors.NewViewportError("close-tab", fmt.Errorf("unknown tab %q", id))
	}
	delete(v.tabs, TabID(id))
	for i, o := range v.order {
		if o == TabID(id) {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	wasCurrent := v.current == TabID(id)
	if wasCurrent && len(v.order) > 0 {
		v.current = v.order[len(v.order)-1]
	}
	v.mu.Unlock()
	return page.Close()
}

// Capture screenshots the current page to path (PNG) and returns the saved
// path, matching the teacher's screenshot-to-disk convention.
func (v *Viewport) Capture(ctx context.Context, path string, fullPage bool) (string, error) {
	page, err := v.currentPage()
	if err != nil {
		return "", err
	}
	_, err = page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		Type:     playwright.ScreenshotTypePng,
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return "", agenterrors.NewViewportError("capture", err)
	}
	return path, nil
}

// CaptureBytes screenshots the current page to an in-memory PNG without
// writing to disk, for vision attachment (spec §4.5 step 3).
func (v *Viewport) CaptureBytes(ctx context.Context) ([]byte, error) {
	page, err := v.currentPage()
	if err != nil {
		return nil, err
	}
	data, err := page.Screenshot(playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypePng})
	if err != nil {
		return nil, agenterrors.NewViewportError("capture-bytes", err)
	}
	return data, nil
}

// CurrentURL returns the current page's URL.
func (v *Viewport) CurrentURL(ctx context.Context) (string, error) {
	page, err := v.currentPage()
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

// CurrentPage exposes the raw playwright.Page for packages (snapshot,
// pageanalyzer) that need direct CDP/DOM access beyond PageController.
func (v *Viewport) CurrentPage() (playwright.Page, error) { return v.currentPage() }

// TabSummary is one open tab's id/url/title/current-ness, for the
// <browser_state> tabs listing (spec §4.5 step 3).
type TabSummary struct {
	ID      string
	URL     string
	Title   string
	Current bool
}

// ListTabs returns every open tab in open-order.
func (v *Viewport) ListTabs() []TabSummary {
	v.mu.Lock()
	order := make([]TabID, len(v.order))
	copy(order, v.order)
	current := v.current
	pages := make(map[TabID]playwright.Page, len(v.tabs))
	for id, p := range v.tabs {
		pages[id] = p
	}
	v.mu.Unlock()

	out := make([]TabSummary, 0, len(order))
	for _, id := range order {
		page := pages[id]
		if page == nil {
			continue
		}
		title, _ := page.Title()
		out = append(out, TabSummary{ID: string(id), URL: page.URL(), Title: title, Current: id == current})
	}
	return out
}

// Close detaches all guards in reverse-priority order, then tears down
// the browser and driver.
func (v *Viewport) Close() error {
	for i := len(v.guards) - 1; i >= 0; i-- {
		v.guards[i].Detach()
	}
	var firstErr error
	if v.bctx != nil {
		if err := v.bctx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if v.browser != nil {
		if err := v.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if v.pw != nil {
		if err := v.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
