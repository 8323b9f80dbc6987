package viewport

import (
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// stateFileName is the storage-state JSON file Playwright's
// BrowserNewContextOptions.StorageStatePath reads/writes, kept inside the
// profile directory a caller names via UserDataDir.
const stateFileName = "state.json"

// LaunchProfile is the declarative browser launch configuration of spec
// §3: a builder-style accumulator whose Build() emits immutable
// LaunchOptions. Grounded on the teacher's NewLauncher flag list
// (--disable-dev-shm-usage, --no-sandbox) generalized into named presets.
type LaunchProfile struct {
	headless          bool
	windowWidth        int
	windowHeight       int
	proxyServer        string
	proxyUsername      string
	proxyPassword      string
	userDataDir        string
	channelName        string
	executablePath     string
	persistAfterClose  bool
	extraArgs          []string
}

// NewLaunchProfile starts from headless=true, the safest default for a
// server-run agent.
func NewLaunchProfile() *LaunchProfile {
	return &LaunchProfile{headless: true, windowWidth: 1280, windowHeight: 800}
}

func (p *LaunchProfile) Headless(v bool) *LaunchProfile { p.headless = v; return p }

func (p *LaunchProfile) WindowSize(w, h int) *LaunchProfile {
	p.windowWidth, p.windowHeight = w, h
	return p
}

func (p *LaunchProfile) Proxy(server, username, password string) *LaunchProfile {
	p.proxyServer, p.proxyUsername, p.proxyPassword = server, username, password
	return p
}

// UserDataDir names a directory that holds this profile's persisted
// storage-state JSON (cookies/localStorage), not a Chromium user-data-dir
// in the --user-data-dir sense: Playwright's context API restores state
// from a single JSON file, so Build() looks for stateFileName inside dir.
func (p *LaunchProfile) UserDataDir(dir string) *LaunchProfile { p.userDataDir = dir; return p }

// StateFilePath returns the storage-state file Build() will read from (if
// present) and that a PersistenceGuard should be pointed at to write back
// to, or "" if no UserDataDir was set.
func (p *LaunchProfile) StateFilePath() string {
	if p.userDataDir == "" {
		return ""
	}
	return filepath.Join(p.userDataDir, stateFileName)
}

func (p *LaunchProfile) Channel(name string) *LaunchProfile { p.channelName = name; return p }

// ExecutablePath pins a specific Chromium binary instead of Playwright's
// bundled one (spec §6's BROWSER_BINARY_PATH).
func (p *LaunchProfile) ExecutablePath(path string) *LaunchProfile {
	p.executablePath = path
	return p
}

func (p *LaunchProfile) PersistAfterClose(v bool) *LaunchProfile { p.persistAfterClose = v; return p }

func (p *LaunchProfile) ExtraArgs(args ...string) *LaunchProfile {
	p.extraArgs = append(p.extraArgs, args...)
	return p
}

// Automation applies the teacher's baseline container-friendly flags.
func (p *LaunchProfile) Automation() *LaunchProfile {
	return p.ExtraArgs("--disable-dev-shm-usage", "--no-sandbox", "--disable-blink-features=AutomationControlled")
}

// StrippedFeatures disables non-essential Chromium subsystems to cut
// startup cost and background noise in automated runs.
func (p *LaunchProfile) StrippedFeatures() *LaunchProfile {
	return p.ExtraArgs("--disable-extensions", "--disable-component-update", "--disable-background-networking")
}

// AntiDetection reduces fingerprint signals that flag the browser as
// automated; layered on top of Automation().
func (p *LaunchProfile) AntiDetection() *LaunchProfile {
	return p.ExtraArgs("--disable-infobars", "--no-first-run", "--password-store=basic")
}

// Container applies flags required to run Chromium as root / in a
// resource-constrained container.
func (p *LaunchProfile) Container() *LaunchProfile {
	return p.ExtraArgs("--no-sandbox", "--disable-gpu", "--disable-setuid-sandbox")
}

// ReproducibleRender pins rendering-affecting flags so screenshots/HAR
// capture are stable across machines.
func (p *LaunchProfile) ReproducibleRender() *LaunchProfile {
	return p.ExtraArgs("--force-color-profile=srgb", "--disable-lcd-text", "--font-render-hinting=none")
}

// RelaxedSecurity disables web security checks (CORS, mixed content) for
// controlled test environments only.
func (p *LaunchProfile) RelaxedSecurity() *LaunchProfile {
	return p.ExtraArgs("--disable-web-security", "--disable-site-isolation-trials")
}

// LaunchOptions is the immutable result of Build().
type LaunchOptions struct {
	BrowserType playwright.BrowserTypeLaunchOptions
	Context     playwright.BrowserNewContextOptions
	PersistAfterClose bool
}

// Build freezes the profile into LaunchOptions.
func (p *LaunchProfile) Build() LaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.headless),
		Args:     append([]string(nil), p.extraArgs...),
	}
	if p.channelName != "" {
		opts.Channel = playwright.String(p.channelName)
	}
	if p.executablePath != "" {
		opts.ExecutablePath = playwright.String(p.executablePath)
	}
	if p.proxyServer != "" {
		opts.Proxy = &playwright.Proxy{
			Server:   p.proxyServer,
			Username: playwright.String(p.proxyUsername),
			Password: playwright.String(p.proxyPassword),
		}
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{Width: p.windowWidth, Height: p.windowHeight},
	}
	if statePath := p.StateFilePath(); statePath != "" {
		if _, err := os.Stat(statePath); err == nil {
			ctxOpts.StorageStatePath = playwright.String(statePath)
		}
	}

	return LaunchOptions{BrowserType: opts, Context: ctxOpts, PersistAfterClose: p.persistAfterClose}
}
