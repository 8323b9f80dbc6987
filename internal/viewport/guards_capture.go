package viewport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// DownloadGuard (pri 300) saves every download under a directory and
// emits an event. When the suggested filename is already taken it inserts
// a "-" plus 8 hex characters of a uuid before the extension.
type DownloadGuard struct {
	baseGuard
	Dir string
	log zerolog.Logger
}

func (g *DownloadGuard) Name() string { return "download" }
func (g *DownloadGuard) Priority() int { return 300 }

// DownloadData is the payload of an EventDownload event.
type DownloadData struct {
	SuggestedName string
	SavedPath     string
	Err           error
}

func (g *DownloadGuard) Attach(ctx context.Context, gctx GuardContext) error {
	handler := func(dl playwright.Download) {
		name := dl.SuggestedFilename()
		dest := filepath.Join(g.Dir, name)
		if _, statErr := os.Stat(dest); statErr == nil {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), uuid.NewString()[:8], ext)
			dest = filepath.Join(g.Dir, name)
		}
		err := dl.SaveAs(dest)
		if err != nil {
			g.log.Warn().Err(err).Str("suggested", dl.SuggestedFilename()).Msg("download: save failed")
		}
		gctx.EventBus.Publish(Event{Kind: EventDownload, Data: DownloadData{
			SuggestedName: dl.SuggestedFilename(),
			SavedPath:     dest,
			Err:           err,
		}})
	}
	gctx.Page.OnDownload(handler)
	g.onTeardown(func() { gctx.Page.RemoveListener("download", handler) })
	return nil
}

func (g *DownloadGuard) Detach() { g.runTeardowns() }

// HarCaptureGuard (pri 500) records a HAR archive for the browser context
// for the lifetime of the guard's attachment.
type HarCaptureGuard struct {
	baseGuard
	Path string
}

func (g *HarCaptureGuard) Name() string { return "har-capture" }
func (g *HarCaptureGuard) Priority() int { return 500 }

func (g *HarCaptureGuard) Attach(ctx context.Context, gctx GuardContext) error {
	if g.Path == "" {
		return nil
	}
	if err := gctx.BrowserContext.RouteFromHAR(g.Path, playwright.BrowserContextRouteFromHAROptions{
		Update: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("har-capture: route from har: %w", err)
	}
	return nil
}

func (g *HarCaptureGuard) Detach() { g.runTeardowns() }

// VideoCaptureGuard (pri 500) is a marker guard confirming video recording
// was configured at context-creation time (playwright-go records video
// only via BrowserNewContextOptions.RecordVideo, not post-hoc), and
// surfaces the output directory for the agent to pick up after close.
type VideoCaptureGuard struct {
	baseGuard
	Dir         string
	MaxWidth    int
	MaxHeight   int
}

func (g *VideoCaptureGuard) Name() string { return "video-capture" }
func (g *VideoCaptureGuard) Priority() int { return 500 }

func (g *VideoCaptureGuard) Attach(ctx context.Context, gctx GuardContext) error {
	if g.Dir == "" {
		return nil
	}
	if gctx.Page.Video() == nil {
		return fmt.Errorf("video-capture: context was not opened with RecordVideo configured")
	}
	return nil
}

func (g *VideoCaptureGuard) Detach() {
	g.runTeardowns()
}

// RecordVideoOptions builds the BrowserNewContextOptions fragment video
// capture needs; LaunchProfile.Build() does not set this by default since
// it is an opt-in, per-run concern rather than a baseline launch flag.
func RecordVideoOptions(dir string, maxWidth, maxHeight int) *playwright.RecordVideo {
	if dir == "" {
		return nil
	}
	return &playwright.RecordVideo{
		Dir:  dir,
		Size: &playwright.Size{Width: maxWidth, Height: maxHeight},
	}
}

// PersistenceGuard (pri 600) periodically snapshots storage state to disk
// so a crash mid-run does not lose cookies/local-storage, and writes a
// final snapshot on detach.
type PersistenceGuard struct {
	baseGuard
	Path     string
	Interval time.Duration

	cancel context.CancelFunc
}

func (g *PersistenceGuard) Name() string { return "persistence" }
func (g *PersistenceGuard) Priority() int { return 600 }

const defaultPersistInterval = 30 * time.Second

func (g *PersistenceGuard) Attach(ctx context.Context, gctx GuardContext) error {
	if g.Path == "" {
		return nil
	}
	if g.Interval <= 0 {
		g.Interval = defaultPersistInterval
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	go func() {
		ticker := time.NewTicker(g.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				g.snapshot(gctx)
			}
		}
	}()

	g.onTeardown(func() {
		if g.cancel != nil {
			g.cancel()
		}
		g.snapshot(gctx)
	})
	return nil
}

func (g *PersistenceGuard) snapshot(gctx GuardContext) {
	state, err := gctx.BrowserContext.StorageState(g.Path)
	_ = state
	if err != nil {
		return
	}
}

func (g *PersistenceGuard) Detach() { g.runTeardowns() }
