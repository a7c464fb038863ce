// Package htmlshot captures pixel-accurate screenshots of HTML content and
// DOM elements by driving a Chromium-family browser over its DevTools
// wire protocol.
package htmlshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shotcraft/htmlshot/internal/cdp"
	"github.com/shotcraft/htmlshot/internal/chrome"
)

// shutdownTimeout bounds the transport's graceful close.
const shutdownTimeout = 5 * time.Second

// probeTimeout bounds the liveness round-trip used before reusing a shared
// browser.
const probeTimeout = 3 * time.Second

// Options configures a browser launch.
type Options struct {
	// ExecPath is an explicit browser executable. Empty means discover via
	// the HTMLSHOT_CHROME environment variable, well-known install paths,
	// and PATH.
	ExecPath string

	// Headless hides the browser window.
	Headless bool

	// TempDirBase is where isolated profile directories are created.
	// Empty means the system temp directory.
	TempDirBase string

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Browser is a running browser plus the transport shared by all tabs
// spawned from it. It exclusively owns its child process when launched;
// adopted browsers have no process to supervise.
type Browser struct {
	client *cdp.Client
	proc   *chrome.Process // nil when adopted
	log    *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// New launches a headless browser with default options.
func New(ctx context.Context) (*Browser, error) {
	return Launch(ctx, Options{Headless: true})
}

// NewHeaded launches a browser with a visible window.
func NewHeaded(ctx context.Context) (*Browser, error) {
	return Launch(ctx, Options{})
}

// Launch starts a browser process and connects to its debug endpoint.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	proc, wsURL, err := chrome.Launch(ctx, chrome.Options{
		ExecPath:    opts.ExecPath,
		Headless:    opts.Headless,
		TempDirBase: opts.TempDirBase,
	}, log)
	if err != nil {
		return nil, err
	}

	client, err := cdp.Dial(ctx, wsURL, log)
	if err != nil {
		// The process spawned but is unusable; do not leave it behind.
		proc.Close()
		return nil, err
	}

	return &Browser{client: client, proc: proc, log: log}, nil
}

// Connect adopts a browser that is already running, identified by its debug
// WebSocket URL. The adopted process is not supervised: Close shuts down
// the transport but kills nothing.
func Connect(ctx context.Context, wsURL string, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := cdp.Dial(ctx, wsURL, logger)
	if err != nil {
		return nil, err
	}
	return &Browser{client: client, log: logger}, nil
}

// NewTab opens a blank tab and attaches to it.
func (b *Browser) NewTab(ctx context.Context) (*Tab, error) {
	return newTab(ctx, b.client, b.log)
}

// CloseInitialTab closes the blank tab the browser opens at startup.
func (b *Browser) CloseInitialTab(ctx context.Context) error {
	res, err := b.client.Call(ctx, "Target.getTargets", struct{}{})
	if err != nil {
		return err
	}

	var targets struct {
		TargetInfos []struct {
			TargetID string `json:"targetId"`
			Type     string `json:"type"`
		} `json:"targetInfos"`
	}
	if err := json.Unmarshal(res, &targets); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	for _, info := range targets.TargetInfos {
		if info.Type == "page" {
			_, err := b.client.Call(ctx, "Target.closeTarget", map[string]string{"targetId": info.TargetID})
			return err
		}
	}
	return fmt.Errorf("%w: no page target to close", ErrUnexpectedResponse)
}

// CaptureHTML renders html in a fresh tab, waits for visual stability, and
// returns a base64-encoded screenshot of the node matching selector, using
// default capture options.
func (b *Browser) CaptureHTML(ctx context.Context, html, selector string) (string, error) {
	return b.CaptureHTMLWithOptions(ctx, html, selector, NewCaptureOptions())
}

// CaptureHTMLWithOptions is CaptureHTML with explicit capture options. The
// working tab is closed best-effort: a close failure is logged, never
// allowed to turn a successful capture into an error.
func (b *Browser) CaptureHTMLWithOptions(ctx context.Context, html, selector string, opts CaptureOptions) (string, error) {
	tab, err := b.NewTab(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := tab.Close(ctx); cerr != nil {
			b.log.Warn("close capture tab", zap.Error(cerr))
		}
	}()

	if err := tab.SetContent(ctx, html); err != nil {
		return "", err
	}
	element, err := tab.FindElement(ctx, selector)
	if err != nil {
		return "", err
	}
	return element.ScreenshotWithOptions(ctx, opts)
}

// alive probes the browser with a cheap round-trip.
func (b *Browser) alive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := b.client.Call(ctx, "Browser.getVersion", struct{}{})
	return err == nil
}

// Close shuts down the transport and tears down the owned process. The
// transport goes first so the browser gets its Browser.close; the process
// kill and profile removal follow, in that order. Close is idempotent.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		b.closeErr = b.client.Shutdown(ctx)
		if b.proc != nil {
			b.proc.Close()
		}
	})
	return b.closeErr
}
