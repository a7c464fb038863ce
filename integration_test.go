//go:build integration

package htmlshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const cardHTML = `<!DOCTYPE html>
<html><head><style>
  body { margin: 0; }
  #card { width: 400px; height: 200px; background: #336699; color: #fff; }
</style></head>
<body><div id="card">integration</div></body></html>`

func launchBrowser(t *testing.T) (*Browser, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	b, err := New(ctx)
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, ctx
}

func TestBrowser_CaptureHTML_PNG(t *testing.T) {
	b, ctx := launchBrowser(t)

	data, err := b.CaptureHTMLWithOptions(ctx, cardHTML, "#card", RawPNG())
	if err != nil {
		t.Fatalf("failed to capture: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("capture is not valid base64: %v", err)
	}
	if !bytes.HasPrefix(raw, pngMagic) {
		t.Fatalf("capture does not start with the PNG signature: % x", raw[:min(8, len(raw))])
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to decode capture: %v", err)
	}
	t.Logf("captured #card: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
}

func TestTab_Screenshot_ScaledViewport(t *testing.T) {
	b, ctx := launchBrowser(t)

	tab, err := b.NewTab(ctx)
	if err != nil {
		t.Fatalf("failed to open tab: %v", err)
	}
	defer tab.Close(ctx)

	if err := tab.SetContent(ctx, cardHTML); err != nil {
		t.Fatalf("failed to set content: %v", err)
	}

	opts := RawPNG().WithViewport(NewViewport(800, 600).WithScale(2.0))
	data, err := tab.Screenshot(ctx, opts)
	if err != nil {
		t.Fatalf("failed to capture viewport: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("capture is not valid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to decode capture: %v", err)
	}

	// 800x600 CSS pixels at device scale 2.0 must produce a 1600x1200 image.
	if img.Bounds().Dx() != 1600 || img.Bounds().Dy() != 1200 {
		t.Errorf("scaled capture is %dx%d, want 1600x1200", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestTab_Navigate_FileURL(t *testing.T) {
	b, ctx := launchBrowser(t)

	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(cardHTML), 0o644); err != nil {
		t.Fatalf("failed to write page: %v", err)
	}

	tab, err := b.NewTab(ctx)
	if err != nil {
		t.Fatalf("failed to open tab: %v", err)
	}
	defer tab.Close(ctx)

	w, err := tab.NavigateAsync(ctx, "file://"+filepath.ToSlash(path))
	if err != nil {
		t.Fatalf("failed to navigate: %v", err)
	}

	// Local files load near-instantly; by now the load event has almost
	// certainly fired. Wait must still succeed because the waiter was
	// registered before the navigate command went out.
	time.Sleep(500 * time.Millisecond)
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("failed waiting for load: %v", err)
	}

	el, err := tab.FindElement(ctx, "#card")
	if err != nil {
		t.Fatalf("failed to find element on navigated page: %v", err)
	}
	if el.BackendNodeID() == 0 {
		t.Error("expected a resolved backend node id")
	}
}
