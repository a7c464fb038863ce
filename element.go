package htmlshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")

	// ErrNoImageData is returned when a screenshot reply carries no payload.
	ErrNoImageData = errors.New("no image data received")
)

// backgroundClearTimeout bounds the best-effort background-override clear
// that runs after a capture even when the caller's context is already gone.
const backgroundClearTimeout = 5 * time.Second

// Element is a resolved DOM node within a tab, addressed by its backend
// node id so capture calls stay valid across DOM mutations. It has no
// independent destruction; closing its tab invalidates it.
type Element struct {
	tab           *Tab
	backendNodeID int64
}

// FindElement resolves a CSS selector against the document and returns a
// handle to the first matching node.
func (t *Tab) FindElement(ctx context.Context, selector string) (*Element, error) {
	res, err := t.call(ctx, "DOM.getDocument", struct{}{})
	if err != nil {
		return nil, err
	}
	var doc struct {
		Root struct {
			NodeID int64 `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(res, &doc); err != nil || doc.Root.NodeID == 0 {
		return nil, fmt.Errorf("%w: document reply missing root node", ErrUnexpectedResponse)
	}

	res, err = t.call(ctx, "DOM.querySelector", map[string]any{
		"nodeId":   doc.Root.NodeID,
		"selector": selector,
	})
	if err != nil {
		return nil, err
	}
	var query struct {
		NodeID int64 `json:"nodeId"`
	}
	if err := json.Unmarshal(res, &query); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if query.NodeID == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	// The transient node id goes stale on DOM mutation; describe the node to
	// obtain its stable backend id.
	res, err = t.call(ctx, "DOM.describeNode", map[string]any{"nodeId": query.NodeID})
	if err != nil {
		return nil, err
	}
	var desc struct {
		Node struct {
			BackendNodeID int64 `json:"backendNodeId"`
		} `json:"node"`
	}
	if err := json.Unmarshal(res, &desc); err != nil || desc.Node.BackendNodeID == 0 {
		return nil, fmt.Errorf("%w: describe reply missing backendNodeId", ErrUnexpectedResponse)
	}

	return &Element{tab: t, backendNodeID: desc.Node.BackendNodeID}, nil
}

// BackendNodeID returns the node's stable backend id.
func (e *Element) BackendNodeID() int64 {
	return e.backendNodeID
}

// Screenshot captures the element as a JPEG at default quality and returns
// the base64-encoded image bytes.
func (e *Element) Screenshot(ctx context.Context) (string, error) {
	return e.ScreenshotWithOptions(ctx, NewCaptureOptions())
}

// ScreenshotWithOptions captures the element's border box with the given
// options and returns the base64-encoded image bytes.
func (e *Element) ScreenshotWithOptions(ctx context.Context, opts CaptureOptions) (string, error) {
	if opts.Viewport != nil {
		if err := e.tab.SetViewport(ctx, *opts.Viewport); err != nil {
			return "", err
		}
	}

	clip, err := e.borderBox(ctx)
	if err != nil {
		return "", err
	}
	return e.tab.capture(ctx, opts, &clip)
}

// borderBox computes the element's clip rectangle from its box model. The
// clip is taken at scale 1.0: callers reach denser output through the
// viewport device scale factor, not the clip scale.
func (e *Element) borderBox(ctx context.Context) (ClipRegion, error) {
	res, err := e.tab.call(ctx, "DOM.getBoxModel", map[string]any{"backendNodeId": e.backendNodeID})
	if err != nil {
		return ClipRegion{}, err
	}

	var box struct {
		Model struct {
			Border []float64 `json:"border"`
		} `json:"model"`
	}
	if err := json.Unmarshal(res, &box); err != nil || len(box.Model.Border) < 8 {
		return ClipRegion{}, fmt.Errorf("%w: box model reply missing border quad", ErrUnexpectedResponse)
	}

	// The border quad runs clockwise from the top-left corner.
	b := box.Model.Border
	return NewClipRegion(b[0], b[1], b[2]-b[0], b[5]-b[1]), nil
}

// Screenshot captures the tab's viewport, or an explicit clip region when
// the options carry one, and returns the base64-encoded image bytes.
func (t *Tab) Screenshot(ctx context.Context, opts CaptureOptions) (string, error) {
	if opts.Viewport != nil {
		if err := t.SetViewport(ctx, *opts.Viewport); err != nil {
			return "", err
		}
	}
	return t.capture(ctx, opts, opts.Clip)
}

// capture activates the tab and issues the screenshot command. When
// background omission applies, the transparent background override is
// installed immediately before the capture and cleared immediately after,
// regardless of capture success, so it never leaks into later captures on
// the same tab.
func (t *Tab) capture(ctx context.Context, opts CaptureOptions, clip *ClipRegion) (string, error) {
	params := map[string]any{
		"format":                string(opts.format()),
		"fromSurface":           true,
		"captureBeyondViewport": opts.FullPage,
	}
	if opts.format().hasQuality() {
		params["quality"] = opts.quality()
	}
	if clip != nil {
		params["clip"] = map[string]any{
			"x":      clip.X,
			"y":      clip.Y,
			"width":  clip.Width,
			"height": clip.Height,
			"scale":  clip.scale(),
		}
	}

	omitBackground := opts.OmitBackground && opts.format() == FormatPNG
	if omitBackground {
		_, err := t.call(ctx, "Emulation.setDefaultBackgroundColorOverride", map[string]any{
			"color": map[string]int{"r": 0, "g": 0, "b": 0, "a": 0},
		})
		if err != nil {
			return "", err
		}
		defer func() {
			clearCtx, cancel := context.WithTimeout(context.Background(), backgroundClearTimeout)
			defer cancel()
			if _, err := t.call(clearCtx, "Emulation.setDefaultBackgroundColorOverride", struct{}{}); err != nil {
				t.log.Warn("clear background override", zap.Error(err))
			}
		}()
	}

	if err := t.Activate(ctx); err != nil {
		return "", err
	}

	res, err := t.call(ctx, "Page.captureScreenshot", params)
	if err != nil {
		return "", err
	}

	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(res, &shot); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if shot.Data == "" {
		return "", ErrNoImageData
	}
	return shot.Data, nil
}
