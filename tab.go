package htmlshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shotcraft/htmlshot/internal/cdp"
)

var (
	// ErrTabClosed is returned when operating on a closed tab.
	ErrTabClosed = errors.New("tab is closed")

	// ErrContentUnstable is returned when a freshly written page never
	// reaches visual stability within the readiness timeout.
	ErrContentUnstable = errors.New("content never stabilized")

	// ErrUnexpectedResponse is returned when a protocol reply is missing an
	// expected field. Shape mismatches surface immediately rather than being
	// guessed at.
	ErrUnexpectedResponse = errors.New("unexpected response shape")
)

// Tab is one attached browser tab. All of its commands travel through the
// shared transport wrapped in target envelopes scoped by its session id.
type Tab struct {
	client    *cdp.Client
	targetID  string
	sessionID string
	log       *zap.Logger

	closed atomic.Bool
}

// newTab creates a blank target and attaches to it.
func newTab(ctx context.Context, client *cdp.Client, log *zap.Logger) (*Tab, error) {
	res, err := client.Call(ctx, "Target.createTarget", map[string]string{"url": "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(res, &created); err != nil || created.TargetID == "" {
		return nil, fmt.Errorf("%w: create target reply missing targetId", ErrUnexpectedResponse)
	}

	res, err = client.Call(ctx, "Target.attachToTarget", map[string]string{"targetId": created.TargetID})
	if err != nil {
		return nil, fmt.Errorf("attach to target: %w", err)
	}
	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(res, &attached); err != nil || attached.SessionID == "" {
		return nil, fmt.Errorf("%w: attach reply missing sessionId", ErrUnexpectedResponse)
	}

	return &Tab{
		client:    client,
		targetID:  created.TargetID,
		sessionID: attached.SessionID,
		log:       log,
	}, nil
}

// TargetID returns the tab's target id.
func (t *Tab) TargetID() string {
	return t.targetID
}

// SessionID returns the attached session id.
func (t *Tab) SessionID() string {
	return t.sessionID
}

// call dispatches a session-scoped command and returns the inner result.
func (t *Tab) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.closed.Load() {
		return nil, ErrTabClosed
	}
	return t.dispatch(ctx, method, params)
}

// dispatch wraps an inner command in a Target.sendMessageToTarget envelope
// and joins the envelope send with the embedded-reply wait. The waiter is
// registered before the send and both are awaited together; sequential
// awaits would let a fast reply arrive while nobody is listening.
func (t *Tab) dispatch(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := cdp.NextID()
	waiter := t.client.ExpectEmbedded(id)

	var result json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.client.SendToTarget(gctx, t.sessionID, cdp.Request{ID: id, Method: method, Params: params})
	})
	g.Go(func() error {
		res, err := waiter.Wait(gctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err := g.Wait(); err != nil {
		waiter.Cancel()
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

// evalResult is the Runtime.evaluate reply shape.
type evalResult struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception *struct {
			Description string `json:"description"`
		} `json:"exception"`
	} `json:"exceptionDetails"`
}

// SetContent writes html into the document and returns once the page is
// visually stable: readyState complete, fonts and resources loaded, and a
// trailing mutation-free quiet window observed. A page that never settles
// returns ErrContentUnstable.
func (t *Tab) SetContent(ctx context.Context, html string) error {
	expr, err := stabilityScript(html)
	if err != nil {
		return err
	}

	res, err := t.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"awaitPromise":  true,
		"returnByValue": true,
	})
	if err != nil {
		return err
	}

	var eval evalResult
	if err := json.Unmarshal(res, &eval); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if eval.ExceptionDetails != nil {
		detail := eval.ExceptionDetails.Text
		if eval.ExceptionDetails.Exception != nil && eval.ExceptionDetails.Exception.Description != "" {
			detail = eval.ExceptionDetails.Exception.Description
		}
		return fmt.Errorf("%w: %s", ErrContentUnstable, detail)
	}
	return nil
}

// LoadWaiter is a pending wait for a navigation's load event.
type LoadWaiter struct {
	waiter *cdp.EventWaiter
}

// Wait blocks until the load event fires or the context expires.
func (w *LoadWaiter) Wait(ctx context.Context) error {
	return w.waiter.Wait(ctx)
}

// NavigateAsync issues the navigation without waiting for the page to load
// and returns a load waiter that was registered before the navigate command
// went out, so a page that loads instantly cannot slip past a later Wait.
// Useful for local file URLs where load completion rarely matters.
func (t *Tab) NavigateAsync(ctx context.Context, url string) (*LoadWaiter, error) {
	if _, err := t.call(ctx, "Page.enable", struct{}{}); err != nil {
		return nil, err
	}

	waiter := t.client.ListenEvent(t.sessionID, "Page.loadEventFired")
	if _, err := t.call(ctx, "Page.navigate", map[string]string{"url": url}); err != nil {
		waiter.Cancel()
		return nil, err
	}
	return &LoadWaiter{waiter: waiter}, nil
}

// Navigate loads a URL and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	w, err := t.NavigateAsync(ctx, url)
	if err != nil {
		return err
	}
	return w.Wait(ctx)
}

// SetViewport overrides the tab's device metrics and, if requested, enables
// touch emulation.
func (t *Tab) SetViewport(ctx context.Context, v Viewport) error {
	orientation := map[string]any{"type": "portraitPrimary", "angle": 0}
	if v.IsLandscape {
		orientation = map[string]any{"type": "landscapePrimary", "angle": 90}
	}

	_, err := t.call(ctx, "Emulation.setDeviceMetricsOverride", map[string]any{
		"width":             v.Width,
		"height":            v.Height,
		"deviceScaleFactor": v.scale(),
		"mobile":            v.IsMobile,
		"screenOrientation": orientation,
	})
	if err != nil {
		return err
	}

	if v.HasTouch {
		if _, err := t.call(ctx, "Emulation.setTouchEmulationEnabled", map[string]any{"enabled": true}); err != nil {
			return err
		}
	}
	return nil
}

// ClearViewport removes any device metrics override.
func (t *Tab) ClearViewport(ctx context.Context) error {
	_, err := t.call(ctx, "Emulation.clearDeviceMetricsOverride", struct{}{})
	return err
}

// Activate brings the tab to the foreground. Screenshots on some
// configurations require the target to be the active one.
func (t *Tab) Activate(ctx context.Context) error {
	_, err := t.call(ctx, "Target.activateTarget", map[string]string{"targetId": t.targetID})
	return err
}

// Close destroys the tab's target. The tab is unusable afterwards: any
// further call, including a second Close, returns ErrTabClosed.
func (t *Tab) Close(ctx context.Context) error {
	if t.closed.Swap(true) {
		return ErrTabClosed
	}
	_, err := t.dispatch(ctx, "Target.closeTarget", map[string]string{"targetId": t.targetID})
	return err
}
