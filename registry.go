package htmlshot

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

var (
	sharedMu      sync.Mutex
	sharedBrowser *Browser
)

// Shared returns a process-wide headless browser, launching one on first
// use. Before reuse the existing instance is probed; a dead browser is torn
// down and replaced, so callers always get a responsive instance. Callers
// must not Close the returned browser; use CloseShared.
func Shared(ctx context.Context) (*Browser, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedBrowser != nil {
		if sharedBrowser.alive(ctx) {
			return sharedBrowser, nil
		}
		if err := sharedBrowser.Close(); err != nil {
			sharedBrowser.log.Warn("close dead shared browser", zap.Error(err))
		}
		sharedBrowser = nil
	}

	b, err := New(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.CloseInitialTab(ctx); err != nil {
		b.log.Warn("close initial tab", zap.Error(err))
	}
	sharedBrowser = b
	return b, nil
}

// CloseShared tears down the shared browser, if any. The next Shared call
// launches a fresh one.
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedBrowser == nil {
		return nil
	}
	err := sharedBrowser.Close()
	sharedBrowser = nil
	return err
}
