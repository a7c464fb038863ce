package htmlshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/shotcraft/htmlshot/internal/cdp"
)

// handlerFunc services one protocol method in a scripted session. A non-nil
// error is returned to the caller as a protocol error.
type handlerFunc func(params json.RawMessage) (any, *cdp.Error)

// fakeSession is an in-process stand-in for a debug endpoint. It services
// top-level commands directly and unwraps target envelopes, dispatching the
// inner command and relaying the reply through a
// Target.receivedMessageFromTarget notification, the way a real browser
// relays session traffic.
type fakeSession struct {
	t *testing.T

	readCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	topLevel map[string]handlerFunc
	inner    map[string]handlerFunc
	calls    []string
}

func newFakeSession(t *testing.T) *fakeSession {
	t.Helper()
	fs := &fakeSession{
		t:        t,
		readCh:   make(chan []byte, 32),
		closeCh:  make(chan struct{}),
		topLevel: make(map[string]handlerFunc),
		inner:    make(map[string]handlerFunc),
	}

	fs.handleTopLevel("Target.createTarget", func(json.RawMessage) (any, *cdp.Error) {
		return map[string]string{"targetId": "TAB-1"}, nil
	})
	fs.handleTopLevel("Target.attachToTarget", func(json.RawMessage) (any, *cdp.Error) {
		return map[string]string{"sessionId": "SESSION-1"}, nil
	})
	fs.handleTopLevel("Browser.getVersion", func(json.RawMessage) (any, *cdp.Error) {
		return map[string]string{"product": "FakeBrowser/1.0"}, nil
	})
	fs.handleInner("Target.activateTarget", func(json.RawMessage) (any, *cdp.Error) {
		return map[string]any{}, nil
	})
	fs.handleInner("Target.closeTarget", func(json.RawMessage) (any, *cdp.Error) {
		return map[string]bool{"success": true}, nil
	})
	return fs
}

func (fs *fakeSession) handleTopLevel(method string, h handlerFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.topLevel[method] = h
}

func (fs *fakeSession) handleInner(method string, h handlerFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.inner[method] = h
}

// callLog returns the methods dispatched so far, inner commands included,
// in arrival order.
func (fs *fakeSession) callLog() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.calls...)
}

// fireEvent pushes a session-scoped event notification to the client.
func (fs *fakeSession) fireEvent(sessionID, method string) {
	inner, _ := json.Marshal(map[string]any{"method": method, "params": map[string]any{}})
	fs.pushNotification(sessionID, string(inner))
}

func (fs *fakeSession) pushNotification(sessionID, message string) {
	frame, _ := json.Marshal(map[string]any{
		"method": "Target.receivedMessageFromTarget",
		"params": map[string]string{"sessionId": sessionID, "message": message},
	})
	fs.push(frame)
}

func (fs *fakeSession) push(frame []byte) {
	select {
	case fs.readCh <- frame:
	case <-fs.closeCh:
	}
}

func (fs *fakeSession) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data := <-fs.readCh:
		return websocket.MessageText, data, nil
	case <-fs.closeCh:
		return 0, nil, net.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (fs *fakeSession) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	var req struct {
		ID     int64           `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(p, &req); err != nil {
		return fmt.Errorf("malformed outbound frame: %w", err)
	}

	switch req.Method {
	case "Browser.close":
		// Shutdown's best-effort close; no reply expected.
		return nil
	case "Target.sendMessageToTarget":
		var env struct {
			SessionID string `json:"sessionId"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(req.Params, &env); err != nil {
			return fmt.Errorf("malformed envelope: %w", err)
		}
		var innerReq struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal([]byte(env.Message), &innerReq); err != nil {
			return fmt.Errorf("malformed inner message: %w", err)
		}

		result, cerr := fs.dispatch(fs.inner, innerReq.Method, innerReq.Params)
		fs.push(responseFrame(req.ID, map[string]any{}, nil))
		fs.pushNotification(env.SessionID, string(responseFrame(innerReq.ID, result, cerr)))
		return nil
	default:
		result, cerr := fs.dispatch(fs.topLevel, req.Method, req.Params)
		fs.push(responseFrame(req.ID, result, cerr))
		return nil
	}
}

func (fs *fakeSession) dispatch(table map[string]handlerFunc, method string, params json.RawMessage) (any, *cdp.Error) {
	fs.mu.Lock()
	fs.calls = append(fs.calls, method)
	h := table[method]
	fs.mu.Unlock()

	if h == nil {
		return nil, &cdp.Error{Code: -32601, Message: "method not found: " + method}
	}
	return h(params)
}

func (fs *fakeSession) Close(websocket.StatusCode, string) error {
	fs.closeOnce.Do(func() { close(fs.closeCh) })
	return nil
}

// responseFrame serializes one command reply, top-level or inner.
func responseFrame(id int64, result any, cerr *cdp.Error) []byte {
	body := map[string]any{"id": id}
	if cerr != nil {
		body["error"] = cerr
	} else {
		body["result"] = result
	}
	frame, _ := json.Marshal(body)
	return frame
}

// newFakeBrowser wires a Browser to a fake session. Cleanup shuts the
// transport down.
func newFakeBrowser(t *testing.T) (*Browser, *fakeSession) {
	t.Helper()
	fs := newFakeSession(t)
	client := cdp.NewClient(fs, zap.NewNop())
	b := &Browser{client: client, log: zap.NewNop()}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Shutdown(ctx); err != nil {
			t.Errorf("shutdown transport: %v", err)
		}
	})
	return b, fs
}

// newFakeTab opens a tab against a fake session.
func newFakeTab(t *testing.T) (*Tab, *fakeSession) {
	t.Helper()
	b, fs := newFakeBrowser(t)
	tab, err := b.NewTab(context.Background())
	if err != nil {
		t.Fatalf("NewTab: %v", err)
	}
	return tab, fs
}
