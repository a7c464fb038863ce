package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every CDP call that arrives without a deadline.
const DefaultTimeout = 30 * time.Second

// ErrClientClosed is returned when operating on a closed client.
var ErrClientClosed = errors.New("cdp client is closed")

// msgID is the process-global command id counter. Top-level commands and
// commands embedded in target envelopes share it, so a direct response can
// never collide with an embedded one.
var msgID atomic.Int64

// NextID allocates a monotonically increasing command id.
func NextID() int64 {
	return msgID.Add(1)
}

// eventKey identifies one-shot event waiters: events relayed from a target
// are scoped by session, not globally.
type eventKey struct {
	sessionID string
	method    string
}

// Client owns the browser-level WebSocket. The read loop is the only reader;
// writes are serialized through writeMu. All correlation state lives in the
// three waiter tables:
//
//   - pending: top-level command id -> reply channel
//   - embedded: inner command id -> reply channel (replies arrive wrapped in
//     Target.receivedMessageFromTarget notifications)
//   - events: (sessionId, method) -> one-shot waiter channels
type Client struct {
	conn    Conn
	writeMu sync.Mutex
	log     *zap.Logger

	pending  sync.Map // map[int64]chan *Response
	embedded sync.Map // map[int64]chan *Response

	eventMu sync.Mutex
	events  map[eventKey][]chan struct{}

	closed   atomic.Bool
	closedCh chan struct{}
	closeErr error
	closeMu  sync.Mutex

	// done signals that the read loop has exited
	done chan struct{}
}

// NewClient creates a client over an established connection and starts its
// read loop. A nil logger disables logging.
func NewClient(conn Conn, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		conn:     conn,
		log:      log,
		events:   make(map[eventKey][]chan struct{}),
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to a CDP endpoint and returns a new client.
func Dial(ctx context.Context, wsURL string, log *zap.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to cdp endpoint: %w", err)
	}
	return NewClient(conn, log), nil
}

// Call sends a top-level CDP command and waits for the matching response.
// If ctx carries no deadline, DefaultTimeout applies.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	id := NextID()
	data, err := json.Marshal(Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Register the waiter before writing so the reply cannot slip past it.
	respCh := make(chan *Response, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	if err := c.write(ctx, data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: request timed out: %w", method, ctx.Err())
	case <-c.closedCh:
		return nil, ErrClientClosed
	}
}

// SendToTarget serializes an inner command and issues it wrapped in a
// Target.sendMessageToTarget envelope scoped to sessionID. The returned
// result acknowledges the envelope only; the inner reply arrives through an
// ExpectEmbedded waiter registered for inner.ID before this call.
func (c *Client) SendToTarget(ctx context.Context, sessionID string, inner Request) error {
	data, err := json.Marshal(inner)
	if err != nil {
		return fmt.Errorf("marshal inner request: %w", err)
	}
	_, err = c.Call(ctx, methodSendToTarget, envelopeParams{SessionID: sessionID, Message: string(data)})
	return err
}

// EmbeddedReply is a registered waiter for a command reply that will arrive
// inside a Target.receivedMessageFromTarget notification.
type EmbeddedReply struct {
	id int64
	c  *Client
	ch chan *Response
}

// ExpectEmbedded registers a waiter for the given inner command id. Callers
// must register before triggering the send that produces the reply, then
// await the send and the waiter together; awaiting sequentially races the
// reply against the registration.
func (c *Client) ExpectEmbedded(id int64) *EmbeddedReply {
	ch := make(chan *Response, 1)
	c.embedded.Store(id, ch)
	return &EmbeddedReply{id: id, c: c, ch: ch}
}

// Wait blocks until the embedded reply arrives, the context expires, or the
// client closes. The waiter is deregistered on every exit path.
// If ctx carries no deadline, DefaultTimeout applies.
func (r *EmbeddedReply) Wait(ctx context.Context) (json.RawMessage, error) {
	defer r.c.embedded.Delete(r.id)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	select {
	case resp := <-r.ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("embedded reply %d timed out: %w", r.id, ctx.Err())
	case <-r.c.closedCh:
		return nil, ErrClientClosed
	}
}

// Cancel deregisters the waiter without waiting.
func (r *EmbeddedReply) Cancel() {
	r.c.embedded.Delete(r.id)
}

// EventWaiter is a registered one-shot waiter for a session-scoped event.
type EventWaiter struct {
	key eventKey
	c   *Client
	ch  chan struct{}
}

// ListenEvent registers a one-shot waiter for a named event on a session.
// All waiters registered for the same key are released by a single matching
// occurrence; the event is not queued, so a waiter registered after the
// event fired never wakes. Register before issuing the command that causes
// the event.
func (c *Client) ListenEvent(sessionID, method string) *EventWaiter {
	key := eventKey{sessionID: sessionID, method: method}
	ch := make(chan struct{})

	c.eventMu.Lock()
	c.events[key] = append(c.events[key], ch)
	c.eventMu.Unlock()

	return &EventWaiter{key: key, c: c, ch: ch}
}

// Wait blocks until the event fires, the context expires, or the client
// closes. If ctx carries no deadline, DefaultTimeout applies.
func (w *EventWaiter) Wait(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		w.Cancel()
		return fmt.Errorf("event %s timed out: %w", w.key.method, ctx.Err())
	case <-w.c.closedCh:
		w.Cancel()
		return ErrClientClosed
	}
}

// Cancel deregisters the waiter if it has not fired yet.
func (w *EventWaiter) Cancel() {
	w.c.eventMu.Lock()
	defer w.c.eventMu.Unlock()

	waiters := w.c.events[w.key]
	for i, ch := range waiters {
		if ch == w.ch {
			w.c.events[w.key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(w.c.events[w.key]) == 0 {
		delete(w.c.events, w.key)
	}
}

// WaitForEvent registers for an event and blocks until it fires. Use
// ListenEvent directly when the registration must precede another command.
func (c *Client) WaitForEvent(ctx context.Context, sessionID, method string) error {
	return c.ListenEvent(sessionID, method).Wait(ctx)
}

// Shutdown sends a best-effort Browser.close, closes the socket, and waits
// for the read loop to exit. It does not kill the OS process; that is the
// supervisor's job.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.closed.Swap(true) {
		// The read loop may have flipped closed when the socket died; the
		// handle still needs releasing. A second Shutdown re-closes an
		// already-closed conn, which is harmless.
		_ = c.conn.Close(websocket.StatusNormalClosure, "client closing")
		<-c.done
		return nil
	}
	close(c.closedCh)

	data, err := json.Marshal(Request{ID: NextID(), Method: "Browser.close", Params: struct{}{}})
	if err == nil {
		if werr := c.write(ctx, data); werr != nil {
			c.log.Debug("browser close command failed", zap.Error(werr))
		}
	}

	cerr := c.conn.Close(websocket.StatusNormalClosure, "client closing")

	// Wait for read loop to exit
	<-c.done

	return cerr
}

// Err returns the error that terminated the read loop, if any.
func (c *Client) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

func (c *Client) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// readLoop reads frames from the connection and routes them to waiters.
// Unparseable or unmatched frames are dropped: best-effort routing is the
// protocol's contract, not an error condition.
func (c *Client) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !c.closed.Swap(true) {
				c.closeMu.Lock()
				c.closeErr = err
				c.closeMu.Unlock()
				close(c.closedCh)
			}
			return
		}

		f, err := parseFrame(data)
		if err != nil {
			continue
		}

		switch {
		case f.resp != nil:
			c.deliver(&c.pending, f.resp)
		case f.embedded != nil:
			c.deliver(&c.embedded, f.embedded)
		case f.eventMethod != "":
			c.fireEvent(f.sessionID, f.eventMethod)
		}
	}
}

// deliver hands a response to its waiter. A missing waiter means the caller
// timed out and deregistered; the late reply is dropped.
func (c *Client) deliver(table *sync.Map, resp *Response) {
	if ch, ok := table.Load(resp.ID); ok {
		select {
		case ch.(chan *Response) <- resp:
		default:
		}
	}
}

// fireEvent releases every waiter registered for (sessionID, method) and
// clears the key.
func (c *Client) fireEvent(sessionID, method string) {
	key := eventKey{sessionID: sessionID, method: method}

	c.eventMu.Lock()
	waiters := c.events[key]
	delete(c.events, key)
	c.eventMu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}
