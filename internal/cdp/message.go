package cdp

import (
	"encoding/json"
	"fmt"
)

// Method names for the Target envelope protocol. Per-tab commands travel
// wrapped inside these; the inner payload is a JSON string, not an object.
const (
	methodSendToTarget   = "Target.sendMessageToTarget"
	methodReceivedTarget = "Target.receivedMessageFromTarget"
)

// Request represents a CDP command request.
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response represents a CDP command response, top-level or embedded.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error represents a CDP protocol error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// envelopeParams is the parameter shape of Target.sendMessageToTarget and
// Target.receivedMessageFromTarget. Message holds the inner command or reply
// serialized as a string.
type envelopeParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// message is used internally to classify an inbound frame during parsing.
type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// innerMessage classifies the payload nested inside a
// Target.receivedMessageFromTarget notification: an id marks an embedded
// command reply, a method marks a session-scoped event.
type innerMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// frame is the classified form of one inbound WebSocket message.
// Exactly one interpretation is populated:
//
//   - resp: a top-level command response
//   - embedded (with sessionID): a command reply relayed from a target
//   - eventMethod (with sessionID): an event relayed from a target
type frame struct {
	resp        *Response
	embedded    *Response
	eventMethod string
	sessionID   string
}

// parseFrame classifies a raw inbound message. Frames matching none of the
// known shapes return an error; the read loop drops them, since the browser
// emits plenty of notifications the client never subscribed to.
func parseFrame(data []byte) (*frame, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse cdp message: %w", err)
	}

	// Messages with an id are responses to top-level commands.
	if msg.ID != 0 {
		return &frame{resp: &Response{ID: msg.ID, Result: msg.Result, Error: msg.Error}}, nil
	}

	if msg.Method != methodReceivedTarget {
		return nil, fmt.Errorf("unhandled cdp notification: %s", msg.Method)
	}

	var env envelopeParams
	if err := json.Unmarshal(msg.Params, &env); err != nil {
		return nil, fmt.Errorf("parse target envelope: %w", err)
	}

	var inner innerMessage
	if err := json.Unmarshal([]byte(env.Message), &inner); err != nil {
		return nil, fmt.Errorf("parse embedded message: %w", err)
	}

	if inner.ID != 0 {
		return &frame{
			embedded:  &Response{ID: inner.ID, Result: inner.Result, Error: inner.Error},
			sessionID: env.SessionID,
		}, nil
	}

	if inner.Method != "" {
		return &frame{eventMethod: inner.Method, sessionID: env.SessionID}, nil
	}

	return nil, fmt.Errorf("unknown embedded message format: %s", env.Message)
}
