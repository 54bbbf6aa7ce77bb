package chatclient

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/valyala/fasthttp"
)

// Kind classifies a failed chat exchange.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindNetworkUnreachable Kind = "network_unreachable"
	KindServerError        Kind = "server_error"
	KindUnknown            Kind = "unknown"
)

// User-facing messages, one per Kind.
const (
	MsgTimeout             = "Request timed out. Please try again."
	MsgNetworkUnreachable  = "Cannot connect to backend. Please ensure the server is running on port 8000."
	MsgServerErrorFallback = "Server error occurred"
	MsgUnknown             = "An unexpected error occurred."
)

// Error is returned by Send for every failed exchange. Its Error string is
// the user-facing message.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int   // set for KindServerError
	Err        error // underlying cause, if any
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return MsgUnknown
}

// classifyTransport maps an error from the HTTP round trip (no response
// received) onto Timeout, NetworkUnreachable or Unknown. Timeout wins.
func classifyTransport(err error) *Error {
	var netErr net.Error
	isNet := errors.As(err, &netErr)

	switch {
	case errors.Is(err, fasthttp.ErrTimeout),
		errors.Is(err, fasthttp.ErrDialTimeout),
		// gave up waiting for a pooled connection; the server was never asked
		errors.Is(err, fasthttp.ErrNoFreeConns),
		isNet && netErr.Timeout():
		return &Error{Kind: KindTimeout, Message: MsgTimeout, Err: err}
	case isNet,
		errors.Is(err, fasthttp.ErrConnectionClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return &Error{Kind: KindNetworkUnreachable, Message: MsgNetworkUnreachable, Err: err}
	default:
		return &Error{Kind: KindUnknown, Message: MsgUnknown, Err: err}
	}
}

// serverError builds the error for a non-2xx response. The message is the
// body's string detail, falling back to a generic text.
func serverError(status int, body []byte) *Error {
	msg := MsgServerErrorFallback
	var eb models.ErrorResponse
	if err := json.Unmarshal(body, &eb); err == nil {
		if s, ok := eb.Detail.(string); ok && s != "" {
			msg = s
		}
	}
	return &Error{Kind: KindServerError, Message: msg, StatusCode: status}
}
