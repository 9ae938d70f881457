// Package reliability classifies transport failures so callers can tell an
// unreachable server apart from a server that refused the session.
package reliability

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// IsUnavailableHTTPStatus reports statuses a gateway returns when the
// upstream server cannot be reached.
func IsUnavailableHTTPStatus(code int) bool {
	switch code {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsNetworkError reports dial-level failures: refused connections, DNS
// failures, timeouts and unreachable hosts.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNormalClose reports a websocket closure the peer initiated cleanly.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
