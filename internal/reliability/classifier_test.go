package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
)

func TestIsUnavailableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{403, false},
		{500, false},
		{502, true},
		{503, true},
		{504, true},
	}
	for _, tc := range cases {
		got := IsUnavailableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsUnavailableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsNetworkError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), true},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, true},
		{"dial op", &net.OpError{Op: "dial", Err: errors.New("boom")}, true},
		{"read op", &net.OpError{Op: "read", Err: errors.New("boom")}, false},
		{"handshake", websocket.ErrBadHandshake, false},
	}
	for _, tc := range cases {
		if got := IsNetworkError(tc.err); got != tc.want {
			t.Fatalf("%s: IsNetworkError = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsNormalClose(t *testing.T) {
	if !IsNormalClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}) {
		t.Fatalf("normal closure not recognized")
	}
	if IsNormalClose(&websocket.CloseError{Code: websocket.CloseInternalServerErr}) {
		t.Fatalf("internal error treated as normal")
	}
	if IsNormalClose(errors.New("eof")) {
		t.Fatalf("plain error treated as close")
	}
}
