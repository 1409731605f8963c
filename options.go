package clamd

import (
	"net"
	"time"
)

// LineTerminator selects the byte that frames protocol lines. The
// terminator also determines the command prefix sent to the daemon
// ("n" for newline-framed commands, "z" for NUL-framed ones).
type LineTerminator byte

const (
	// TerminateNewline frames lines with '\n'. This is the default.
	TerminateNewline LineTerminator = '\n'
	// TerminateNull frames lines with a NUL byte. NUL framing is part of
	// the clamd protocol but is poorly exercised in the wild; prefer
	// TerminateNewline unless scanned paths may contain newlines.
	TerminateNull LineTerminator = 0
)

// prefix returns the command prefix byte matching the terminator.
func (t LineTerminator) prefix() byte {
	if t == TerminateNull {
		return 'z'
	}
	return 'n'
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithTimeout sets the per-command timeout covering dial, write, and
// read. If a context with a shorter deadline is provided to a method,
// that deadline takes precedence. Non-positive durations are ignored
// (no-op).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxChunkSize sets the maximum payload size of a single INSTREAM
// chunk, in bytes. Non-positive sizes are ignored (no-op).
func WithMaxChunkSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxChunkSize = n
		}
	}
}

// WithLineTerminator sets the line terminator used to frame commands and
// responses. See the LineTerminator constants for caveats.
func WithLineTerminator(t LineTerminator) ClientOption {
	return func(c *Client) {
		c.terminator = t
	}
}

// WithDialer sets a custom net.Dialer, allowing control over local
// addresses, keep-alives, and dial-level socket options.
func WithDialer(d net.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}
