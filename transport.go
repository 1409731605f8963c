package clamd

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
)

// chunkHeaderSize is the size of the INSTREAM length prefix: a 4-byte
// unsigned integer in network byte order.
const chunkHeaderSize = 4

// transport dials clamd over one socket family. The concrete type is
// chosen once, at client construction.
type transport interface {
	dial(ctx context.Context, d *net.Dialer) (net.Conn, error)
	// addr returns the target address for error messages.
	addr() string
}

type tcpTransport struct {
	address string
}

func (t tcpTransport) dial(ctx context.Context, d *net.Dialer) (net.Conn, error) {
	return d.DialContext(ctx, "tcp", t.address)
}

func (t tcpTransport) addr() string {
	return t.address
}

type unixTransport struct {
	path string
}

func (t unixTransport) dial(ctx context.Context, d *net.Dialer) (net.Conn, error) {
	return d.DialContext(ctx, "unix", t.path)
}

func (t unixTransport) addr() string {
	return t.path
}

// conn is a single-command connection to the daemon. It owns the socket
// for the duration of one request/response exchange.
type conn struct {
	sock       net.Conn
	terminator LineTerminator
	ctx        context.Context
	stop       func() bool
}

// dial opens a connection honoring the client timeout and the context
// deadline, whichever is sooner. Context cancellation after dialing
// tears the socket down by forcing an expired deadline.
func (c *Client) dial(ctx context.Context) (*conn, error) {
	d := c.dialer
	if d.Timeout == 0 || d.Timeout > c.timeout {
		d.Timeout = c.timeout
	}

	sock, err := c.transport.dial(ctx, &d)
	if err != nil {
		return nil, classifySocketError("error connecting to "+c.transport.addr(), err, ctx)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := sock.SetDeadline(deadline); err != nil {
		sock.Close()
		return nil, NewConnectionError("failed to set socket deadline", err)
	}

	stop := context.AfterFunc(ctx, func() {
		sock.SetDeadline(time.Unix(1, 0)) //nolint:errcheck
	})

	return &conn{
		sock:       sock,
		terminator: c.terminator,
		ctx:        ctx,
		stop:       stop,
	}, nil
}

// close releases the socket and the context watcher.
func (cn *conn) close() error {
	cn.stop()
	return cn.sock.Close()
}

// sendCommand writes "<prefix><CMD>[ <args>]<terminator>" in a single
// socket write, e.g. "nPING\n" or "zSCAN /tmp/f\x00".
func (cn *conn) sendCommand(cmd string, args ...string) error {
	b := make([]byte, 0, len(cmd)+2)
	b = append(b, cn.terminator.prefix())
	b = append(b, cmd...)
	for _, arg := range args {
		b = append(b, ' ')
		b = append(b, arg...)
	}
	b = append(b, byte(cn.terminator))

	if _, err := cn.sock.Write(b); err != nil {
		return classifySocketError("error writing to socket", err, cn.ctx)
	}
	return nil
}

// readResponse reads until the daemon closes the connection and strips
// the framing terminator. Multi-line responses keep their interior
// terminators for the caller to split.
func (cn *conn) readResponse() (string, error) {
	data, err := io.ReadAll(cn.sock)
	if err != nil {
		return "", classifySocketError("error reading from socket", err, cn.ctx)
	}
	return strings.Trim(string(data), cn.terminator.cutset()), nil
}

// writeChunks streams r to the daemon as length-prefixed chunks of at
// most chunkSize payload bytes, then writes the terminating zero-length
// chunk. An empty source still produces the zero-length chunk. The
// staging buffer holds the header and payload contiguously so each chunk
// goes out in one write.
func (cn *conn) writeChunks(r io.Reader, chunkSize int) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if cap(bb.B) < chunkHeaderSize+chunkSize {
		bb.B = make([]byte, chunkHeaderSize+chunkSize)
	}
	buf := bb.B[:chunkHeaderSize+chunkSize]

	for {
		n, err := r.Read(buf[chunkHeaderSize:])
		if n > 0 {
			binary.BigEndian.PutUint32(buf[:chunkHeaderSize], uint32(n))
			if _, werr := cn.sock.Write(buf[:chunkHeaderSize+n]); werr != nil {
				return classifySocketError("error writing stream chunk", werr, cn.ctx)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return NewValidationError("failed to read stream source", err)
		}
	}

	binary.BigEndian.PutUint32(buf[:chunkHeaderSize], 0)
	if _, err := cn.sock.Write(buf[:chunkHeaderSize]); err != nil {
		return classifySocketError("error writing stream terminator", err, cn.ctx)
	}
	return nil
}

// cutset returns the terminator as a string for strings.Trim.
func (t LineTerminator) cutset() string {
	return string([]byte{byte(t)})
}

// classifySocketError maps socket failures to SDK error types. A forced
// deadline after context cancellation shows up as a read timeout, so the
// context is consulted first.
func classifySocketError(msg string, err error, ctx context.Context) error {
	if ctx != nil && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return NewTimeoutError("command canceled", err)
		}
		return NewTimeoutError("command timed out", err)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("command canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NewTimeoutError("command timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("command timed out", err)
	}

	return NewConnectionError(msg, err)
}
