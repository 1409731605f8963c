package clamd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxChunkSize = 1024

	cmdPing      = "PING"
	cmdVersion   = "VERSION"
	cmdStats     = "STATS"
	cmdReload    = "RELOAD"
	cmdShutdown  = "SHUTDOWN"
	cmdScan      = "SCAN"
	cmdContScan  = "CONTSCAN"
	cmdMultiScan = "MULTISCAN"
	cmdInStream  = "INSTREAM"
)

// DefaultUnixSocketPath is where most distributions place the clamd
// control socket.
const DefaultUnixSocketPath = "/var/run/clamav/clamd.ctl"

// Client is a clamd protocol client. Each command opens, uses, and
// closes its own connection, so a Client is safe for concurrent use
// from multiple goroutines.
type Client struct {
	transport    transport
	dialer       net.Dialer
	timeout      time.Duration
	maxChunkSize int
	terminator   LineTerminator
}

// NewClient creates a client for the clamd daemon at address. The
// socket family is picked from the address form:
//
//   - "tcp://host:port" or "host:port" for a TCP socket
//   - "unix:///path", "unix:/path", or a bare absolute path for a
//     UNIX domain socket (see DefaultUnixSocketPath)
func NewClient(address string, opts ...ClientOption) (*Client, error) {
	tr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport:    tr,
		timeout:      defaultTimeout,
		maxChunkSize: defaultMaxChunkSize,
		terminator:   TerminateNewline,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// parseAddress maps an address string to its socket family.
func parseAddress(address string) (transport, error) {
	if address == "" {
		return nil, NewValidationError("address must not be empty", nil)
	}

	switch {
	case strings.HasPrefix(address, "unix://"):
		return newUnixTransport(strings.TrimPrefix(address, "unix://"))
	case strings.HasPrefix(address, "unix:"):
		return newUnixTransport(strings.TrimPrefix(address, "unix:"))
	case strings.HasPrefix(address, "tcp://"):
		return newTCPTransport(strings.TrimPrefix(address, "tcp://"))
	case strings.HasPrefix(address, "/"):
		return unixTransport{path: address}, nil
	}
	return newTCPTransport(address)
}

func newUnixTransport(path string) (transport, error) {
	if path == "" {
		return nil, NewValidationError("unix socket path must not be empty", nil)
	}
	return unixTransport{path: path}, nil
}

func newTCPTransport(address string) (transport, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid TCP address: %s", address), err)
	}
	return tcpTransport{address: address}, nil
}

// command runs one request/response exchange on its own connection and
// rejects the daemon replies that can follow any command.
func (c *Client) command(ctx context.Context, cmd string, args ...string) (string, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer cn.close()

	if err := cn.sendCommand(cmd, args...); err != nil {
		return "", err
	}

	resp, err := cn.readResponse()
	if err != nil {
		return "", err
	}

	if err := checkCommandReply(cmd, resp); err != nil {
		return "", err
	}
	return resp, nil
}

// commandChecked additionally turns a trailing-ERROR reply into a
// daemon error. Scan commands must not use it: their ERROR lines are
// per-item results.
func (c *Client) commandChecked(ctx context.Context, cmd string, args ...string) (string, error) {
	resp, err := c.command(ctx, cmd, args...)
	if err != nil {
		return "", err
	}
	if err := checkErrorReply(cmd, resp); err != nil {
		return "", err
	}
	return resp, nil
}

// Ping checks that the daemon is alive. It returns nil on the literal
// PONG reply and a protocol error on anything else.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.commandChecked(ctx, cmdPing)
	if err != nil {
		return err
	}
	if resp != respPong {
		return NewProtocolError("unexpected PING response", resp)
	}
	return nil
}

// Version returns the daemon version and signature database info.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	resp, err := c.VersionRaw(ctx)
	if err != nil {
		return nil, err
	}
	return parseVersion(resp)
}

// VersionRaw returns the VERSION response verbatim, e.g.
// "ClamAV 0.103.9/27065/Wed Oct 18 09:49:14 2023".
func (c *Client) VersionRaw(ctx context.Context) (string, error) {
	return c.commandChecked(ctx, cmdVersion)
}

// Stats returns the daemon's scan queue and memory statistics.
func (c *Client) Stats(ctx context.Context) (*StatsResult, error) {
	resp, err := c.commandChecked(ctx, cmdStats)
	if err != nil {
		return nil, err
	}
	return &StatsResult{Raw: resp}, nil
}

// Reload asks the daemon to reload its virus databases.
func (c *Client) Reload(ctx context.Context) error {
	resp, err := c.commandChecked(ctx, cmdReload)
	if err != nil {
		return err
	}
	if resp != respReloading {
		return NewProtocolError("unexpected RELOAD response", resp)
	}
	return nil
}

// Shutdown asks the daemon to perform a clean exit. The daemon closes
// the socket without replying.
func (c *Client) Shutdown(ctx context.Context) error {
	cn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cn.close()

	return cn.sendCommand(cmdShutdown)
}

// Scan scans a file or directory (recursively) on the daemon's
// filesystem, with archive support enabled unless disabled in
// clamd.conf. path is made absolute before sending.
func (c *Client) Scan(ctx context.Context, path string) ([]ScanResult, error) {
	return c.anyScan(ctx, cmdScan, path)
}

// ScanRaw is Scan returning the daemon response verbatim.
func (c *Client) ScanRaw(ctx context.Context, path string) (string, error) {
	return c.anyScanRaw(ctx, cmdScan, path)
}

// ContScan scans like Scan but does not stop when a virus is found.
func (c *Client) ContScan(ctx context.Context, path string) ([]ScanResult, error) {
	return c.anyScan(ctx, cmdContScan, path)
}

// ContScanRaw is ContScan returning the daemon response verbatim.
func (c *Client) ContScanRaw(ctx context.Context, path string) (string, error) {
	return c.anyScanRaw(ctx, cmdContScan, path)
}

// MultiScan scans like Scan using multiple daemon threads.
func (c *Client) MultiScan(ctx context.Context, path string) ([]ScanResult, error) {
	return c.anyScan(ctx, cmdMultiScan, path)
}

// MultiScanRaw is MultiScan returning the daemon response verbatim.
func (c *Client) MultiScanRaw(ctx context.Context, path string) (string, error) {
	return c.anyScanRaw(ctx, cmdMultiScan, path)
}

func (c *Client) anyScan(ctx context.Context, cmd, path string) ([]ScanResult, error) {
	resp, err := c.anyScanRaw(ctx, cmd, path)
	if err != nil {
		return nil, err
	}
	return parseScanResponse(resp, c.terminator)
}

func (c *Client) anyScanRaw(ctx context.Context, cmd, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("invalid scan path: %s", path), err)
	}
	return c.command(ctx, cmd, abs)
}

// InStream scans a stream of data. The stream is uploaded to the daemon
// in length-prefixed chunks on the same connection as the command; the
// result's Path is "stream".
func (c *Client) InStream(ctx context.Context, r io.Reader) (*ScanResult, error) {
	resp, err := c.InStreamRaw(ctx, r)
	if err != nil {
		return nil, err
	}

	result, err := parseScanLine(resp)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// InStreamRaw is InStream returning the daemon response verbatim.
func (c *Client) InStreamRaw(ctx context.Context, r io.Reader) (string, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer cn.close()

	if err := cn.sendCommand(cmdInStream); err != nil {
		return "", err
	}
	if err := cn.writeChunks(r, c.maxChunkSize); err != nil {
		return "", err
	}

	resp, err := cn.readResponse()
	if err != nil {
		return "", err
	}

	if err := checkCommandReply(cmdInStream, resp); err != nil {
		return "", err
	}
	if strings.Contains(resp, respStreamLimit) {
		return "", NewDaemonError("stream exceeds the daemon's size limit", resp)
	}
	return resp, nil
}

// InStreamBytes scans data provided as a byte slice via InStream.
func (c *Client) InStreamBytes(ctx context.Context, data []byte) (*ScanResult, error) {
	return c.InStream(ctx, bytes.NewReader(data))
}

// InStreamFile reads a file from the local filesystem and scans it via
// InStream. Use Scan instead when the daemon can read the path itself.
func (c *Client) InStreamFile(ctx context.Context, filePath string) (*ScanResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to open file: %s", filePath), err)
	}
	defer f.Close()

	return c.InStream(ctx, f)
}

// WaitForReady pings the daemon with exponential backoff until it
// answers PONG, maxElapsed passes, or ctx is done. A non-positive
// maxElapsed leaves only the context bounding the wait. Connection and
// timeout errors are retried; protocol and daemon errors abort the
// wait. Individual commands never retry; this helper exists for
// startup ordering against a daemon that is still loading its
// signature database.
func (c *Client) WaitForReady(ctx context.Context, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	if maxElapsed > 0 {
		bo.MaxElapsedTime = maxElapsed
	}

	op := func() error {
		err := c.Ping(ctx)
		if err == nil {
			return nil
		}
		if IsProtocolError(err) || IsDaemonError(err) || IsValidationError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
