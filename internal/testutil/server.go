// Package testutil provides test helpers for the clamd-sdk-go SDK.
package testutil

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
)

// EICAR is the standard antivirus test file. Every signature database
// detects it, which makes it the only safe "virus" for integration
// tests.
var EICAR = []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

// Handler produces the response lines for one received command. stream
// holds the decoded INSTREAM payload when cmd is "INSTREAM". Returning
// nil closes the connection without replying, which is how the real
// daemon answers SHUTDOWN.
type Handler func(cmd string, stream []byte) []string

// Exchange records one command the server handled.
type Exchange struct {
	// Command is the command line as received, without the framing
	// prefix and terminator.
	Command string
	// Stream is the reassembled INSTREAM payload, non-nil only when
	// Command is "INSTREAM".
	Stream []byte
}

// Server is an in-process mock clamd daemon. It serves one command per
// connection, auto-detects newline or NUL framing from the command
// prefix, decodes INSTREAM chunk uploads, and records everything it
// received for assertions.
type Server struct {
	listener net.Listener
	handler  Handler

	mu        sync.Mutex
	exchanges []Exchange
	wg        sync.WaitGroup
}

// NewTCPServer starts a mock daemon on a loopback TCP port.
func NewTCPServer(h Handler) (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return newServer(l, h), nil
}

// NewUnixServer starts a mock daemon on a UNIX socket at path. The path
// must not exist and must be short enough for a sockaddr_un, so place
// it under t.TempDir().
func NewUnixServer(path string, h Handler) (*Server, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return newServer(l, h), nil
}

func newServer(l net.Listener, h Handler) *Server {
	s := &Server{listener: l, handler: h}
	s.wg.Add(1)
	go s.serve()
	return s
}

// Addr returns the address to hand to the client: "host:port" for TCP
// servers, the socket path for UNIX servers.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting connections and waits for in-flight handlers.
func (s *Server) Close() {
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

// Exchanges returns a snapshot of the commands handled so far.
func (s *Server) Exchanges() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	br := bufio.NewReader(conn)

	prefix, err := br.ReadByte()
	if err != nil {
		return
	}
	term := byte('\n')
	if prefix == 'z' {
		term = 0
	}

	line, err := br.ReadString(term)
	if err != nil {
		return
	}
	cmd := strings.TrimSuffix(line, string([]byte{term}))

	var stream []byte
	if cmd == "INSTREAM" {
		stream = []byte{}
		for {
			var hdr [4]byte
			if _, err := io.ReadFull(br, hdr[:]); err != nil {
				return
			}
			size := binary.BigEndian.Uint32(hdr[:])
			if size == 0 {
				break
			}
			chunk := make([]byte, size)
			if _, err := io.ReadFull(br, chunk); err != nil {
				return
			}
			stream = append(stream, chunk...)
		}
	}

	s.mu.Lock()
	s.exchanges = append(s.exchanges, Exchange{Command: cmd, Stream: stream})
	s.mu.Unlock()

	lines := s.handler(cmd, stream)
	if lines == nil {
		return
	}

	resp := strings.Join(lines, string([]byte{term})) + string([]byte{term})
	conn.Write([]byte(resp)) //nolint:errcheck
}

// Respond returns a Handler answering every command with the given
// lines, regardless of what was received.
func Respond(lines ...string) Handler {
	return func(string, []byte) []string {
		return lines
	}
}

// VersionLine returns a realistic VERSION response.
func VersionLine() string {
	return "ClamAV 0.103.9/27065/Wed Oct 18 09:49:14 2023"
}

// CleanScanLine returns a clean scan result line for path.
func CleanScanLine(path string) string {
	return path + ": OK"
}

// InfectedScanLine returns an infected scan result line for path.
func InfectedScanLine(path, signature string) string {
	return path + ": " + signature + " FOUND"
}

// ErrorScanLine returns a per-item error scan result line for path.
func ErrorScanLine(path, reason string) string {
	return path + ": " + reason + " ERROR"
}

// StatsLines returns a realistic STATS response.
func StatsLines() []string {
	return []string{
		"POOLS: 1",
		"",
		"STATE: VALID PRIMARY",
		"THREADS: live 1  idle 0 max 12 idle-timeout 30",
		"MEMSTATS: heap N/A mmap N/A used N/A free N/A releasable N/A pools 1 pools_used 1245.948M pools_total 1245.997M",
		"END",
	}
}
