// Package valkeytest runs an in-process server that speaks enough RESP3 for
// the valkey client wrapper and the stores built on it: the connection
// handshake, PING, GET, SET (PX), DEL, PTTL and the counter EVAL script.
package valkeytest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type entry struct {
	value    string
	expireAt time.Time
}

// Server is a single-node, in-memory stand-in for Valkey.
type Server struct {
	ln net.Listener

	mu     sync.Mutex
	data   map[string]entry
	calls  [][]string
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// NewServer starts a server on a random local port. It is closed on test cleanup.
func NewServer(t testing.TB) *Server {
	return NewServerAt(t, "127.0.0.1:0")
}

// NewServerAt starts a server on addr.
func NewServerAt(t testing.TB, addr string) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("valkeytest: listen %s: %v", addr, err)
	}
	s := &Server{
		ln:    ln,
		data:  make(map[string]entry),
		conns: make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting connections and drops the open ones.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Calls returns the received commands named name, arguments included.
func (s *Server) Calls(name string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]string
	for _, c := range s.calls {
		if strings.EqualFold(c[0], name) {
			out = append(out, c)
		}
	}
	return out
}

// Value returns the raw value stored under the full key.
func (s *Server) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	return e.value, ok
}

// TTL returns the remaining time to live of key, zero when it has none.
func (s *Server) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok || e.expireAt.IsZero() {
		return 0
	}
	return time.Until(e.expireAt)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(c)
	}
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := w.WriteString(s.exec(args)); err != nil {
			return
		}
		// answer pipelined commands in one write
		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("valkeytest: unexpected %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("valkeytest: bad array header %q", line)
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(header) == 0 || header[0] != '$' {
			return nil, fmt.Errorf("valkeytest: unexpected %q", header)
		}
		size, err := strconv.Atoi(header[1:])
		if err != nil || size < 0 {
			return nil, fmt.Errorf("valkeytest: bad bulk header %q", header)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func (s *Server) exec(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, args)

	switch strings.ToUpper(args[0]) {
	case "HELLO":
		return "%2\r\n" + bulk("proto") + ":3\r\n" + bulk("version") + bulk("7.2.4")
	case "PING":
		return "+PONG\r\n"
	case "CLIENT", "SELECT":
		return "+OK\r\n"
	case "CLUSTER":
		return "-ERR This instance has cluster support disabled\r\n"
	case "GET":
		if len(args) != 2 {
			return wrongArgs(args[0])
		}
		e, ok := s.lookup(args[1])
		if !ok {
			return "_\r\n"
		}
		return bulk(e.value)
	case "SET":
		return s.set(args)
	case "DEL":
		n := 0
		for _, k := range args[1:] {
			if _, ok := s.lookup(k); ok {
				delete(s.data, k)
				n++
			}
		}
		return integer(int64(n))
	case "PTTL":
		if len(args) != 2 {
			return wrongArgs(args[0])
		}
		return integer(s.pttl(args[1]))
	case "EVAL":
		return s.eval(args)
	default:
		return fmt.Sprintf("-ERR unknown command '%s'\r\n", args[0])
	}
}

func (s *Server) set(args []string) string {
	if len(args) < 3 {
		return wrongArgs(args[0])
	}
	e := entry{value: args[2]}
	for i := 3; i < len(args); i++ {
		if strings.EqualFold(args[i], "PX") && i+1 < len(args) {
			ms, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil || ms <= 0 {
				return "-ERR invalid expire time in 'set' command\r\n"
			}
			e.expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
			i++
		}
	}
	s.data[args[1]] = e
	return "+OK\r\n"
}

// eval only understands the fixed-window counter script: INCR KEYS[1] and
// PEXPIRE it with ARGV[1] when the counter is new or has no expiry.
func (s *Server) eval(args []string) string {
	if len(args) < 5 || args[2] != "1" {
		return wrongArgs(args[0])
	}
	if !strings.Contains(args[1], "INCR") || !strings.Contains(args[1], "PEXPIRE") {
		return "-ERR valkeytest: unsupported script\r\n"
	}
	key := args[3]
	ms, err := strconv.ParseInt(args[4], 10, 64)
	if err != nil {
		return "-ERR value is not an integer or out of range\r\n"
	}

	e, _ := s.lookup(key)
	n, err := strconv.ParseInt(defaultString(e.value, "0"), 10, 64)
	if err != nil {
		return "-ERR value is not an integer or out of range\r\n"
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	if n == 1 || e.expireAt.IsZero() {
		e.expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	s.data[key] = e
	return integer(n)
}

func (s *Server) pttl(key string) int64 {
	e, ok := s.lookup(key)
	switch {
	case !ok:
		return -2
	case e.expireAt.IsZero():
		return -1
	default:
		return time.Until(e.expireAt).Milliseconds()
	}
}

// lookup must be called with mu held. Expired keys are dropped.
func (s *Server) lookup(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expireAt.IsZero() && !time.Now().Before(e.expireAt) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}

func bulk(v string) string {
	return "$" + strconv.Itoa(len(v)) + "\r\n" + v + "\r\n"
}

func integer(n int64) string {
	return ":" + strconv.FormatInt(n, 10) + "\r\n"
}

func wrongArgs(cmd string) string {
	return fmt.Sprintf("-ERR wrong number of arguments for '%s' command\r\n", strings.ToLower(cmd))
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
