package isabelle

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eatikrh/kleis-sub001/internal/solver"
)

// ServerInfo is what `isabelle server` prints on startup
type ServerInfo struct {
	Name     string
	Host     string
	Port     int
	Password string
}

// Addr returns host:port
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

var serverLineRe = regexp.MustCompile(`^server "([^"]*)" = ([^:\s]+):(\d+) \(password "([^"]*)"\)`)

// ParseServerLine parses
//
//	server "isabelle" = 127.0.0.1:58865 (password "1c199aff-...")
func ParseServerLine(line string) (ServerInfo, error) {
	m := serverLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return ServerInfo{}, fmt.Errorf("unrecognised server line %q", line)
	}
	port, err := strconv.Atoi(m[3])
	if err != nil || port <= 0 || port > 65535 {
		return ServerInfo{}, fmt.Errorf("invalid port in server line %q", line)
	}
	return ServerInfo{Name: m[1], Host: m[2], Port: port, Password: m[4]}, nil
}

// Message kinds
const (
	KindOK       = "OK"
	KindError    = "ERROR"
	KindRunning  = "RUNNING"
	KindNote     = "NOTE"
	KindFinished = "FINISHED"
	KindFailed   = "FAILED"
)

var messageKinds = []string{KindFinished, KindFailed, KindRunning, KindError, KindNote, KindOK}

// Message is one server reply. Body is the JSON argument, if any.
type Message struct {
	Kind string
	Body json.RawMessage
}

// Fields decodes the body as a JSON object; a non-object body yields an
// empty map.
func (m Message) Fields() map[string]any {
	out := map[string]any{}
	if len(m.Body) > 0 {
		_ = json.Unmarshal(m.Body, &out)
	}
	return out
}

// Field returns a string field of the body, or ""
func (m Message) Field(name string) string {
	if s, ok := m.Fields()[name].(string); ok {
		return s
	}
	return ""
}

// Task returns the task id the message belongs to
func (m Message) Task() string { return m.Field("task") }

// Text is the body's message field, or a string body, or the raw body
func (m Message) Text() string {
	if s := m.Field("message"); s != "" {
		return s
	}
	var s string
	if json.Unmarshal(m.Body, &s) == nil {
		return s
	}
	return string(m.Body)
}

// ParseMessage splits a reply line into kind and JSON body. A body that is
// not valid JSON is kept as a JSON string.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	for _, k := range messageKinds {
		if line != k && !strings.HasPrefix(line, k+" ") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, k))
		if rest == "" {
			return Message{Kind: k}, nil
		}
		if json.Valid([]byte(rest)) {
			return Message{Kind: k, Body: json.RawMessage(rest)}, nil
		}
		quoted, _ := json.Marshal(rest)
		return Message{Kind: k, Body: quoted}, nil
	}
	return Message{}, &solver.ProtocolError{Backend: "isabelle", Detail: fmt.Sprintf("unrecognised message %q", line)}
}

// Conn is an authenticated connection to an Isabelle server. Reads and
// writes are serialised; one command is in flight at a time.
type Conn struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	// unanswered cancel commands; their bare OK replies are skipped
	staleOK int
}

const dialTimeout = 10 * time.Second

// Dial connects and authenticates with the server password
func Dial(ctx context.Context, info ServerInfo) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", info.Addr())
	if err != nil {
		return nil, fmt.Errorf("connecting to isabelle server at %s: %w", info.Addr(), err)
	}
	c := &Conn{conn: nc, r: bufio.NewReader(nc)}
	if err := c.writeLine(info.Password); err != nil {
		nc.Close()
		return nil, err
	}
	msg, err := c.read(ctx)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	if msg.Kind != KindOK {
		nc.Close()
		return nil, &solver.ProtocolError{Backend: "isabelle", Detail: "authentication rejected: " + msg.Text()}
	}
	return c, nil
}

func (c *Conn) writeLine(s string) error {
	if _, err := io.WriteString(c.conn, s+"\n"); err != nil {
		return fmt.Errorf("writing to isabelle: %w", err)
	}
	return nil
}

// pollInterval bounds each blocking read so ctx is checked regularly
const pollInterval = 250 * time.Millisecond

// read returns the next message. Long messages arrive as a decimal length
// line followed by that many bytes.
func (c *Conn) read(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pollInterval))
		line, err := c.r.ReadString('\n')
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
				if line != "" {
					// partial line; keep it and continue reading
					rest, err := c.readRest(ctx)
					if err != nil {
						return Message{}, err
					}
					line += rest
				} else {
					continue
				}
			} else {
				return Message{}, fmt.Errorf("reading from isabelle: %w", err)
			}
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 0 {
			payload, err := c.readN(ctx, n)
			if err != nil {
				return Message{}, err
			}
			return ParseMessage(strings.TrimRight(payload, "\r\n"))
		}
		return ParseMessage(line)
	}
}

func (c *Conn) readRest(ctx context.Context) (string, error) {
	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pollInterval))
		part, err := c.r.ReadString('\n')
		sb.WriteString(part)
		if err == nil {
			return sb.String(), nil
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			return "", fmt.Errorf("reading from isabelle: %w", err)
		}
	}
}

func (c *Conn) readN(ctx context.Context, n int) (string, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pollInterval))
		k, err := c.r.Read(buf[got:])
		got += k
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return "", fmt.Errorf("reading from isabelle: %w", err)
		}
	}
	return string(buf), nil
}

// Request sends `name args` and returns the immediate OK reply. ERROR
// replies become errors; unrelated notes are skipped.
func (c *Conn) Request(ctx context.Context, name string, args any) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := name
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return Message{}, err
		}
		line += " " + string(b)
	}
	if err := c.writeLine(line); err != nil {
		return Message{}, err
	}
	for {
		msg, err := c.read(ctx)
		if err != nil {
			return Message{}, err
		}
		if msg.Kind == KindOK && len(msg.Body) == 0 && c.staleOK > 0 {
			c.staleOK--
			continue
		}
		switch msg.Kind {
		case KindOK, KindRunning:
			return msg, nil
		case KindError:
			return msg, &CommandError{Command: name, Message: msg.Text()}
		}
	}
}

// Await reads until the task finishes. Notes for the task are returned
// alongside the final message. When ctx expires the task is cancelled.
func (c *Conn) Await(ctx context.Context, task string) (Message, []Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var notes []Message
	for {
		msg, err := c.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.cancel(task)
			}
			return Message{}, notes, err
		}
		if t := msg.Task(); t != "" && t != task {
			continue
		}
		switch msg.Kind {
		case KindFinished:
			return msg, notes, nil
		case KindFailed:
			return msg, notes, &CommandError{Command: "task " + task, Message: msg.Text()}
		case KindNote:
			notes = append(notes, msg)
		}
	}
}

// cancel asks the server to stop a task; the reply is not awaited
func (c *Conn) cancel(task string) {
	b, _ := json.Marshal(map[string]string{"task": task})
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if c.writeLine("cancel "+string(b)) == nil {
		c.staleOK++
	}
	_ = c.conn.SetWriteDeadline(time.Time{})
}

// Close closes the connection
func (c *Conn) Close() error {
	return c.conn.Close()
}

// CommandError is an ERROR or FAILED reply
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("isabelle %s: %s", e.Command, e.Message)
}
