// Package dap implements the server side of the Debug Adapter Protocol wire
// format: header framing, message types and a request/response connection.
package dap

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength is the maximum allowed content length for DAP messages (10MB).
const MaxContentLength = 10 * 1024 * 1024

// ErrMissingContentLength is returned when a message has no Content-Length header.
var ErrMissingContentLength = errors.New("missing Content-Length header")

// Transport moves framed DAP messages to and from the client.
type Transport interface {
	// Send writes a message to the client.
	Send(msg *Message) error

	// Receive reads the next message from the client.
	Receive() (*Message, error)

	// Close closes the transport.
	Close() error
}

// Message is a DAP message with its headers and JSON content.
type Message struct {
	// ContentLength is the length of the content.
	ContentLength int

	// ContentType is the MIME type (optional).
	ContentType string

	// Content is the JSON content.
	Content json.RawMessage
}

// StreamTransport implements Transport over a reader and a writer, such as
// the adapter's own stdin and stdout.
type StreamTransport struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewStreamTransport creates a transport that reads from in and writes to out.
func NewStreamTransport(in io.Reader, out io.Writer) *StreamTransport {
	return &StreamTransport{
		in:     in,
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// Send writes a message to the client.
func (t *StreamTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeMessage(t.out, msg)
}

// Receive reads the next message from the client.
func (t *StreamTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close closes the underlying streams if they are closers.
func (t *StreamTransport) Close() error {
	var errs []error
	if c, ok := t.in.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := t.out.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// SocketTransport implements Transport over an accepted network connection.
type SocketTransport struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewSocketTransport creates a transport from an accepted connection.
func NewSocketTransport(conn net.Conn) *SocketTransport {
	return &SocketTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Send writes a message to the client.
func (t *SocketTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeMessage(t.conn, msg)
}

// Receive reads the next message from the client.
func (t *SocketTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close closes the connection.
func (t *SocketTransport) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the client's address.
func (t *SocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// writeMessage writes a DAP message to the writer.
func writeMessage(w io.Writer, msg *Message) error {
	headers := "Content-Length: " + strconv.Itoa(len(msg.Content)) + "\r\n"
	if msg.ContentType != "" {
		headers += "Content-Type: " + msg.ContentType + "\r\n"
	}
	headers += "\r\n"

	// Single write: headers and content must not interleave with another sender.
	buf := make([]byte, 0, len(headers)+len(msg.Content))
	buf = append(buf, headers...)
	buf = append(buf, msg.Content...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// readMessage reads a DAP message from the reader.
func readMessage(r *bufio.Reader) (*Message, error) {
	contentLength := -1
	var contentType string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" && contentLength < 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // End of headers
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header: %s", line)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			length, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid content-length: %w", err)
			}
			if length < 0 || length > MaxContentLength {
				return nil, fmt.Errorf("content-length %d exceeds maximum allowed %d", length, MaxContentLength)
			}
			contentLength = length
		case "content-type":
			contentType = value
		}
	}

	if contentLength <= 0 {
		return nil, ErrMissingContentLength
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return &Message{
		ContentLength: contentLength,
		ContentType:   contentType,
		Content:       content,
	}, nil
}
