package dap

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Conn is the adapter's end of a DAP connection. It reads requests and
// writes responses and events, numbering outgoing messages itself.
type Conn struct {
	transport Transport
	seq       atomic.Int64
}

// NewConn creates a connection over the given transport.
func NewConn(transport Transport) *Conn {
	return &Conn{transport: transport}
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	return c.transport.Close()
}

// ReadRequest returns the next request from the client. Messages that are
// not requests are skipped.
func (c *Conn) ReadRequest() (*Request, error) {
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			return nil, err
		}

		var req Request
		if err := json.Unmarshal(msg.Content, &req); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if req.Type != TypeRequest {
			continue
		}
		return &req, nil
	}
}

// Respond sends a successful response to req. A nil body is omitted.
func (c *Conn) Respond(req *Request, body any) error {
	resp := Response{
		ProtocolMessage: ProtocolMessage{Type: TypeResponse},
		RequestSeq:      req.Seq,
		Success:         true,
		Command:         req.Command,
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s response: %w", req.Command, err)
		}
		resp.Body = raw
	}
	return c.send(&resp.ProtocolMessage, &resp)
}

// RespondError sends a failed response to req carrying err's message.
func (c *Conn) RespondError(req *Request, id int, err error) error {
	body, merr := json.Marshal(ErrorResponseBody{
		Error: &ErrorMessage{ID: id, Format: err.Error()},
	})
	if merr != nil {
		return fmt.Errorf("marshal error body: %w", merr)
	}

	resp := Response{
		ProtocolMessage: ProtocolMessage{Type: TypeResponse},
		RequestSeq:      req.Seq,
		Success:         false,
		Command:         req.Command,
		Message:         err.Error(),
		Body:            body,
	}
	return c.send(&resp.ProtocolMessage, &resp)
}

// SendEvent sends an event. A nil body is omitted.
func (c *Conn) SendEvent(event string, body any) error {
	evt := Event{
		ProtocolMessage: ProtocolMessage{Type: TypeEvent},
		Event:           event,
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", event, err)
		}
		evt.Body = raw
	}
	return c.send(&evt.ProtocolMessage, &evt)
}

// send stamps the next sequence number on base and writes msg.
func (c *Conn) send(base *ProtocolMessage, msg any) error {
	base.Seq = int(c.seq.Add(1))

	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.transport.Send(&Message{
		ContentLength: len(content),
		Content:       content,
	}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// DecodeArguments unmarshals the request arguments into v. Missing
// arguments leave v untouched.
func (r *Request) DecodeArguments(v any) error {
	if len(r.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Arguments, v); err != nil {
		return fmt.Errorf("decode %s arguments: %w", r.Command, err)
	}
	return nil
}
