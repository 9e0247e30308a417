package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Client is the connecting half of the session multiplexer. It allows
// one outstanding request at a time; Do blocks until the matching
// response arrives. A background read loop routes everything shaped
// {"type":"notification"} to the Notifications channel and everything
// else to the waiting request, so a push arriving between a request
// and its response can never be mistaken for the response.
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	reqMu   sync.Mutex
	pending chan json.RawMessage

	// Notifications delivers pushes in arrival order. Slow consumers
	// lose pushes rather than wedging the read loop.
	Notifications chan json.RawMessage
}

func DialGame(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:          conn,
		r:             bufio.NewReader(conn),
		pending:       make(chan json.RawMessage, 1),
		Notifications: make(chan json.RawMessage, 64),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.Notifications)

	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			close(c.pending)
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			continue
		}

		raw := json.RawMessage(append([]byte(nil), line...))
		if envelope.Type == "notification" {
			select {
			case c.Notifications <- raw:
			default:
			}
			continue
		}

		c.pending <- raw
	}
}

// Do sends one command and waits for its response.
func (c *Client) Do(req any) (json.RawMessage, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return nil, err
	}

	resp, ok := <-c.pending
	if !ok {
		return nil, errors.New("connection closed awaiting response")
	}
	return resp, nil
}

// Command wraps Do for the common case of a command with a handful of
// fields, decoding the response into out when out is non-nil and
// surfacing error-status responses as errors.
func (c *Client) Command(req any, out any) error {
	raw, err := c.Do(req)
	if err != nil {
		return err
	}

	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return err
	}
	if status.Status == "error" {
		return fmt.Errorf("server: %s", status.Message)
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
