package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sendQueueSize bounds each session's outbound queue. A client that
// stops draining its socket loses notifications rather than blocking
// the sender.
const sendQueueSize = 32

// transport is one client connection's framing: a raw TCP connection
// carrying newline-delimited JSON, or a websocket carrying one object
// per text message.
type transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// lineTransport frames newline-delimited JSON over a stream socket.
// The buffered reader holds partial reads until a full line arrives;
// each write emits the object and its terminator in a single call.
type lineTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func newLineTransport(conn net.Conn) *lineTransport {
	return &lineTransport{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

func (t *lineTransport) ReadMessage() ([]byte, error) {
	line, err := t.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (t *lineTransport) WriteMessage(data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := t.conn.Write(buf)
	return err
}

func (t *lineTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *lineTransport) Close() error {
	return t.conn.Close()
}

// wsTransport lets browser clients speak the same protocol, one JSON
// object per text message.
type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	return t.ws.SetReadDeadline(deadline)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}

// Session owns one client connection and presents two logical channels
// over it: the request/response pair for the connection's own reader
// loop, and fire-and-forget notifications enqueued by anyone holding
// the player's name. Both drain through a single write pump, so two
// messages can never interleave mid-object on the wire. Responses are
// enqueued before the fan-out they triggered, so a player always sees
// their own reply before any broadcast about the same event.
type Session struct {
	server *Server
	conn   transport
	send   chan any

	mu     sync.Mutex
	closed bool

	// player is written only by the connection's reader goroutine, but
	// read from others (write pump failures, other sessions' fan-out),
	// so both ends go through mu. game is touched only by the reader.
	player string
	game   string
}

// playerName is safe to call from any goroutine.
func (s *Session) playerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Session) setPlayer(name string) {
	s.mu.Lock()
	s.player = name
	s.mu.Unlock()
}

func newSession(srv *Server, conn transport) *Session {
	return &Session{
		server: srv,
		conn:   conn,
		send:   make(chan any, sendQueueSize),
	}
}

// enqueue hands a message to the write pump. It reports false when the
// session is gone or its queue is full; callers treat both as "player
// unreachable".
func (s *Session) enqueue(msg any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend stops the write pump exactly once.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// writePump is the only goroutine that writes to the connection. A
// write failure deregisters the player from the notification set and
// closes the socket; their game is untouched until the reader loop
// notices and runs the normal leave path.
func (s *Session) writePump() {
	for msg := range s.send {
		data, err := json.Marshal(msg)
		if err != nil {
			logf(s.server.cfg, "ERROR: encoding message for %q: %v", s.playerName(), err)
			continue
		}
		if err := s.conn.WriteMessage(data); err != nil {
			s.server.dropSession(s)
			_ = s.conn.Close()
			return
		}
	}
	_ = s.conn.Close()
}

// readLoop decodes one command per message and dispatches it. The read
// deadline is refreshed per message; a connection that stops producing
// data is reaped through the same leave path as an explicit quit.
// Malformed input earns an error response, never a disconnect.
func (s *Session) readLoop() {
	defer func() {
		notes := s.server.leaveGame(s)
		s.server.fanOut(notes)
		s.server.dropSession(s)
		s.closeSend()
	}()

	for {
		if s.server.cfg.playerTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.playerTimeout))
		}

		data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		req, err := decodeRequest(data)
		if err != nil {
			s.enqueue(newErrorResponse(err))
			continue
		}

		resp, notes := s.server.dispatch(s, req)
		if !s.enqueue(resp) {
			return
		}
		s.server.fanOut(notes)
	}
}
