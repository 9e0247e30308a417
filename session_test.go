package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

func TestLineTransportBuffersPartialReads(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		// One object dribbled out in chunks, then a second in one piece.
		chunks := []string{`{"command":"ga`, `me_st`, `atus"}` + "\n", `{"command":"list_games"}` + "\n"}
		for _, chunk := range chunks {
			if _, err := client.Write([]byte(chunk)); err != nil {
				return
			}
		}
	}()

	tr := newLineTransport(server)

	first, err := tr.ReadMessage()
	if err != nil {
		t.Fatalf("first ReadMessage: %v", err)
	}
	if string(first) != `{"command":"game_status"}` {
		t.Fatalf("first message = %q", first)
	}

	second, err := tr.ReadMessage()
	if err != nil {
		t.Fatalf("second ReadMessage: %v", err)
	}
	if string(second) != `{"command":"list_games"}` {
		t.Fatalf("second message = %q", second)
	}
}

func TestLineTransportStripsCarriageReturn(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = client.Write([]byte("{\"command\":\"list_games\"}\r\n"))
	}()

	tr := newLineTransport(server)
	msg, err := tr.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(msg) != `{"command":"list_games"}` {
		t.Fatalf("message = %q", msg)
	}
}

// TestWritePumpNeverInterleaves hammers one session's queue from many
// goroutines and verifies every line on the wire is a complete,
// standalone JSON object.
func TestWritePumpNeverInterleaves(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	cfg := &Config{}
	srv := NewServer(cfg, discardRecorder{})
	sess := newSession(srv, newLineTransport(serverSide))
	go sess.writePump()

	const writers = 4
	const perWriter = 10

	var sent sync.WaitGroup
	var accepted int64
	var mu sync.Mutex

	for w := 0; w < writers; w++ {
		sent.Add(1)
		go func(w int) {
			defer sent.Done()
			for i := 0; i < perWriter; i++ {
				ok := sess.enqueue(messageResponse{
					Status:  "ok",
					Message: fmt.Sprintf("writer %d message %d", w, i),
				})
				if ok {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}(w)
	}

	received := make(chan int, 1)
	go func() {
		count := 0
		scanner := bufio.NewScanner(clientSide)
		for scanner.Scan() {
			var resp messageResponse
			if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
				t.Errorf("interleaved or corrupt line: %q", scanner.Text())
			}
			count++
		}
		received <- count
	}()

	sent.Wait()
	sess.closeSend()

	select {
	case count := <-received:
		mu.Lock()
		want := int(accepted)
		mu.Unlock()
		if count != want {
			t.Fatalf("received %d messages, enqueued %d", count, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out draining the write pump")
	}
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	cfg := &Config{}
	srv := NewServer(cfg, discardRecorder{})
	sess := newSession(srv, newLineTransport(serverSide))

	sess.closeSend()
	if sess.enqueue(messageResponse{Status: "ok"}) {
		t.Fatal("enqueue succeeded on a closed session")
	}
	// A second close must be a no-op, not a panic.
	sess.closeSend()
}
