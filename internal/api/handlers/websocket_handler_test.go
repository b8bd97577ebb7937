package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// dialWatcher upgrades a real connection pair and wraps the server side.
func dialWatcher(t *testing.T) (*WatcherConnection, *websocket.Conn) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	serverConn := <-upgraded
	wc := NewWatcherConnection(serverConn, "user-1", "auction-1")
	t.Cleanup(func() { wc.Close() })
	return wc, client
}

func TestWatcherConnection_ConcurrentSends(t *testing.T) {
	wc, client := dialWatcher(t)

	// Broadcasts and the read loop's pong replies write on the same
	// connection from different goroutines; every message must arrive.
	const sends = 32
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wc.Send(map[string]string{"type": "bid_update"}); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		}()
	}

	for received := 0; received < sends; received++ {
		var msg map[string]string
		if err := client.ReadJSON(&msg); err != nil {
			t.Fatalf("read message %d: %v", received, err)
		}
		if msg["type"] != "bid_update" {
			t.Errorf("message type = %q, want bid_update", msg["type"])
		}
	}
	wg.Wait()
}
