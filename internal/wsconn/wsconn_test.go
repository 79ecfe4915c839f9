package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// mockWSServer creates a test WebSocket server driven by handler.
func mockWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("websocket accept error: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		if handler != nil {
			handler(conn)
		}
	}))
}

// echoHandler echoes messages back to the client.
func echoHandler(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, msgType, data); err != nil {
			return
		}
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	cfg.PingInterval = time.Hour // keep the ping loop quiet in tests
	return cfg
}

func TestClient_Connect_Success(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if client.State() != StateConnected {
		t.Errorf("expected state %v, got %v", StateConnected, client.State())
	}
}

func TestClient_Connect_Failure(t *testing.T) {
	client := New(testConfig("ws://localhost:59999")) // nothing listening
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("expected Connect to fail with unreachable URL")
	}

	if client.State() != StateDisconnected {
		t.Errorf("expected state %v, got %v", StateDisconnected, client.State())
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	client := New(testConfig(wsURL(server)))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	testMsg := []byte(`{"test":"message"}`)
	if err := client.Send(ctx, testMsg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case echoed := <-client.Messages():
		if string(echoed) != string(testMsg) {
			t.Errorf("expected %s, got %s", testMsg, echoed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echoed message")
	}
}

func TestClient_Send_NotConnected(t *testing.T) {
	client := New(testConfig("ws://localhost:59999"))
	defer client.Close()

	if err := client.Send(context.Background(), []byte("hello")); err == nil {
		t.Fatal("expected Send to fail before Connect")
	}
}

func TestClient_OnConnectHook(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	var hookCalls atomic.Int32

	cfg := testConfig(wsURL(server))
	cfg.OnConnect = func(ctx context.Context) error {
		hookCalls.Add(1)
		return nil
	}

	client := New(cfg)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := hookCalls.Load(); got != 1 {
		t.Errorf("expected OnConnect to run once, got %d", got)
	}
}

func TestClient_OnConnectHookError(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.OnConnect = func(ctx context.Context) error {
		return context.DeadlineExceeded
	}

	client := New(cfg)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("expected Connect to fail when the on-connect hook errors")
	}

	if client.State() != StateDisconnected {
		t.Errorf("expected state %v, got %v", StateDisconnected, client.State())
	}
}

func TestClient_Reconnect(t *testing.T) {
	var connects atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := connects.Add(1)
		if n == 1 {
			// Drop the first connection straight away to force a
			// reconnect.
			conn.Close(websocket.StatusInternalError, "dropping")
			return
		}
		echoHandler(conn)
	})
	defer server.Close()

	var hookCalls atomic.Int32

	cfg := testConfig(wsURL(server))
	cfg.OnConnect = func(ctx context.Context) error {
		hookCalls.Add(1)
		return nil
	}

	client := New(cfg)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Wait for the read loop to notice the drop and redial.
	deadline := time.Now().Add(3 * time.Second)
	for client.State() != StateConnected || connects.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("client did not reconnect: state=%v connects=%d", client.State(), connects.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := hookCalls.Load(); got < 2 {
		t.Errorf("expected OnConnect to replay on reconnect, got %d calls", got)
	}

	// The revived connection should still echo.
	testMsg := []byte("after-reconnect")
	if err := client.Send(ctx, testMsg); err != nil {
		t.Fatalf("Send after reconnect failed: %v", err)
	}

	select {
	case echoed := <-client.Messages():
		if string(echoed) != string(testMsg) {
			t.Errorf("expected %s, got %s", testMsg, echoed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo after reconnect")
	}
}

func TestClient_ReconnectBudgetExhausted(t *testing.T) {
	drop := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Returning closes the connection from the server side.
		<-drop
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.MaxReconnects = 2

	client := New(cfg)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Stop accepting so every redial fails, then drop the live
	// connection.
	server.Listener.Close()
	close(drop)

	select {
	case _, ok := <-client.Messages():
		if ok {
			t.Fatal("expected Messages to close once the reconnect budget runs out")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Messages to close")
	}

	if client.State() != StateDisconnected {
		t.Errorf("expected state %v, got %v", StateDisconnected, client.State())
	}
}

func TestClient_GracefulClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if client.State() != StateDisconnected {
		t.Errorf("expected state %v, got %v", StateDisconnected, client.State())
	}

	// Second close should be idempotent.
	if err := client.Close(); err != nil {
		t.Errorf("second Close should not error: %v", err)
	}
}

func TestClient_ConcurrentSend(t *testing.T) {
	var msgCount atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
			msgCount.Add(1)
		}
	})
	defer server.Close()

	client := New(testConfig(wsURL(server)))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	const numGoroutines = 10
	const msgsPerGoroutine = 5
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < msgsPerGoroutine; j++ {
				if err := client.Send(ctx, []byte("ping")); err != nil {
					t.Errorf("Send failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()
	time.Sleep(200 * time.Millisecond) // Let server process

	expected := int32(numGoroutines * msgsPerGoroutine)
	if got := msgCount.Load(); got != expected {
		t.Errorf("expected %d messages, server received %d", expected, got)
	}
}
