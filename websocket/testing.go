package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/kenaz/engine"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv creates a testing environment to unit test handlers: a
// served connection handled by newHandler and a client side to drive it.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	client, close := newTestingEnv(t, newHandler)
	return client, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}
	config.Header.Set("User-Agent", "ted")

	client, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}

	return client, func() {
		client.Close()
		server.Close()
	}
}

func newTestHandler(cfg engine.Config) func() Handler {
	return func() Handler {
		var h Handler = &RealtimeHandler{
			ClientSyncClockInterval: time.Millisecond * 250,
			ClientIdleTimeout:       time.Minute,
			EngineConfig:            cfg,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://kenaz-test.com")
		return h
	}
}

// sendTestMsg writes v to the connection, failing the test on error.
func sendTestMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	if _, err := Send(conn, v); err != nil {
		t.Fatalf("error sending message: %s", err)
	}
}

// waitForMsg reads messages until one of the wanted type arrives, skipping
// everything else, such as interleaved sync clocks.
func waitForMsg(t *testing.T, conn *websocket.Conn, wanted MsgType) Msg {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	for {
		msg, _, err := Receive(conn)
		if err != nil {
			t.Fatalf("error waiting for %s: %s", wanted, err)
		}
		if msg.Type == wanted {
			return msg
		}
	}
}
