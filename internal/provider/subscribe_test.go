package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/tradefeed/internal/connection"
)

// handshake records what the client sent before the subscription started.
type handshake struct {
	subprotocol string
	init        wsMessage
	subscribe   wsMessage
}

// mockGraphQLServer acks the connection, reads the subscribe frame and then
// hands the socket to handler.
func mockGraphQLServer(t *testing.T, handler func(conn *websocket.Conn, hs handshake)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{wsSubprotocol},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		hs := handshake{subprotocol: conn.Subprotocol()}
		if err := conn.ReadJSON(&hs.init); err != nil {
			return
		}
		if err := conn.WriteJSON(wsMessage{Type: msgConnectionAck}); err != nil {
			return
		}
		if err := conn.ReadJSON(&hs.subscribe); err != nil {
			return
		}
		handler(conn, hs)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// recorder collects handler callbacks.
type recorder struct {
	events chan []json.RawMessage
	errs   chan string
}

func newRecorder() *recorder {
	return &recorder{
		events: make(chan []json.RawMessage, 10),
		errs:   make(chan string, 10),
	}
}

func (r *recorder) handlers() connection.Handlers {
	return connection.Handlers{
		OnEvents: func(events []json.RawMessage) { r.events <- events },
		OnError:  func(message string) { r.errs <- message },
	}
}

func (r *recorder) waitError(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-r.errs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnError")
		return ""
	}
}

func next(id, payload string) wsMessage {
	return wsMessage{ID: id, Type: msgNext, Payload: json.RawMessage(payload)}
}

// drain reads until the client goes away, returning the frames it sent.
func drain(conn *websocket.Conn) []wsMessage {
	var frames []wsMessage
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return frames
		}
		frames = append(frames, msg)
	}
}

func newTestClient(server *httptest.Server, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithEndpoints("", wsURL(server)),
		WithHandshakeTimeout(2 * time.Second),
		WithPingInterval(0),
	}, opts...)
	return NewClient("test-key", opts...)
}

func TestSubscribe_DeliversEvents(t *testing.T) {
	var (
		mu        sync.Mutex
		gotHS     handshake
		gotFrames []wsMessage
		serverEnd = make(chan struct{})
	)

	server := mockGraphQLServer(t, func(conn *websocket.Conn, hs handshake) {
		defer close(serverEnd)
		conn.WriteJSON(next(hs.subscribe.ID,
			`{"data":{"onTokenEventsCreated":{"events":[{"id":"a"},null,{"id":"b"}]}}}`))
		conn.WriteJSON(next(hs.subscribe.ID,
			`{"data":{"onTokenEventsCreated":{"events":[]}}}`))
		conn.WriteJSON(next("someone-else", `{"data":{"onTokenEventsCreated":{"events":[{"id":"x"}]}}}`))

		frames := drain(conn)
		mu.Lock()
		gotHS, gotFrames = hs, frames
		mu.Unlock()
	})
	defer server.Close()

	rec := newRecorder()
	unsubscribe, err := newTestClient(server).Subscribe(context.Background(), "0xABC", 1, rec.handlers())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case events := <-rec.events:
		if len(events) != 2 || string(events[0]) != `{"id":"a"}` || string(events[1]) != `{"id":"b"}` {
			t.Errorf("events = %s", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	unsubscribe()
	unsubscribe()

	select {
	case <-serverEnd:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not see the client close")
	}

	mu.Lock()
	defer mu.Unlock()

	if gotHS.subprotocol != wsSubprotocol {
		t.Errorf("subprotocol = %q, want %q", gotHS.subprotocol, wsSubprotocol)
	}
	if gotHS.init.Type != msgConnectionInit {
		t.Errorf("first frame = %q, want connection_init", gotHS.init.Type)
	}
	var auth map[string]string
	json.Unmarshal(gotHS.init.Payload, &auth)
	if auth["Authorization"] != "test-key" {
		t.Errorf("init Authorization = %q, want test-key", auth["Authorization"])
	}

	if gotHS.subscribe.Type != msgSubscribe {
		t.Errorf("second frame = %q, want subscribe", gotHS.subscribe.Type)
	}
	if _, err := uuid.Parse(gotHS.subscribe.ID); err != nil {
		t.Errorf("operation id %q is not a uuid: %v", gotHS.subscribe.ID, err)
	}

	var req struct {
		Query     string `json:"query"`
		Variables struct {
			Input struct {
				TokenAddress string `json:"tokenAddress"`
				NetworkID    int    `json:"networkId"`
			} `json:"input"`
		} `json:"variables"`
	}
	json.Unmarshal(gotHS.subscribe.Payload, &req)
	if !strings.Contains(req.Query, "onTokenEventsCreated") {
		t.Errorf("query = %s", req.Query)
	}
	if req.Variables.Input.TokenAddress != "0xabc" || req.Variables.Input.NetworkID != 1 {
		t.Errorf("input = %+v", req.Variables.Input)
	}

	if len(gotFrames) == 0 || gotFrames[0].Type != msgComplete || gotFrames[0].ID != gotHS.subscribe.ID {
		t.Errorf("frames after unsubscribe = %+v, want one complete", gotFrames)
	}

	select {
	case msg := <-rec.errs:
		t.Errorf("unexpected OnError after unsubscribe: %q", msg)
	default:
	}
}

func TestSubscribe_SolVariant(t *testing.T) {
	subscribed := make(chan wsMessage, 1)
	server := mockGraphQLServer(t, func(conn *websocket.Conn, hs handshake) {
		subscribed <- hs.subscribe
		conn.WriteJSON(next(hs.subscribe.ID,
			`{"data":{"onUnconfirmedEventsCreated":{"events":[{"id":"s"}]}}}`))
		drain(conn)
	})
	defer server.Close()

	rec := newRecorder()
	unsubscribe, err := newTestClient(server, WithVariant(VariantSol)).
		Subscribe(context.Background(), "SoLMint", 1399811149, rec.handlers())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	msg := <-subscribed
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	json.Unmarshal(msg.Payload, &req)
	if !strings.Contains(req.Query, "onUnconfirmedEventsCreated") {
		t.Errorf("query = %s", req.Query)
	}
	if req.Variables["address"] != "solmint" {
		t.Errorf("variables = %v", req.Variables)
	}

	select {
	case events := <-rec.events:
		if len(events) != 1 {
			t.Errorf("len(events) = %d, want 1", len(events))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}
}

func TestSubscribe_Errors(t *testing.T) {
	tests := []struct {
		name  string
		serve func(conn *websocket.Conn, id string)
		want  string
	}{
		{
			name: "per-message errors are joined",
			serve: func(conn *websocket.Conn, id string) {
				conn.WriteJSON(next(id, `{"errors":[{"message":"quota exceeded"},{"message":""},{"message":"try later"}]}`))
				drain(conn)
			},
			want: "quota exceeded, try later",
		},
		{
			name: "error frame",
			serve: func(conn *websocket.Conn, id string) {
				conn.WriteJSON(wsMessage{ID: id, Type: msgError, Payload: json.RawMessage(`[{"message":"invalid token address"}]`)})
				drain(conn)
			},
			want: "invalid token address",
		},
		{
			name: "error frame without messages",
			serve: func(conn *websocket.Conn, id string) {
				conn.WriteJSON(wsMessage{ID: id, Type: msgError, Payload: json.RawMessage(`[]`)})
				drain(conn)
			},
			want: "subscription error",
		},
		{
			name: "server complete",
			serve: func(conn *websocket.Conn, id string) {
				conn.WriteJSON(wsMessage{ID: id, Type: msgComplete})
				drain(conn)
			},
			want: "subscription completed by server",
		},
		{
			name:  "connection dropped",
			serve: func(conn *websocket.Conn, id string) {},
			want:  "connection lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockGraphQLServer(t, func(conn *websocket.Conn, hs handshake) {
				tt.serve(conn, hs.subscribe.ID)
			})
			defer server.Close()

			rec := newRecorder()
			unsubscribe, err := newTestClient(server).Subscribe(context.Background(), "0xabc", 1, rec.handlers())
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
			defer unsubscribe()

			if got := rec.waitError(t); !strings.Contains(got, tt.want) {
				t.Errorf("OnError(%q), want %q", got, tt.want)
			}

			// OnError is reported once.
			select {
			case msg := <-rec.errs:
				t.Errorf("second OnError(%q)", msg)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestSubscribe_RespondsToPing(t *testing.T) {
	pong := make(chan wsMessage, 1)
	server := mockGraphQLServer(t, func(conn *websocket.Conn, hs handshake) {
		conn.WriteJSON(wsMessage{Type: msgPing})
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err == nil {
			pong <- msg
		}
		drain(conn)
	})
	defer server.Close()

	unsubscribe, err := newTestClient(server).Subscribe(context.Background(), "0xabc", 1, newRecorder().handlers())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	select {
	case msg := <-pong:
		if msg.Type != msgPong {
			t.Errorf("reply = %q, want pong", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestSubscribe_HandshakeRejected(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{wsSubprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var init wsMessage
		conn.ReadJSON(&init)
		conn.WriteJSON(wsMessage{Type: msgError, Payload: json.RawMessage(`[{"message":"Forbidden"}]`)})
		drain(conn)
	}))
	defer server.Close()

	_, err := newTestClient(server).Subscribe(context.Background(), "0xabc", 1, newRecorder().handlers())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("error = %v, want ErrHandshakeFailed", err)
	}
	if !strings.Contains(err.Error(), "Forbidden") {
		t.Errorf("error = %v, want it to mention Forbidden", err)
	}
}

func TestSubscribe_HandshakeTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{wsSubprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		drain(conn) // never acks
	}))
	defer server.Close()

	c := newTestClient(server, WithHandshakeTimeout(100*time.Millisecond))
	_, err := c.Subscribe(context.Background(), "0xabc", 1, newRecorder().handlers())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("error = %v, want ErrHandshakeFailed", err)
	}
}

func TestSubscribe_ContextCancelledDuringHandshake(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{wsSubprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		drain(conn)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := newTestClient(server).Subscribe(ctx, "0xabc", 1, newRecorder().handlers())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSubscribe_DialFailure(t *testing.T) {
	c := NewClient("key", WithEndpoints("", "ws://127.0.0.1:1/graphql"), WithHandshakeTimeout(time.Second))
	_, err := c.Subscribe(context.Background(), "0xabc", 1, newRecorder().handlers())
	if err == nil || !strings.Contains(err.Error(), "dial") {
		t.Fatalf("error = %v, want dial error", err)
	}
}
