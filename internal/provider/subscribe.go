package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/tradefeed/internal/connection"
)

// Subscribe opens a live subscription for the target. It returns once the
// server has acknowledged the connection and the subscribe frame is sent.
func (c *Client) Subscribe(ctx context.Context, address string, networkID int, h connection.Handlers) (connection.Unsubscribe, error) {
	address = strings.ToLower(address)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		Subprotocols:     []string{wsSubprotocol},
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	req, rootField := c.variant.subscription(address, networkID)
	id := uuid.NewString()

	s := &subscription{
		conn:         conn,
		id:           id,
		rootField:    rootField,
		handlers:     h,
		logger:       c.logger.With("subscription", id),
		writeTimeout: c.writeTimeout,
		done:         make(chan struct{}),
		lastSeen:     time.Now(),
	}

	if err := s.handshake(ctx, c.apiKey, c.handshakeTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal subscription: %w", err)
	}
	if err := s.writeJSON(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	go s.readLoop()
	if c.pingInterval > 0 {
		go s.heartbeatLoop(c.pingInterval)
	}

	s.logger.Debug("subscribed",
		"address", address,
		"network_id", networkID,
		"variant", c.variant,
	)

	return s.unsubscribe, nil
}

// subscription is one live graphql-transport-ws operation on its own socket.
type subscription struct {
	conn         *websocket.Conn
	id           string
	rootField    string
	handlers     connection.Handlers
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu sync.Mutex

	closed atomic.Bool
	done   chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

// handshake sends connection_init and waits for connection_ack.
func (s *subscription) handshake(ctx context.Context, apiKey string, timeout time.Duration) error {
	// Unblock the read below if ctx is cancelled mid-handshake.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })

	err := s.awaitAck(apiKey, timeout)
	if !stop() {
		return ctx.Err()
	}
	return err
}

func (s *subscription) awaitAck(apiKey string, timeout time.Duration) error {
	payload, err := json.Marshal(map[string]string{"Authorization": apiKey})
	if err != nil {
		return fmt.Errorf("marshal connection_init: %w", err)
	}
	if err := s.writeJSON(wsMessage{Type: msgConnectionInit, Payload: payload}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	if timeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(timeout))
		defer s.conn.SetReadDeadline(time.Time{})
	}

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}

		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := s.writeJSON(wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
			}
		case msgError:
			var errs []graphqlError
			_ = json.Unmarshal(msg.Payload, &errs)
			return fmt.Errorf("%w: %s", ErrHandshakeFailed, joinErrors(errs, "connection rejected"))
		default:
			return fmt.Errorf("%w: unexpected %q before ack", ErrHandshakeFailed, msg.Type)
		}
	}
}

// readLoop dispatches frames until the socket fails or is unsubscribed.
func (s *subscription) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Sprintf("connection lost: %v", err))
			return
		}
		s.touch()

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("failed to decode frame", "error", err)
			continue
		}
		if msg.ID != "" && msg.ID != s.id {
			continue
		}

		switch msg.Type {
		case msgNext:
			if !s.handleNext(msg.Payload) {
				return
			}
		case msgError:
			var errs []graphqlError
			_ = json.Unmarshal(msg.Payload, &errs)
			s.fail(joinErrors(errs, "subscription error"))
			return
		case msgComplete:
			s.fail("subscription completed by server")
			return
		case msgPing:
			if err := s.writeJSON(wsMessage{Type: msgPong}); err != nil {
				s.logger.Debug("failed to send pong", "error", err)
			}
		case msgPong:
		default:
			s.logger.Debug("ignoring frame", "type", msg.Type)
		}
	}
}

// handleNext delivers a result. Returns false if the result carried errors
// and the subscription was failed.
func (s *subscription) handleNext(payload json.RawMessage) bool {
	var resp graphqlResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.logger.Debug("failed to decode result", "error", err)
		return true
	}

	if len(resp.Errors) > 0 {
		s.fail(joinErrors(resp.Errors, "subscription error"))
		return false
	}

	if len(resp.Data) == 0 {
		return true
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		s.logger.Debug("failed to decode data", "error", err)
		return true
	}

	var root eventsPayload
	if raw, ok := data[s.rootField]; ok {
		if err := json.Unmarshal(raw, &root); err != nil {
			s.logger.Debug("failed to decode events", "error", err)
			return true
		}
	}

	events := compactEvents(root.Events)
	if len(events) > 0 && !s.closed.Load() && s.handlers.OnEvents != nil {
		s.handlers.OnEvents(events)
	}
	return true
}

// heartbeatLoop pings the server and fails the subscription when nothing
// has been heard for two intervals.
func (s *subscription) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout)
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.Lock()
			lastSeen := s.lastSeen
			s.mu.Unlock()

			if time.Since(lastSeen) > 2*interval {
				s.logger.Warn("connection stale", "last_seen", lastSeen)
				s.fail("connection stale")
				return
			}
		}
	}
}

func (s *subscription) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// fail reports a terminal error once and closes the socket.
func (s *subscription) fail(message string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	s.conn.Close()

	if s.handlers.OnError != nil {
		s.handlers.OnError(message)
	}
}

// unsubscribe completes the operation and closes the socket. Safe to call
// more than once.
func (s *subscription) unsubscribe() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	if err := s.writeJSON(wsMessage{ID: s.id, Type: msgComplete}); err != nil {
		s.logger.Debug("failed to send complete", "error", err)
	}

	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	s.conn.Close()
}

// writeJSON serializes writes to the socket.
func (s *subscription) writeJSON(msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(msg)
}
