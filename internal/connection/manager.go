package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/rickgao/tradefeed/internal/model"
	"github.com/rickgao/tradefeed/internal/normalize"
	"github.com/rickgao/tradefeed/internal/window"
)

// Manager owns the live feed and trade window for one target.
type Manager interface {
	// Start runs the event loop and connects to the configured target.
	Start(ctx context.Context) error

	// Stop tears down the subscription and waits for in-flight work.
	Stop(ctx context.Context) error

	// SetTarget switches the feed. The window is cleared and the lifecycle
	// restarts. Setting an equal target is a no-op.
	SetTarget(target model.Target)

	// SetAPIKey replaces the provider credential and restarts the lifecycle.
	SetAPIKey(apiKey string)

	// Snapshot returns trades, status and error as one consistent view.
	Snapshot() Snapshot

	// Trades returns the window, newest first.
	Trades() []model.Trade

	// Status returns the connection state.
	Status() model.ConnectionState

	// Err returns the last recorded error message, or "".
	Err() string

	// Changes is signalled (coalesced) after every state change.
	Changes() <-chan struct{}

	// Stats returns counters for the feed.
	Stats() ManagerStats
}

// Events applied by the loop.
type (
	event interface{ isEvent() }

	startEvent  struct{}
	stopEvent   struct{}
	targetEvent struct{ target model.Target }
	apiKeyEvent struct{ apiKey string }

	backfillEvent struct {
		gen    uint64
		events []json.RawMessage
		err    error
	}
	subscribedEvent struct {
		gen, sub    uint64
		unsubscribe Unsubscribe
		err         error
	}
	liveEvent struct {
		gen, sub uint64
		events   []json.RawMessage
	}
	liveErrorEvent struct {
		gen, sub uint64
		message  string
	}
	retryEvent struct {
		gen, timer uint64
	}
)

func (startEvent) isEvent()      {}
func (stopEvent) isEvent()       {}
func (targetEvent) isEvent()     {}
func (apiKeyEvent) isEvent()     {}
func (backfillEvent) isEvent()   {}
func (subscribedEvent) isEvent() {}
func (liveEvent) isEvent()       {}
func (liveErrorEvent) isEvent()  {}
func (retryEvent) isEvent()      {}

// stateMachine is the mutable lifecycle state. Only the loop goroutine
// touches it.
type stateMachine struct {
	state   model.ConnectionState
	err     string
	attempt int
	target  model.Target
	apiKey  string
	window  window.Window

	started bool
	stopped bool

	// gen is bumped on every teardown. Results tagged with an older
	// generation are discarded.
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	provider Provider

	// sub identifies the current subscribe attempt.
	sub         uint64
	unsubscribe Unsubscribe

	timer   Timer
	timerID uint64

	stats ManagerStats
}

// published is what readers see.
type published struct {
	window  window.Window
	status  model.ConnectionState
	err     string
	attempt int
	target  model.Target
	stats   ManagerStats
}

// manager implements the Manager interface.
type manager struct {
	cfg        ManagerConfig
	registry   *Registry
	logger     *slog.Logger
	normalizer *normalize.Normalizer
	backoff    Backoff

	events *Queue[event]
	sm     stateMachine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifeMu  sync.Mutex
	running bool
	closed  bool

	mu   sync.RWMutex
	view published

	changes chan struct{}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, registry *Registry, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	m := &manager{
		cfg:        cfg,
		registry:   registry,
		logger:     logger,
		normalizer: normalize.New(cfg.Now),
		backoff:    Backoff{Base: cfg.ReconnectBaseWait, Max: cfg.ReconnectMaxWait},
		events:     NewQueue[event](64),
		changes:    make(chan struct{}, 1),
	}
	m.sm = stateMachine{
		state:  model.StateIdle,
		target: cfg.Target,
		apiKey: cfg.APIKey,
		window: window.New(cfg.MaxEvents),
	}
	m.view = published{
		window: m.sm.window,
		status: m.sm.state,
		target: m.sm.target,
	}
	return m
}

// Start begins the event loop.
func (m *manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	if m.running {
		return ErrAlreadyStarted
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(2)
	go m.loop()
	go func() {
		defer m.wg.Done()
		<-m.ctx.Done()
		m.post(stopEvent{})
	}()

	m.post(startEvent{})

	m.logger.Info("connection manager started",
		"max_events", m.cfg.MaxEvents,
		"reconnect_base", m.cfg.ReconnectBaseWait,
		"reconnect_max", m.cfg.ReconnectMaxWait,
	)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return nil
	}
	m.closed = true
	running := m.running
	m.lifeMu.Unlock()

	m.logger.Info("stopping connection manager")

	if !running {
		m.events.Close()
		return nil
	}

	// stopEvent is queued ahead of anything the cancellation triggers.
	m.post(stopEvent{})
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		return ctx.Err()
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// SetTarget switches the feed to a new target.
func (m *manager) SetTarget(target model.Target) {
	m.post(targetEvent{target: target})
}

// SetAPIKey replaces the provider credential.
func (m *manager) SetAPIKey(apiKey string) {
	m.post(apiKeyEvent{apiKey: strings.TrimSpace(apiKey)})
}

// Snapshot returns a consistent view of the outputs.
func (m *manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Trades:  m.view.window.Trades(),
		Status:  m.view.status,
		Error:   m.view.err,
		Attempt: m.view.attempt,
		Target:  m.view.target,
	}
}

// Trades returns the current window.
func (m *manager) Trades() []model.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.window.Trades()
}

// Status returns the connection state.
func (m *manager) Status() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.status
}

// Err returns the last error message.
func (m *manager) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.err
}

// Changes returns the change notification channel.
func (m *manager) Changes() <-chan struct{} {
	return m.changes
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.stats
}

// post queues an event for the loop.
func (m *manager) post(ev event) {
	if m.events.Send(ev) {
		return
	}
	// The loop has exited; a subscription handle would otherwise leak.
	if s, ok := ev.(subscribedEvent); ok && s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// loop applies events one at a time until the queue is closed and drained.
func (m *manager) loop() {
	defer m.wg.Done()

	for {
		ev, ok := m.events.Receive()
		if !ok {
			return
		}
		m.transition(ev)
		m.publish()
	}
}

// transition applies one event to the state machine.
func (m *manager) transition(ev event) {
	sm := &m.sm

	switch ev := ev.(type) {
	case startEvent:
		sm.started = true
		m.restart()

	case stopEvent:
		if sm.stopped {
			return
		}
		m.teardown()
		sm.stopped = true
		sm.state = model.StateIdle
		m.events.Close()

	case targetEvent:
		if sm.stopped || sm.target.Equal(ev.target) {
			return
		}
		m.logger.Info("target changed", "from", sm.target.String(), "to", ev.target.String())
		sm.target = ev.target
		if sm.started {
			m.restart()
		}

	case apiKeyEvent:
		if sm.stopped || sm.apiKey == ev.apiKey {
			return
		}
		sm.apiKey = ev.apiKey
		if sm.started {
			m.restart()
		}

	case backfillEvent:
		m.onBackfill(ev)

	case subscribedEvent:
		m.onSubscribed(ev)

	case liveEvent:
		if !m.current(ev.gen, ev.sub) {
			sm.stats.StaleDiscarded++
			return
		}
		m.merge(ev.events)

	case liveErrorEvent:
		if !m.current(ev.gen, ev.sub) {
			sm.stats.StaleDiscarded++
			return
		}
		m.fail(ev.message)

	case retryEvent:
		if sm.stopped || ev.gen != sm.gen || ev.timer != sm.timerID {
			sm.stats.StaleDiscarded++
			return
		}
		sm.timer = nil
		m.connect()
	}
}

// restart tears down the current target and starts the lifecycle afresh.
func (m *manager) restart() {
	sm := &m.sm

	m.teardown()
	sm.window = sm.window.Clear()
	sm.attempt = 0
	sm.err = ""
	sm.provider = nil

	if !sm.target.Valid() {
		sm.state = model.StateIdle
		return
	}

	if sm.apiKey == "" {
		sm.state = model.StateUnauthorized
		sm.err = ErrMissingAPIKey.Error()
		m.logger.Warn("provider credential missing", "target", sm.target.String())
		return
	}

	provider, err := m.registry.Get(sm.apiKey)
	if err != nil {
		sm.state = model.StateError
		sm.err = err.Error()
		m.logger.Error("failed to get provider", "target", sm.target.String(), "error", err)
		return
	}
	sm.provider = provider
	sm.ctx, sm.cancel = context.WithCancel(m.ctx)

	m.logger.Info("starting feed", "target", sm.target.String())

	m.backfill()
	m.connect()
}

// teardown invalidates in-flight work, cancels the reconnect timer and
// detaches the live subscription, in that order.
func (m *manager) teardown() {
	sm := &m.sm

	sm.gen++
	if sm.cancel != nil {
		sm.cancel()
		sm.cancel = nil
	}
	m.clearTimer()
	m.detach()
}

func (m *manager) clearTimer() {
	sm := &m.sm
	if sm.timer != nil {
		sm.timer.Stop()
		sm.timer = nil
	}
	sm.timerID++
}

// detach unsubscribes the live feed and invalidates the current attempt.
func (m *manager) detach() {
	sm := &m.sm
	if sm.unsubscribe != nil {
		sm.unsubscribe()
		sm.unsubscribe = nil
	}
	sm.sub++
}

// current reports whether a callback belongs to the active attempt.
func (m *manager) current(gen, sub uint64) bool {
	sm := &m.sm
	return !sm.stopped && gen == sm.gen && sub == sm.sub
}

// backfill issues the one-shot history query for the current generation.
func (m *manager) backfill() {
	sm := &m.sm
	gen, ctx, provider := sm.gen, sm.ctx, sm.provider
	address, networkID := strings.ToLower(sm.target.Address), sm.target.NetworkID
	limit := m.cfg.MaxEvents

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		events, err := provider.FetchRecentEvents(ctx, address, networkID, limit)
		m.post(backfillEvent{gen: gen, events: events, err: err})
	}()
}

// connect starts a subscribe attempt.
func (m *manager) connect() {
	sm := &m.sm

	sm.sub++
	gen, sub, ctx, provider := sm.gen, sm.sub, sm.ctx, sm.provider
	address, networkID := strings.ToLower(sm.target.Address), sm.target.NetworkID

	if sm.attempt == 0 {
		sm.state = model.StateConnecting
	} else {
		sm.state = model.StateReconnecting
	}
	sm.stats.Subscribes++

	handlers := Handlers{
		OnEvents: func(events []json.RawMessage) {
			m.post(liveEvent{gen: gen, sub: sub, events: events})
		},
		OnError: func(message string) {
			m.post(liveErrorEvent{gen: gen, sub: sub, message: message})
		},
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		unsubscribe, err := provider.Subscribe(ctx, address, networkID, handlers)
		m.post(subscribedEvent{gen: gen, sub: sub, unsubscribe: unsubscribe, err: err})
	}()
}

func (m *manager) onSubscribed(ev subscribedEvent) {
	sm := &m.sm

	if !m.current(ev.gen, ev.sub) || m.ctx.Err() != nil {
		// Resolved after teardown or after the attempt was abandoned.
		if ev.unsubscribe != nil {
			ev.unsubscribe()
		}
		sm.stats.StaleDiscarded++
		return
	}

	if ev.err != nil {
		m.fail(ev.err.Error())
		return
	}

	sm.unsubscribe = ev.unsubscribe
	if sm.unsubscribe == nil {
		sm.unsubscribe = func() {}
	}
	sm.attempt = 0
	sm.err = ""
	sm.state = model.StateReady

	m.logger.Info("subscribed", "target", sm.target.String())
}

func (m *manager) onBackfill(ev backfillEvent) {
	sm := &m.sm

	if sm.stopped || ev.gen != sm.gen {
		sm.stats.StaleDiscarded++
		return
	}

	if ev.err != nil {
		sm.stats.BackfillFailures++
		m.logger.Warn("backfill failed", "target", sm.target.String(), "error", ev.err)
		return
	}

	accepted := m.merge(ev.events)
	m.logger.Debug("backfill merged",
		"target", sm.target.String(),
		"events", len(ev.events),
		"accepted", accepted,
	)
}

// merge normalizes raw events into the window. Returns accepted count.
func (m *manager) merge(events []json.RawMessage) int {
	sm := &m.sm

	trades, rejected := m.normalizer.NormalizeBatch(events, sm.target.NetworkID)
	sm.stats.EventsReceived += int64(len(events))
	sm.stats.EventsRejected += int64(rejected)

	if len(trades) > 0 {
		sm.window = sm.window.Merge(trades)
	}
	return len(trades)
}

// fail records a stream or subscribe error and schedules a reconnect.
func (m *manager) fail(message string) {
	sm := &m.sm

	sm.state = model.StateError
	sm.err = message
	sm.stats.StreamErrors++

	m.logger.Warn("subscription error",
		"target", sm.target.String(),
		"error", message,
		"attempt", sm.attempt,
	)

	m.scheduleReconnect()
}

// scheduleReconnect detaches the old subscription and arms the timer.
func (m *manager) scheduleReconnect() {
	sm := &m.sm

	m.detach()
	m.clearTimer()

	sm.attempt++
	delay := m.backoff.Delay(sm.attempt)
	sm.state = model.StateReconnecting
	sm.stats.Reconnects++

	gen, id := sm.gen, sm.timerID
	sm.timer = m.cfg.AfterFunc(delay, func() {
		m.post(retryEvent{gen: gen, timer: id})
	})

	m.logger.Info("reconnect scheduled",
		"target", sm.target.String(),
		"attempt", sm.attempt,
		"delay", delay,
	)
}

// publish copies loop state for readers and signals a change.
func (m *manager) publish() {
	sm := &m.sm

	stats := sm.stats
	stats.Queue = m.events.Stats()

	m.mu.Lock()
	m.view = published{
		window:  sm.window,
		status:  sm.state,
		err:     sm.err,
		attempt: sm.attempt,
		target:  sm.target,
		stats:   stats,
	}
	m.mu.Unlock()

	select {
	case m.changes <- struct{}{}:
	default:
	}
}
