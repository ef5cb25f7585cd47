// Package client is the Go client for the collaborative canvas: a session
// manager with reconnect and backoff, snapshot reconciliation, and a local
// identity store.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"retro-paint/internal/domain"
	"retro-paint/internal/dto"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultPongWait matches the server's keepalive window.
	DefaultPongWait = 60 * time.Second
	writeWait       = 10 * time.Second
)

var (
	ErrNotConnected       = errors.New("client: not connected")
	ErrReconnectExhausted = errors.New("client: reconnect attempts exhausted")
	ErrHandshakeTimeout   = errors.New("client: no canvas state received")
	ErrRoomFull           = errors.New("client: room is full")
	ErrUnauthorized       = errors.New("client: room password or ticket rejected")
	ErrRoomNotFound       = errors.New("client: room not found")
)

// Dialer opens the websocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Timer is a scheduled reconnect.
type Timer interface {
	Stop() bool
}

// Config configures a Manager. ServerURL is the websocket endpoint, e.g.
// ws://localhost:8080/ws.
type Config struct {
	ServerURL string
	RoomID    string
	Password  string
	Ticket    string
	User      domain.User

	// Store is optional; when set the joined room and adopted canvases are
	// persisted and the cached canvas takes part in reconciliation.
	Store *IdentityStore

	Dialer           Dialer
	HandshakeTimeout time.Duration
	// PongWait is how long the connection may stay silent before it is
	// treated as lost. Pings go out every 9/10 of it.
	PongWait    time.Duration
	MaxAttempts int
	AfterFunc        func(d time.Duration, f func()) Timer
	Logger           *logrus.Entry
}

// Manager owns one connection to one room and drives the state machine
// Disconnected -> Connecting -> Connected -> Reconnecting -> ... -> Failed.
// Outbound messages are at-most-once: nothing is queued while disconnected.
type Manager struct {
	cfg Config
	bus *bus
	log *logrus.Entry

	mu      sync.Mutex
	state   State
	attempt int
	gen     int // bumps on every new attempt; stale goroutines compare and bail
	conn    *websocket.Conn
	timer   Timer
	lastErr error
	canvas  *domain.CanvasSnapshot
	users   []dto.UserEntry

	writeMu sync.Mutex
}

// NewManager validates cfg and fills defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("client: server url is required")
	}
	if cfg.User.ID == "" {
		return nil, errors.New("client: user id is required")
	}
	if cfg.RoomID == "" {
		cfg.RoomID = domain.DefaultRoomID
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		cfg: cfg,
		bus: newBus(),
		log: cfg.Logger.WithFields(logrus.Fields{"room_id": cfg.RoomID, "user_id": cfg.User.ID}),
	}, nil
}

// Subscribe registers an event listener. Call cancel to unsubscribe.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.bus.subscribe(buffer)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error behind the latest Reconnecting or Failed transition.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Canvas returns the current reconciled canvas, or nil before the first handshake.
func (m *Manager) Canvas() *domain.CanvasSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canvas.Clone()
}

// Users returns the latest room roster.
func (m *Manager) Users() []dto.UserEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dto.UserEntry(nil), m.users...)
}

// Connect starts connecting and waits until the session is Connected or
// Failed, or ctx is done. Reconnect attempts keep running in the background
// after ctx expires.
func (m *Manager) Connect(ctx context.Context) error {
	events, cancel := m.Subscribe(16)
	defer cancel()

	m.mu.Lock()
	switch m.state {
	case Connected:
		m.mu.Unlock()
		return nil
	case Connecting, Reconnecting:
	default:
		m.attempt = 0
		m.lastErr = nil
		m.setStateLocked(Connecting, nil)
		m.gen++
		go m.dial(m.gen)
	}
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return ErrNotConnected
			}
			if e.Kind != EventState {
				continue
			}
			switch e.State {
			case Connected:
				return nil
			case Failed:
				return e.Err
			case Disconnected:
				return ErrNotConnected
			}
		}
	}
}

// Disconnect closes the connection and cancels any pending reconnect.
// The manager stays Disconnected until Connect or Reconnect is called.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.stopTimerLocked()
	m.closeConnLocked(websocket.CloseNormalClosure)
	if m.state != Disconnected {
		m.setStateLocked(Disconnected, nil)
	}
}

// Reconnect drops the current connection and starts over with a fresh
// attempt budget. It is the way out of Failed.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.stopTimerLocked()
	m.closeConnLocked(websocket.CloseNormalClosure)
	m.attempt = 0
	m.lastErr = nil
	m.setStateLocked(Connecting, nil)
	go m.dial(m.gen)
}

func (m *Manager) SendDrawing(op domain.DrawingOperation) error {
	op.UserID = m.cfg.User.ID
	op.RoomID = m.cfg.RoomID
	op.Timestamp = time.Now().UnixMilli()
	return m.send(dto.NewDrawing(op))
}

func (m *Manager) SendChat(text string) error {
	return m.send(dto.NewChat(m.cfg.User.ID, m.cfg.User.Username, m.cfg.RoomID, text, time.Now().UnixMilli()))
}

func (m *Manager) SendPresence(p domain.Presence) error {
	return m.send(dto.NewPresence(m.cfg.User.ID, m.cfg.RoomID, p))
}

func (m *Manager) SendUndo() error { return m.send(dto.Message{Type: dto.TypeUndo}) }

func (m *Manager) SendRedo() error { return m.send(dto.Message{Type: dto.TypeRedo}) }

// SendCanvas asks the server to replace the room canvas wholesale.
func (m *Manager) SendCanvas(snap domain.CanvasSnapshot) error {
	return m.send(dto.NewCanvasState(m.cfg.RoomID, &snap))
}

func (m *Manager) send(msg dto.Message) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("client: send %s: %w", msg.Type, err)
	}
	return nil
}

// dial runs one connection attempt for generation gen.
func (m *Manager) dial(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	if m.cfg.Ticket != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Ticket)
	}
	conn, resp, err := m.cfg.Dialer.DialContext(ctx, m.endpoint(), header)
	if err != nil {
		if rejected := rejectionFromStatus(resp); rejected != nil {
			m.fail(gen, rejected)
			return
		}
		m.connectionLost(gen, fmt.Errorf("dial: %w", err))
		return
	}

	server, err := m.handshake(conn)
	if err != nil {
		conn.Close()
		var rej *rejectionError
		if errors.As(err, &rej) {
			m.fail(gen, rej.err)
			return
		}
		m.connectionLost(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.attempt = 0
	m.lastErr = nil
	m.setStateLocked(Connected, nil)
	m.adoptLocked(server, true)
	m.mu.Unlock()

	if m.cfg.Store != nil {
		if err := m.cfg.Store.SaveRoom(RoomRef{ID: m.cfg.RoomID, Name: m.cfg.RoomID}); err != nil {
			m.log.WithError(err).Warn("Failed to persist room")
		}
	}
	go m.readLoop(gen, conn)
}

// handshake waits for the first canvasState frame.
func (m *Manager) handshake(conn *websocket.Conn) (domain.CanvasSnapshot, error) {
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return domain.CanvasSnapshot{}, ErrHandshakeTimeout
			}
			return domain.CanvasSnapshot{}, fmt.Errorf("handshake: %w", err)
		}
		msg, err := dto.Decode(data)
		if err != nil {
			continue
		}
		switch msg.Type {
		case dto.TypeCanvasState:
			if msg.Canvas == nil {
				return domain.CanvasSnapshot{}, errors.New("handshake: empty canvas state")
			}
			return *msg.Canvas, nil
		case dto.TypeError:
			if rejected := rejectionFromCode(msg.Code); rejected != nil {
				return domain.CanvasSnapshot{}, &rejectionError{err: rejected}
			}
		}
	}
}

// readLoop dispatches inbound frames. Every frame or pong pushes the read
// deadline out by PongWait, so a half-open connection ends in a timeout.
func (m *Manager) readLoop(gen int, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go m.pingLoop(conn, done)

	extend := func() error { return conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait)) }
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, err)
			return
		}
		_ = extend()
		msg, err := dto.Decode(data)
		if err != nil {
			m.log.WithError(err).Debug("Ignoring undecodable frame")
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		switch msg.Type {
		case dto.TypeCanvasState:
			if msg.Canvas != nil {
				m.adoptLocked(*msg.Canvas, false)
			}
		case dto.TypeDrawing:
			m.bus.publish(Event{Kind: EventDrawing, Message: msg})
		case dto.TypeChat:
			m.bus.publish(Event{Kind: EventChat, Message: msg})
		case dto.TypePresence:
			m.bus.publish(Event{Kind: EventPresence, Message: msg})
		case dto.TypeUserList:
			m.users = msg.Users
			m.bus.publish(Event{Kind: EventUserList, Message: msg})
		case dto.TypeUserCount:
			m.bus.publish(Event{Kind: EventUserCount, Message: msg})
		case dto.TypeError:
			if rejected := rejectionFromCode(msg.Code); rejected != nil {
				m.mu.Unlock()
				m.fail(gen, rejected)
				return
			}
			m.bus.publish(Event{Kind: EventError, Message: msg})
		}
		m.mu.Unlock()
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			m.writeMu.Unlock()
			if err != nil {
				// readLoop sees the same failure
				return
			}
		}
	}
}

// adoptLocked applies a server canvas. On handshake the cached local canvas
// competes through Reconcile; later canvasState frames are authoritative.
func (m *Manager) adoptLocked(server domain.CanvasSnapshot, handshake bool) {
	local := m.canvas
	if handshake && m.cfg.Store != nil {
		cached, err := m.cfg.Store.LoadCanvas(m.cfg.RoomID)
		if err != nil {
			m.log.WithError(err).Warn("Failed to load cached canvas")
		}
		if cached != nil && cached.ImageData != "" && (local == nil || cached.LastUpdated > local.LastUpdated) {
			local = cached
		}
	}
	if !handshake {
		local = nil
	}

	chosen, adopted := Reconcile(local, server)
	m.canvas = &chosen
	if adopted && m.cfg.Store != nil {
		if err := m.cfg.Store.SaveCanvas(m.cfg.RoomID, chosen); err != nil {
			m.log.WithError(err).Warn("Failed to cache canvas")
		}
	}
	m.bus.publish(Event{Kind: EventCanvas, Canvas: chosen.Clone(), Adopted: adopted})
}

// connectionLost handles an abnormal close or failed attempt.
func (m *Manager) connectionLost(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state == Disconnected || m.state == Failed {
		return
	}
	m.closeConnLocked(websocket.CloseGoingAway)
	m.lastErr = err

	if m.attempt >= m.cfg.MaxAttempts {
		m.log.WithError(err).Error("Reconnect budget exhausted")
		m.lastErr = fmt.Errorf("%w: %w", ErrReconnectExhausted, err)
		m.setStateLocked(Failed, m.lastErr)
		return
	}

	delay := Backoff(m.attempt)
	m.attempt++
	m.gen++
	next := m.gen
	m.log.WithError(err).WithFields(logrus.Fields{"attempt": m.attempt, "delay": delay}).Warn("Connection lost, scheduling reconnect")
	m.state = Reconnecting
	m.bus.publish(Event{Kind: EventState, State: Reconnecting, Err: err, Attempt: m.attempt, Delay: delay})
	m.timer = m.cfg.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if next != m.gen {
			return
		}
		m.timer = nil
		go m.dial(next)
	})
}

// fail moves to Failed without retrying (server rejected the join).
func (m *Manager) fail(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.closeConnLocked(websocket.CloseNormalClosure)
	m.lastErr = err
	m.log.WithError(err).Warn("Join rejected by server")
	m.setStateLocked(Failed, err)
}

func (m *Manager) setStateLocked(s State, err error) {
	m.state = s
	m.bus.publish(Event{Kind: EventState, State: s, Err: err, Attempt: m.attempt})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeConnLocked(code int) {
	if m.conn == nil {
		return
	}
	m.writeMu.Lock()
	_ = m.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
	m.writeMu.Unlock()
	m.conn.Close()
	m.conn = nil
}

func (m *Manager) endpoint() string {
	q := url.Values{}
	q.Set("userId", m.cfg.User.ID)
	q.Set("username", m.cfg.User.Username)
	q.Set("roomId", m.cfg.RoomID)
	if m.cfg.Password != "" {
		q.Set("password", m.cfg.Password)
	}
	return m.cfg.ServerURL + "?" + q.Encode()
}

type rejectionError struct{ err error }

func (e *rejectionError) Error() string { return e.err.Error() }
func (e *rejectionError) Unwrap() error { return e.err }

func rejectionFromStatus(resp *http.Response) error {
	if resp == nil {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrRoomNotFound
	case http.StatusConflict:
		return ErrRoomFull
	}
	return nil
}

func rejectionFromCode(code string) error {
	switch code {
	case dto.CodeRoomFull:
		return ErrRoomFull
	case dto.CodeUnauthorized:
		return ErrUnauthorized
	case dto.CodeRoomNotFound:
		return ErrRoomNotFound
	}
	return nil
}
