package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/domain"
)

type dialerFunc func(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error)

func (f dialerFunc) DialContext(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
	return f(ctx, url, h)
}

type fakeTimer struct{ stopped atomic.Bool }

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

// fakeScheduler records scheduled reconnects instead of sleeping.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{}
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, f)
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	f := s.fns[i]
	s.mu.Unlock()
	go f()
}

func newTestManager(t *testing.T, dialer Dialer, sched *fakeScheduler) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		ServerURL: "ws://example.invalid/ws",
		User:      domain.User{ID: "u1", Username: "tester"},
		RoomID:    "demo",
		Dialer:    dialer,
		AfterFunc: sched.AfterFunc,
	})
	require.NoError(t, err)
	return m
}

func waitState(t *testing.T, events <-chan Event, want State) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == EventState && e.State == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
			return Event{}
		}
	}
}

func TestManager_BackoffScheduleThenFailed(t *testing.T) {
	var dials atomic.Int32
	dialer := dialerFunc(func(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
		dials.Add(1)
		return nil, nil, errors.New("connection refused")
	})
	sched := &fakeScheduler{}
	m := newTestManager(t, dialer, sched)
	events, cancel := m.Subscribe(64)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- m.Connect(context.Background()) }()

	for k := 1; k <= DefaultMaxAttempts; k++ {
		e := waitState(t, events, Reconnecting)
		assert.Equal(t, k, e.Attempt)
		assert.Equal(t, Backoff(k-1), e.Delay)
		sched.fire(k - 1)
	}

	e := waitState(t, events, Failed)
	assert.ErrorIs(t, e.Err, ErrReconnectExhausted)
	assert.ErrorIs(t, <-result, ErrReconnectExhausted)
	assert.Equal(t, Failed, m.State())
	assert.Equal(t, int32(DefaultMaxAttempts+1), dials.Load(), "initial dial plus five retries")
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, sched.delays)
}

func TestManager_ServerRejectionFailsWithoutRetry(t *testing.T) {
	cases := map[int]error{
		http.StatusConflict:  ErrRoomFull,
		http.StatusForbidden: ErrUnauthorized,
		http.StatusNotFound:  ErrRoomNotFound,
	}
	for status, want := range cases {
		dialer := dialerFunc(func(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
			return nil, &http.Response{StatusCode: status}, websocket.ErrBadHandshake
		})
		sched := &fakeScheduler{}
		m := newTestManager(t, dialer, sched)

		err := m.Connect(context.Background())

		assert.ErrorIs(t, err, want)
		assert.Equal(t, Failed, m.State())
		assert.Empty(t, sched.delays, "rejections are never retried")
	}
}

func TestManager_DisconnectCancelsPendingReconnect(t *testing.T) {
	var dials atomic.Int32
	dialer := dialerFunc(func(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
		dials.Add(1)
		return nil, nil, errors.New("unreachable")
	})
	sched := &fakeScheduler{}
	m := newTestManager(t, dialer, sched)
	events, cancel := m.Subscribe(64)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()
	go m.Connect(ctx)
	waitState(t, events, Reconnecting)

	m.Disconnect()
	waitState(t, events, Disconnected)
	assert.True(t, sched.timers[0].stopped.Load())

	// a stale timer callback must not dial
	sched.fire(0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, Disconnected, m.State())
}

func TestManager_ReconnectResetsBudget(t *testing.T) {
	dialer := dialerFunc(func(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
		return nil, nil, errors.New("unreachable")
	})
	sched := &fakeScheduler{}
	m := newTestManager(t, dialer, sched)
	m.cfg.MaxAttempts = 1
	events, cancel := m.Subscribe(64)
	defer cancel()

	go m.Connect(context.Background())
	waitState(t, events, Reconnecting)
	sched.fire(0)
	waitState(t, events, Failed)

	m.Reconnect()
	waitState(t, events, Connecting)
	e := waitState(t, events, Reconnecting)
	assert.Equal(t, 1, e.Attempt, "budget starts over")
	assert.Equal(t, time.Second, e.Delay)
	m.Disconnect()
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	m := newTestManager(t, dialerFunc(nil), &fakeScheduler{})

	assert.ErrorIs(t, m.SendChat("hi"), ErrNotConnected)
	assert.ErrorIs(t, m.SendDrawing(domain.DrawingOperation{Kind: domain.KindBrush}), ErrNotConnected)
	assert.ErrorIs(t, m.SendPresence(domain.DefaultPresence()), ErrNotConnected)
	assert.ErrorIs(t, m.SendUndo(), ErrNotConnected)
	assert.ErrorIs(t, m.SendRedo(), ErrNotConnected)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{User: domain.User{ID: "u"}})
	assert.Error(t, err)
	_, err = NewManager(Config{ServerURL: "ws://x/ws"})
	assert.Error(t, err)

	m, err := NewManager(Config{ServerURL: "ws://x/ws", User: domain.User{ID: "u", Username: "n"}})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRoomID, m.cfg.RoomID)
	assert.Contains(t, m.endpoint(), "roomId="+domain.DefaultRoomID)
}
