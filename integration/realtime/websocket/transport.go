package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/logger"
)

// Transport is a channel.Transport over a shared Phoenix socket.
type Transport struct {
	cfg         Config
	endpoint    string
	accessToken func() string
	logger      *slog.Logger
	dialer      *websocket.Dialer

	mu     sync.Mutex
	sock   *socket
	closed bool
}

var _ channel.Transport = (*Transport)(nil)

// New creates a transport. The socket is dialed on the first Subscribe.
func New(cfg Config, opts ...Option) (*Transport, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	cfg = cfg.withDefaults()

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime websocket: parse url: %w", err)
	}
	q := u.Query()
	if cfg.APIKey != "" {
		q.Set("apikey", cfg.APIKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	t := &Transport{
		cfg:      cfg,
		endpoint: u.String(),
		logger:   defaultLogger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.JoinTimeout,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Subscribe joins the channel for topic and waits for the server to accept.
func (t *Transport) Subscribe(ctx context.Context, topic channel.Topic, deliver func(channel.Event)) (channel.Subscription, error) {
	sock, err := t.socket(ctx)
	if err != nil {
		return nil, err
	}

	name := topicName(t.cfg.Schema, topic)
	j := &joined{name: name, topic: topic, deliver: deliver}
	j.conn = channel.NewConn(func() error {
		if sock.leave(j) {
			t.release(sock)
		}
		return nil
	})
	if !sock.add(j) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTopic, name)
	}

	var payload joinPayload
	payload.Config.PostgresChanges = []changeFilter{{
		Event:  "*",
		Schema: t.cfg.Schema,
		Table:  topic.Table,
		Filter: topic.Filter,
	}}
	payload.AccessToken = t.cfg.APIKey
	if t.accessToken != nil {
		if tok := t.accessToken(); tok != "" {
			payload.AccessToken = tok
		}
	}

	joinCtx, cancel := context.WithTimeout(ctx, t.cfg.JoinTimeout)
	defer cancel()

	reply, err := sock.request(joinCtx, name, eventJoin, payload)
	if err == nil && reply.Status != "ok" {
		err = fmt.Errorf("%w: %s: %s", ErrJoinRejected, name, reply.Response)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrJoinTimeout
		}
		j.conn.End(err)
		return nil, err
	}

	t.logger.Debug("realtime channel joined",
		logger.Component("realtime.websocket"),
		logger.Topic(name),
	)
	return j.conn, nil
}

// Close drops the socket and rejects further subscriptions.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	sock := t.sock
	t.sock = nil
	t.mu.Unlock()

	if sock != nil {
		sock.shutdown(ErrTransportClosed)
	}
	return nil
}

func (t *Transport) socket(ctx context.Context) (*socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.sock != nil && !t.sock.isDone() {
		return t.sock, nil
	}

	conn, _, err := t.dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime websocket: dial: %w", err)
	}

	sock := &socket{
		conn:     conn,
		logger:   t.logger,
		pk:       t.cfg.PrimaryKey,
		channels: make(map[string]*joined),
		pending:  make(map[string]chan replyPayload),
		done:     make(chan struct{}),
	}
	t.sock = sock

	go sock.readLoop()
	go sock.heartbeatLoop(t.cfg.Heartbeat)

	t.logger.Debug("realtime socket connected", logger.Component("realtime.websocket"))
	return sock, nil
}

// release closes sock once no channel uses it.
func (t *Transport) release(sock *socket) {
	t.mu.Lock()
	if sock.size() > 0 {
		t.mu.Unlock()
		return
	}
	if t.sock == sock {
		t.sock = nil
	}
	t.mu.Unlock()

	sock.shutdown(nil)
}

type joined struct {
	name    string
	topic   channel.Topic
	deliver func(channel.Event)
	conn    *channel.Conn
}

type socket struct {
	conn   *websocket.Conn
	logger *slog.Logger
	pk     string

	writeMu sync.Mutex
	ref     uint64

	mu       sync.Mutex
	channels map[string]*joined
	pending  map[string]chan replyPayload
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

func (s *socket) add(j *joined) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[j.name]; ok {
		return false
	}
	s.channels[j.name] = j
	return true
}

// leave removes j and tells the server. It reports whether j was removed.
func (s *socket) leave(j *joined) bool {
	s.mu.Lock()
	cur, ok := s.channels[j.name]
	if !ok || cur != j {
		s.mu.Unlock()
		return false
	}
	delete(s.channels, j.name)
	s.mu.Unlock()

	if !s.isDone() {
		_, _ = s.push(j.name, eventLeave, struct{}{})
	}
	return true
}

func (s *socket) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

func (s *socket) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *socket) push(topic, event string, payload any) (string, error) {
	return s.send(topic, event, payload, nil)
}

// send writes a message under a fresh ref. waiter, when set, is registered
// for the reply before the write so a fast reply is not missed.
func (s *socket) send(topic, event string, payload any, waiter chan replyPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.ref++
	ref := strconv.FormatUint(s.ref, 10)
	if waiter != nil {
		s.mu.Lock()
		s.pending[ref] = waiter
		s.mu.Unlock()
	}
	return ref, s.conn.WriteJSON(message{Topic: topic, Event: event, Payload: body, Ref: ref})
}

// request pushes a message and waits for its reply.
func (s *socket) request(ctx context.Context, topic, event string, payload any) (replyPayload, error) {
	ch := make(chan replyPayload, 1)
	ref, err := s.send(topic, event, payload, ch)
	if ref != "" {
		defer func() {
			s.mu.Lock()
			delete(s.pending, ref)
			s.mu.Unlock()
		}()
	}
	if err != nil {
		return replyPayload{}, err
	}

	select {
	case r := <-ch:
		return r, nil
	case <-s.done:
		return replyPayload{}, s.cause()
	case <-ctx.Done():
		return replyPayload{}, ctx.Err()
	}
}

func (s *socket) readLoop() {
	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.shutdown(fmt.Errorf("%w: %w", ErrSocketClosed, err))
			return
		}
		s.dispatch(msg)
	}
}

func (s *socket) dispatch(msg message) {
	switch msg.Event {
	case eventReply:
		s.mu.Lock()
		ch := s.pending[msg.Ref]
		s.mu.Unlock()
		if ch == nil {
			return
		}
		var r replyPayload
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			r = replyPayload{Status: "error", Response: msg.Payload}
		}
		select {
		case ch <- r:
		default:
		}

	case eventError, eventClose:
		s.mu.Lock()
		j := s.channels[msg.Topic]
		delete(s.channels, msg.Topic)
		s.mu.Unlock()
		if j != nil {
			j.conn.End(fmt.Errorf("%w: %s", ErrChannelClosed, msg.Event))
		}

	default:
		op, ok := operationOf(msg.Event)
		if !ok && msg.Event != eventPostgresChanges {
			return
		}
		s.mu.Lock()
		j := s.channels[msg.Topic]
		s.mu.Unlock()
		if j == nil {
			return
		}

		rec, err := decodeChange(msg.Event, msg.Payload)
		if err != nil {
			s.logger.Warn("malformed realtime change",
				logger.Component("realtime.websocket"),
				logger.Topic(msg.Topic),
				logger.Error(err),
			)
			return
		}
		if op, ok = operationOf(rec.Type); !ok {
			return
		}
		j.deliver(channel.Event{Operation: op, AffectedKeys: affectedKeys(rec, s.pk)})
	}
}

func (s *socket) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var waiting chan replyPayload
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		if waiting != nil {
			select {
			case <-waiting:
			default:
				s.shutdown(ErrHeartbeatTimeout)
				return
			}
		}

		waiting = make(chan replyPayload, 1)
		ch := waiting
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if r, err := s.request(ctx, phoenixTopic, eventHeartbeat, struct{}{}); err == nil {
				ch <- r
			}
		}()
	}
}

func (s *socket) cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return ErrSocketClosed
	}
	return s.err
}

// shutdown closes the socket and ends every channel with err. A nil err is
// a clean close after the last channel left.
func (s *socket) shutdown(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		channels := s.channels
		s.channels = make(map[string]*joined)
		s.mu.Unlock()

		close(s.done)

		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()

		if err == nil {
			err = ErrSocketClosed
		}
		for _, j := range channels {
			j.conn.End(err)
		}
		if len(channels) > 0 {
			s.logger.Warn("realtime socket closed",
				logger.Component("realtime.websocket"),
				logger.Count("channels", len(channels)),
				logger.Error(err),
			)
		}
	})
}
