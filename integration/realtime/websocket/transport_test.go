package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/integration/realtime/websocket"
)

type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// phoenixServer is a minimal realtime server. It accepts joins unless the
// table is listed in reject and can push changes to joined topics.
type phoenixServer struct {
	t      *testing.T
	srv    *httptest.Server
	reject map[string]bool

	mu      sync.Mutex
	conns   []*gws.Conn
	joins   []frame
	leaves  []string
	query   string
	silent  bool
	writeMu sync.Mutex
}

func newPhoenixServer(t *testing.T) *phoenixServer {
	t.Helper()
	ps := &phoenixServer{t: t, reject: make(map[string]bool)}
	upgrader := gws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.query = r.URL.RawQuery
		ps.mu.Unlock()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			ps.handle(conn, f)
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *phoenixServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http") + "/realtime/v1/websocket"
}

func (ps *phoenixServer) write(conn *gws.Conn, v any) {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	_ = conn.WriteJSON(v)
}

func (ps *phoenixServer) handle(conn *gws.Conn, f frame) {
	ps.mu.Lock()
	silent := ps.silent
	reject := make([]string, 0, len(ps.reject))
	for table := range ps.reject {
		reject = append(reject, table)
	}
	ps.mu.Unlock()

	switch f.Event {
	case "phx_join":
		ps.mu.Lock()
		ps.joins = append(ps.joins, f)
		ps.mu.Unlock()

		status := "ok"
		for _, table := range reject {
			if strings.Contains(f.Topic, ":"+table) {
				status = "error"
			}
		}
		ps.write(conn, map[string]any{
			"topic": f.Topic, "event": "phx_reply", "ref": f.Ref,
			"payload": map[string]any{"status": status, "response": map[string]any{}},
		})
	case "phx_leave":
		ps.mu.Lock()
		ps.leaves = append(ps.leaves, f.Topic)
		ps.mu.Unlock()
	case "heartbeat":
		if silent {
			return
		}
		ps.write(conn, map[string]any{
			"topic": "phoenix", "event": "phx_reply", "ref": f.Ref,
			"payload": map[string]any{"status": "ok", "response": map[string]any{}},
		})
	}
}

func (ps *phoenixServer) broadcast(v any) {
	ps.mu.Lock()
	conns := append([]*gws.Conn(nil), ps.conns...)
	ps.mu.Unlock()
	for _, c := range conns {
		ps.write(c, v)
	}
}

func (ps *phoenixServer) dropAll() {
	ps.mu.Lock()
	conns := append([]*gws.Conn(nil), ps.conns...)
	ps.conns = nil
	ps.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (ps *phoenixServer) joinFrames() []frame {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]frame(nil), ps.joins...)
}

func (ps *phoenixServer) leaveTopics() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]string(nil), ps.leaves...)
}

func (ps *phoenixServer) connCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.conns)
}

type events struct {
	mu  sync.Mutex
	all []channel.Event
}

func (e *events) deliver(ev channel.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) list() []channel.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]channel.Event(nil), e.all...)
}

func newTransport(t *testing.T, ps *phoenixServer, cfg websocket.Config, opts ...websocket.Option) *websocket.Transport {
	t.Helper()
	cfg.URL = ps.url()
	tr, err := websocket.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestNew_RequiresURL(t *testing.T) {
	t.Parallel()
	_, err := websocket.New(websocket.Config{})
	assert.ErrorIs(t, err, websocket.ErrEmptyURL)
}

func TestTransport_JoinSendsPostgresChangesConfig(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	tr := newTransport(t, ps, websocket.Config{APIKey: "anon"},
		websocket.WithAccessToken(func() string { return "user-jwt" }))

	sub, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments", Filter: "id=eq.42"}, func(channel.Event) {})
	require.NoError(t, err)
	defer sub.Close()

	joins := ps.joinFrames()
	require.Len(t, joins, 1)
	assert.Equal(t, "realtime:public:shipments:id=eq.42", joins[0].Topic)

	var payload struct {
		Config struct {
			PostgresChanges []map[string]string `json:"postgres_changes"`
		} `json:"config"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(joins[0].Payload, &payload))
	assert.Equal(t, "user-jwt", payload.AccessToken)
	require.Len(t, payload.Config.PostgresChanges, 1)
	assert.Equal(t, map[string]string{
		"event": "*", "schema": "public", "table": "shipments", "filter": "id=eq.42",
	}, payload.Config.PostgresChanges[0])

	ps.mu.Lock()
	query := ps.query
	ps.mu.Unlock()
	assert.Contains(t, query, "apikey=anon")
	assert.Contains(t, query, "vsn=1.0.0")
}

func TestTransport_DeliversChanges(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	tr := newTransport(t, ps, websocket.Config{})

	var got events
	sub, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, got.deliver)
	require.NoError(t, err)
	defer sub.Close()

	ps.broadcast(map[string]any{
		"topic": "realtime:public:shipments", "event": "postgres_changes",
		"payload": map[string]any{"data": map[string]any{
			"type": "UPDATE", "table": "shipments", "record": map[string]any{"id": 42},
		}},
	})
	ps.broadcast(map[string]any{
		"topic": "realtime:public:shipments", "event": "DELETE",
		"payload": map[string]any{"type": "DELETE", "old_record": map[string]any{"id": "7"}},
	})
	ps.broadcast(map[string]any{
		"topic": "realtime:public:users", "event": "INSERT",
		"payload": map[string]any{"type": "INSERT", "record": map[string]any{"id": 1}},
	})

	require.Eventually(t, func() bool { return len(got.list()) == 2 }, 2*time.Second, 5*time.Millisecond)
	list := got.list()
	assert.Equal(t, channel.OpUpdate, list[0].Operation)
	assert.Equal(t, []string{"42"}, list[0].AffectedKeys)
	assert.Equal(t, channel.OpDelete, list[1].Operation)
	assert.Equal(t, []string{"7"}, list[1].AffectedKeys)
}

func TestTransport_SharesSocketAndClosesWhenIdle(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	tr := newTransport(t, ps, websocket.Config{})

	a, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	require.NoError(t, err)
	b, err := tr.Subscribe(context.Background(), channel.Topic{Table: "users"}, func(channel.Event) {})
	require.NoError(t, err)
	assert.Equal(t, 1, ps.connCount())

	_, err = tr.Subscribe(context.Background(), channel.Topic{Table: "users"}, func(channel.Event) {})
	assert.ErrorIs(t, err, websocket.ErrDuplicateTopic)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return len(ps.leaveTopics()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "realtime:public:shipments", ps.leaveTopics()[0])

	require.NoError(t, b.Close())
	<-b.Done()
	assert.NoError(t, b.Err())
}

func TestTransport_RejectedJoin(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	ps.mu.Lock()
	ps.reject["secrets"] = true
	ps.mu.Unlock()
	tr := newTransport(t, ps, websocket.Config{})

	_, err := tr.Subscribe(context.Background(), channel.Topic{Table: "secrets"}, func(channel.Event) {})
	assert.ErrorIs(t, err, websocket.ErrJoinRejected)
}

func TestTransport_SocketDropEndsSubscriptions(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	tr := newTransport(t, ps, websocket.Config{})

	sub, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	require.NoError(t, err)

	ps.dropAll()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ended")
	}
	assert.ErrorIs(t, sub.Err(), websocket.ErrSocketClosed)

	again, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	require.NoError(t, err)
	defer again.Close()
	assert.Len(t, ps.joinFrames(), 2)
}

func TestTransport_ServerCloseEndsChannel(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	tr := newTransport(t, ps, websocket.Config{})

	sub, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	require.NoError(t, err)

	ps.broadcast(map[string]any{"topic": "realtime:public:shipments", "event": "phx_error", "payload": map[string]any{}})

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ended")
	}
	assert.ErrorIs(t, sub.Err(), websocket.ErrChannelClosed)
}

func TestTransport_HeartbeatTimeout(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	ps.mu.Lock()
	ps.silent = true
	ps.mu.Unlock()
	tr := newTransport(t, ps, websocket.Config{Heartbeat: 20 * time.Millisecond})

	sub, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ended")
	}
	assert.ErrorIs(t, sub.Err(), websocket.ErrHeartbeatTimeout)
}

func TestTransport_Closed(t *testing.T) {
	t.Parallel()

	ps := newPhoenixServer(t)
	tr := newTransport(t, ps, websocket.Config{})

	sub, err := tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	<-sub.Done()
	assert.ErrorIs(t, sub.Err(), websocket.ErrTransportClosed)

	_, err = tr.Subscribe(context.Background(), channel.Topic{Table: "shipments"}, func(channel.Event) {})
	assert.ErrorIs(t, err, websocket.ErrTransportClosed)
}
