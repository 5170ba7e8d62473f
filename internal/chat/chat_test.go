package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/mastergamma8/Testmsg/internal/presence"
	"github.com/mastergamma8/Testmsg/internal/pubsub"
	"github.com/mastergamma8/Testmsg/internal/store"
	ws "github.com/mastergamma8/Testmsg/internal/websocket"
)

// capturingPublisher records every published message so tests can assert on
// topics, metadata, and decoded envelopes.
type capturingPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (p *capturingPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) all() []pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pubsub.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// byEvent filters captured messages down to one event name, decoding the
// envelope of each.
func (p *capturingPublisher) byEvent(t *testing.T, event string) []pubsub.Message {
	t.Helper()
	var out []pubsub.Message
	for _, msg := range p.all() {
		var env Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &env))
		if env.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func (p *capturingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

type chatFixture struct {
	messages  *store.MessageStore
	users     *store.UserStore
	presence  *presence.Registry
	publisher *capturingPublisher
	router    *Router
	service   *Service
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	messages, err := store.NewMessageStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = messages.Close()
		_ = db.Close()
	})

	users := store.NewUserStore(db)
	reg := presence.NewRegistry()
	pub := &capturingPublisher{}

	return &chatFixture{
		messages:  messages,
		users:     users,
		presence:  reg,
		publisher: pub,
		router:    NewRouter(messages, users, reg, pub),
		service:   NewService(messages, users, reg, pub),
	}
}

// inbound frames an event the way the bridge delivers it to the router.
func inbound(t *testing.T, conn, event string, data any) pubsub.Message {
	t.Helper()
	payload, err := encodeEvent(event, data)
	require.NoError(t, err)
	return pubsub.Message{
		Topic:    ws.TopicEventInbound,
		Payload:  payload,
		Metadata: map[string]string{ws.MetaConnectionID: conn},
	}
}

// disconnected frames a connection-closed notification the way the bridge
// publishes it.
func disconnected(conn string) pubsub.Message {
	return pubsub.Message{
		Topic:    ws.TopicClientDisconnected,
		Metadata: map[string]string{ws.MetaConnectionID: conn},
	}
}

func decodeEnvelope(t *testing.T, payload []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}
