package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchDecoding(t *testing.T) {
	assert := assert.New(t)

	var gotAdd *ReactionEvent
	var gotRole *GuildRoleEvent
	cb := &GatewayCallbacks{
		ReactionAdd: func(evt *ReactionEvent) error {
			gotAdd = evt
			return nil
		},
		GuildRoleSet: func(evt *GuildRoleEvent) error {
			gotRole = evt
			return nil
		},
	}

	err := cb.Dispatch("MESSAGE_REACTION_ADD", json.RawMessage(`{"user_id":"u1","channel_id":"c1","message_id":"m1","guild_id":"g1","member":{"user":{"id":"u1"},"roles":["r1"]},"emoji":{"id":null,"name":"👍"}}`))
	assert.NoError(err)
	if assert.NotNil(gotAdd) {
		assert.Equal("g1", gotAdd.GuildID)
		assert.Nil(gotAdd.Emoji.ID)
		assert.Equal([]string{"r1"}, gotAdd.Member.Roles)
	}

	assert.NoError(cb.Dispatch("GUILD_ROLE_UPDATE", json.RawMessage(`{"guild_id":"g1","role":{"id":"r1","permissions":"8"}}`)))
	if assert.NotNil(gotRole) {
		assert.Equal(PermAdministrator, gotRole.Role.PermissionBits())
	}

	// no callback registered
	assert.NoError(cb.Dispatch("MESSAGE_REACTION_REMOVE", json.RawMessage(`{}`)))
	// unknown events are ignored
	assert.NoError(cb.Dispatch("TYPING_START", json.RawMessage(`garbage`)))
	assert.Error(cb.Dispatch("MESSAGE_REACTION_ADD", json.RawMessage(`garbage`)))
}

type fakeGateway struct {
	t          *testing.T
	identified chan identifyData
	heartbeats chan json.RawMessage
}

func (fg *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(fg.t, "10", r.URL.Query().Get("v"))
	assert.Equal(fg.t, "json", r.URL.Query().Get("encoding"))

	upgrader := websocket.Upgrader{}
	con, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer con.Close()

	seq := func(n int64) *int64 { return &n }
	send := func(p gatewayPayload) bool {
		return con.WriteJSON(p) == nil
	}

	if !send(gatewayPayload{Op: opHello, D: json.RawMessage(`{"heartbeat_interval":50}`)}) {
		return
	}

	var ident gatewayPayload
	if err := con.ReadJSON(&ident); err != nil {
		return
	}
	var id identifyData
	if assert.Equal(fg.t, opIdentify, ident.Op) && assert.NoError(fg.t, json.Unmarshal(ident.D, &id)) {
		fg.identified <- id
	}

	send(gatewayPayload{Op: opDispatch, T: "READY", S: seq(1), D: json.RawMessage(`{"v":10,"user":{"id":"bot"},"guilds":[{"id":"g1","unavailable":true}]}`)})
	send(gatewayPayload{Op: opDispatch, T: "MESSAGE_REACTION_ADD", S: seq(2), D: json.RawMessage(`{"user_id":"u1","channel_id":"c1","message_id":"m1","guild_id":"g1","emoji":{"id":null,"name":"👍"}}`)})

	for {
		var p gatewayPayload
		if err := con.ReadJSON(&p); err != nil {
			return
		}
		if p.Op == opHeartbeat {
			select {
			case fg.heartbeats <- p.D:
			default:
			}
			send(gatewayPayload{Op: opHeartbeatAck})
		}
	}
}

func TestGatewayRun(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fg := &fakeGateway{
		t:          t,
		identified: make(chan identifyData, 1),
		heartbeats: make(chan json.RawMessage, 16),
	}
	srv := httptest.NewServer(fg)
	defer srv.Close()

	ready := make(chan *ReadyEvent, 1)
	reactions := make(chan *ReactionEvent, 1)
	cb := &GatewayCallbacks{
		Ready: func(evt *ReadyEvent) error {
			ready <- evt
			return nil
		},
		ReactionAdd: func(evt *ReactionEvent) error {
			reactions <- evt
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := NewGateway(srv.URL, "sekrit", cb, nil)
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()

	select {
	case id := <-fg.identified:
		assert.Equal("sekrit", id.Token)
		assert.Equal(IntentGuilds|IntentGuildMessages|IntentGuildMessageReactions, id.Intents)
	case <-ctx.Done():
		t.Fatal("never identified")
	}

	select {
	case evt := <-ready:
		assert.Equal("bot", evt.User.ID)
		require.Len(evt.Guilds, 1)
	case <-ctx.Done():
		t.Fatal("no READY")
	}

	select {
	case evt := <-reactions:
		assert.Equal("m1", evt.MessageID)
	case <-ctx.Done():
		t.Fatal("no reaction")
	}

	// heartbeats carry the last sequence number once dispatches have been seen
	sawSeq := false
	for !sawSeq {
		select {
		case d := <-fg.heartbeats:
			sawSeq = string(d) == "2"
		case <-ctx.Done():
			t.Fatal("no heartbeat with sequence")
		}
	}

	cancel()
	err := <-done
	assert.True(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func TestGatewayDialGivesUp(t *testing.T) {
	g := NewGateway("ws://127.0.0.1:1", "sekrit", nil, nil)
	g.MaxDialAttempts = 1
	err := g.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dial failed")
}
