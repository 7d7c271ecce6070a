package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guildmod/warden/util"

	"github.com/carlmjohnson/versioninfo"
	"github.com/gorilla/websocket"
)

const DefaultGatewayHost = "wss://gateway.discord.gg"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

var (
	errReconnect      = errors.New("gateway requested reconnect")
	errInvalidSession = errors.New("gateway invalidated session")
	errZombie         = errors.New("gateway heartbeat not acknowledged")
)

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    uint64             `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

// GatewayCallbacks receive dispatch events. Nil callbacks are skipped. Callbacks run on the
// connection's read loop, so they should not block for long.
type GatewayCallbacks struct {
	Ready           func(evt *ReadyEvent) error
	GuildCreate     func(evt *Guild) error
	GuildUpdate     func(evt *Guild) error
	GuildDelete     func(evt *UnavailableGuild) error
	GuildRoleSet    func(evt *GuildRoleEvent) error
	GuildRoleDelete func(evt *GuildRoleDeleteEvent) error
	MessageDelete   func(evt *MessageDeleteEvent) error
	MessageBulk     func(evt *MessageDeleteBulkEvent) error
	ReactionAdd     func(evt *ReactionEvent) error
	ReactionRemove  func(evt *ReactionEvent) error
}

func decodeAndCall[T any](raw json.RawMessage, fn func(*T) error) error {
	if fn == nil {
		return nil
	}
	var evt T
	if err := json.Unmarshal(raw, &evt); err != nil {
		return err
	}
	return fn(&evt)
}

// Dispatch decodes a dispatch payload by event name and calls the matching callback. Unknown event
// names are ignored.
func (gc *GatewayCallbacks) Dispatch(name string, raw json.RawMessage) error {
	switch name {
	case "READY":
		return decodeAndCall(raw, gc.Ready)
	case "GUILD_CREATE":
		return decodeAndCall(raw, gc.GuildCreate)
	case "GUILD_UPDATE":
		return decodeAndCall(raw, gc.GuildUpdate)
	case "GUILD_DELETE":
		return decodeAndCall(raw, gc.GuildDelete)
	case "GUILD_ROLE_CREATE", "GUILD_ROLE_UPDATE":
		return decodeAndCall(raw, gc.GuildRoleSet)
	case "GUILD_ROLE_DELETE":
		return decodeAndCall(raw, gc.GuildRoleDelete)
	case "MESSAGE_DELETE":
		return decodeAndCall(raw, gc.MessageDelete)
	case "MESSAGE_DELETE_BULK":
		return decodeAndCall(raw, gc.MessageBulk)
	case "MESSAGE_REACTION_ADD":
		return decodeAndCall(raw, gc.ReactionAdd)
	case "MESSAGE_REACTION_REMOVE":
		return decodeAndCall(raw, gc.ReactionRemove)
	default:
		return nil
	}
}

type Gateway struct {
	Host      string
	Token     string
	Intents   uint64
	Callbacks *GatewayCallbacks
	Logger    *slog.Logger
	Dialer    *websocket.Dialer

	// gives up after this many consecutive failed dials; zero means never
	MaxDialAttempts int
}

func NewGateway(host, token string, callbacks *GatewayCallbacks, logger *slog.Logger) *Gateway {
	if host == "" {
		host = DefaultGatewayHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		Host:      host,
		Token:     token,
		Intents:   IntentGuilds | IntentGuildMessages | IntentGuildMessageReactions,
		Callbacks: callbacks,
		Logger:    logger.With("system", "gateway"),
		Dialer: &websocket.Dialer{
			HandshakeTimeout: time.Second * 5,
		},
	}
}

// Run connects and consumes the gateway until the context is cancelled, redialing with backoff
// whenever the connection drops.
func (g *Gateway) Run(ctx context.Context) error {
	u, err := util.GatewayURL(g.Host, url.Values{"v": []string{"10"}, "encoding": []string{"json"}})
	if err != nil {
		return fmt.Errorf("invalid gateway host: %w", err)
	}

	var backoff int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		con, _, err := g.Dialer.DialContext(ctx, u, http.Header{
			"User-Agent": []string{fmt.Sprintf("warden/%s", versioninfo.Short())},
		})
		if err != nil {
			backoff++
			if g.MaxDialAttempts > 0 && backoff >= g.MaxDialAttempts {
				return fmt.Errorf("gateway dial failed %d times: %w", backoff, err)
			}
			g.Logger.Warn("dialing gateway failed", "err", err, "backoff", backoff)
			gatewayReconnects.Inc()
			if err := sleepCtx(ctx, sleepForBackoff(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = 0

		g.Logger.Info("connected to gateway", "url", u)
		err = g.handleConnection(ctx, con)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.Logger.Warn("gateway connection closed", "err", err)
		gatewayReconnects.Inc()
		if err := sleepCtx(ctx, sleepForBackoff(1)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sleepForBackoff(b int) time.Duration {
	if b == 0 {
		return 0
	}

	if b < 10 {
		return (time.Duration(b) * 2 * time.Second) + (time.Millisecond * time.Duration(rand.IntN(1000)))
	}

	return time.Second * 30
}

// gatewayConn serializes writes; gorilla allows one concurrent writer.
type gatewayConn struct {
	con     *websocket.Conn
	writeLk sync.Mutex
}

func (c *gatewayConn) send(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	c.writeLk.Lock()
	defer c.writeLk.Unlock()
	if err := c.con.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.con.WriteJSON(gatewayPayload{Op: op, D: raw})
}

func (g *Gateway) handleConnection(ctx context.Context, con *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	conn := &gatewayConn{con: con}
	defer con.Close()

	// unblock the read loop on shutdown
	go func() {
		<-ctx.Done()
		con.Close()
	}()

	var hello gatewayPayload
	if err := con.ReadJSON(&hello); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}
	if hd.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval: %d", hd.HeartbeatInterval)
	}

	err := conn.send(opIdentify, identifyData{
		Token:   g.Token,
		Intents: g.Intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "warden",
			Device:  "warden",
		},
	})
	if err != nil {
		return fmt.Errorf("identifying: %w", err)
	}

	var lastSeq atomic.Int64
	lastSeq.Store(-1)
	var acked atomic.Bool
	acked.Store(true)
	hbErr := make(chan error, 1)

	go func() {
		t := time.NewTicker(time.Duration(hd.HeartbeatInterval) * time.Millisecond)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				if !acked.Swap(false) {
					hbErr <- errZombie
					con.Close()
					return
				}
				var d any
				if s := lastSeq.Load(); s >= 0 {
					d = s
				}
				if err := conn.send(opHeartbeat, d); err != nil {
					g.Logger.Warn("failed to send heartbeat", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var p gatewayPayload
		if err := con.ReadJSON(&p); err != nil {
			select {
			case hbe := <-hbErr:
				return hbe
			default:
			}
			return err
		}
		if p.S != nil {
			lastSeq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			gatewayDispatches.WithLabelValues(p.T).Inc()
			if g.Callbacks != nil {
				if err := g.Callbacks.Dispatch(p.T, p.D); err != nil {
					g.Logger.Error("failed handling gateway event", "type", p.T, "err", err)
				}
			}
		case opHeartbeat:
			var d any
			if s := lastSeq.Load(); s >= 0 {
				d = s
			}
			if err := conn.send(opHeartbeat, d); err != nil {
				return err
			}
		case opHeartbeatAck:
			acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			return errInvalidSession
		default:
			g.Logger.Debug("ignoring gateway op", "op", p.Op)
		}
	}
}
