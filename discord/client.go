// Chat platform glue for Discord: a REST client for the handful of calls the moderation daemon
// makes, a gateway websocket consumer, and a roster of guild roles used for permission checks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/guildmod/warden/discord/cachestore"
	"github.com/guildmod/warden/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

const DefaultAPIHost = "https://discord.com/api/v10"

var (
	ErrNotFound    = errors.New("discord: not found")
	ErrForbidden   = errors.New("discord: forbidden")
	ErrRateLimited = errors.New("discord: rate limited")
)

// APIError is a non-2xx response. errors.Is matches ErrNotFound, ErrForbidden and ErrRateLimited by
// status code.
type APIError struct {
	StatusCode int     `json:"-"`
	Route      string  `json:"-"`
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API %s: HTTP %d (code %d): %s", e.Route, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

type Client struct {
	Host      string
	Token     string
	UserAgent string
	HTTP      *http.Client
	// client side limit, under the global API limit
	Limiter *rate.Limiter
	// optional cache of fetched messages
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

// NewClient returns a client with retries and a request rate limit of perSecond.
func NewClient(host, token string, perSecond float64, logger *slog.Logger) *Client {
	if host == "" {
		host = DefaultAPIHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = 40
	}
	return &Client{
		Host:      host,
		Token:     token,
		UserAgent: fmt.Sprintf("DiscordBot (https://github.com/guildmod/warden, %s)", versioninfo.Short()),
		HTTP:      util.RobustHTTPClient(logger),
		Limiter:   rate.NewLimiter(rate.Limit(perSecond), int(perSecond)/4+1),
		Logger:    logger.With("system", "discord"),
	}
}

// do sends a request and decodes a JSON response body into out (if non-nil). route is the path
// template, used for metrics.
func (c *Client) do(ctx context.Context, method, route, path string, body any, out any, hdr http.Header) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Host+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.Token)
	req.Header.Set("User-Agent", c.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range hdr {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		restCalls.WithLabelValues(route, "error").Inc()
		return fmt.Errorf("discord API %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()
	restCalls.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()
	restDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Route: method + " " + route}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding discord API %s response: %w", route, err)
	}
	return nil
}

func auditReason(reason string) http.Header {
	if reason == "" {
		return nil
	}
	return http.Header{"X-Audit-Log-Reason": []string{reason}}
}

const messageCacheName = "message"

func (c *Client) GetChannelMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	cacheKey := channelID + "/" + messageID
	if c.Cache != nil {
		raw, err := c.Cache.Get(ctx, messageCacheName, cacheKey)
		if err != nil {
			c.Logger.Warn("message cache read failed", "err", err)
		} else if raw != "" {
			var msg Message
			if err := json.Unmarshal([]byte(raw), &msg); err == nil {
				return &msg, nil
			}
		}
	}

	var msg Message
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := c.do(ctx, http.MethodGet, "/channels/{channel}/messages/{message}", path, nil, &msg, nil); err != nil {
		c.forgetIfGone(ctx, channelID, messageID, err)
		return nil, err
	}

	if c.Cache != nil {
		if b, err := json.Marshal(&msg); err == nil {
			if err := c.Cache.Set(ctx, messageCacheName, cacheKey, string(b)); err != nil {
				c.Logger.Warn("message cache write failed", "err", err)
			}
		}
	}
	return &msg, nil
}

// ForgetMessage drops a message from the cache, eg when the gateway reports it deleted.
func (c *Client) ForgetMessage(ctx context.Context, channelID, messageID string) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Purge(ctx, messageCacheName, channelID+"/"+messageID); err != nil {
		c.Logger.Warn("message cache purge failed", "err", err)
	}
}

// a 404 from any message route means the cached copy is stale
func (c *Client) forgetIfGone(ctx context.Context, channelID, messageID string, err error) {
	if errors.Is(err, ErrNotFound) {
		c.ForgetMessage(ctx, channelID, messageID)
	}
}

// DeleteAllReactionsForEmoji removes every reaction with the emoji from a message.
func (c *Client) DeleteAllReactionsForEmoji(ctx context.Context, channelID, messageID string, emoji Emoji) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s", channelID, messageID, emoji.PathSegment())
	err := c.do(ctx, http.MethodDelete, "/channels/{channel}/messages/{message}/reactions/{emoji}", path, nil, nil, nil)
	c.forgetIfGone(ctx, channelID, messageID, err)
	return err
}

func (c *Client) AddGuildMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, http.MethodPut, "/guilds/{guild}/members/{user}/roles/{role}", path, nil, nil, auditReason(reason))
}

func (c *Client) RemoveGuildMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, http.MethodDelete, "/guilds/{guild}/members/{user}/roles/{role}", path, nil, nil, auditReason(reason))
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

type createMessageRequest struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// CreateMessage posts a plain text message. Mentions in the content render but never ping.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (*Message, error) {
	body := createMessageRequest{
		Content:         content,
		AllowedMentions: allowedMentions{Parse: []string{}},
	}
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.do(ctx, http.MethodPost, "/channels/{channel}/messages", path, body, &msg, nil); err != nil {
		return nil, err
	}
	return &msg, nil
}
