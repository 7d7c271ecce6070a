package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/guildmod/warden/guildconfig"
	"github.com/guildmod/warden/reactmon"
	"github.com/guildmod/warden/reactmon/flagstore"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// registers collectors on the default registry, so there can only be one
var adminMetricsMiddleware = echoprometheus.NewMiddleware("warden_admin")

type adminAPI struct {
	logger   *slog.Logger
	monitor  *reactmon.Monitor
	settings *guildconfig.Store
	flags    flagstore.FlagStore
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (a *adminAPI) echo(token string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(a.logger))
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("warden"))
	e.Use(adminMetricsMiddleware)
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = a.errorHandler

	e.GET("/_health", a.HandleHealthCheck)

	g := e.Group("/guilds", middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
	}))
	g.GET("", a.HandleListGuilds)
	g.GET("/:guild/watch", a.HandleGetWatch)
	g.PUT("/:guild/watch", a.HandleUpdateWatch)
	g.PUT("/:guild/watch/emoji/:emoji", a.HandleWatchEmoji)
	g.DELETE("/:guild/watch/emoji/:emoji", a.HandleUnwatchEmoji)
	g.GET("/:guild/state", a.HandleGetState)
	g.GET("/:guild/members/:user/flags", a.HandleGetFlags)
	g.GET("/:guild/settings", a.HandleGetSettings)
	g.PUT("/:guild/settings", a.HandlePutSettings)
	return e
}

func (a *adminAPI) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		a.logger.Warn("warden-http-internal-error", "err", err)
	}
	if !c.Response().Committed {
		c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
	}
}

// maps monitor errors to HTTP errors; anything else is a 500
func monitorError(err error) error {
	switch {
	case errors.Is(err, reactmon.ErrUnknownGuild):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, reactmon.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func (a *adminAPI) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}

func (a *adminAPI) HandleListGuilds(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"guilds": a.monitor.Guilds()})
}

type WatchConfigBody struct {
	GuildID            string                          `json:"guild_id"`
	Watching           bool                            `json:"watching"`
	MinReactLifespanMs int64                           `json:"min_react_lifespan_ms"`
	MuteDurationS      int64                           `json:"mute_duration_s"`
	MuteRoleID         string                          `json:"mute_role_id"`
	Watchlist          map[string]reactmon.EmojiPolicy `json:"watchlist"`
}

func watchConfigBody(cfg reactmon.WatchConfig) WatchConfigBody {
	return WatchConfigBody{
		GuildID:            cfg.GuildID,
		Watching:           cfg.Watching,
		MinReactLifespanMs: cfg.MinReactLifespan.Milliseconds(),
		MuteDurationS:      int64(cfg.MuteDuration / time.Second),
		MuteRoleID:         cfg.MuteRoleID,
		Watchlist:          cfg.Watchlist,
	}
}

// WatchUpdateBody fields left out of the request are not changed.
type WatchUpdateBody struct {
	Watching           *bool   `json:"watching"`
	MinReactLifespanMs *int64  `json:"min_react_lifespan_ms"`
	MuteDurationS      *int64  `json:"mute_duration_s"`
	MuteRoleID         *string `json:"mute_role_id"`
}

func (a *adminAPI) HandleGetWatch(c echo.Context) error {
	cfg, err := a.monitor.Config(c.Param("guild"))
	if err != nil {
		return monitorError(err)
	}
	return c.JSON(http.StatusOK, watchConfigBody(cfg))
}

func (a *adminAPI) HandleUpdateWatch(c echo.Context) error {
	ctx := c.Request().Context()
	guildID := c.Param("guild")

	var body WatchUpdateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// bounds are checked in request units so the duration conversion cannot overflow
	var update reactmon.WatchUpdate
	if ms := body.MinReactLifespanMs; ms != nil {
		if *ms <= 0 || *ms > reactmon.MaxMinReactLifespan.Milliseconds() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("min_react_lifespan_ms must be between 1 and %d", reactmon.MaxMinReactLifespan.Milliseconds()))
		}
		d := time.Duration(*ms) * time.Millisecond
		update.MinReactLifespan = &d
	}
	if secs := body.MuteDurationS; secs != nil {
		maxSecs := int64(reactmon.MaxMuteDuration / time.Second)
		if *secs <= 0 || *secs > maxSecs {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("mute_duration_s must be between 1 and %d", maxSecs))
		}
		d := time.Duration(*secs) * time.Second
		update.MuteDuration = &d
	}
	update.Watching = body.Watching
	update.MuteRoleID = body.MuteRoleID

	cfg, err := a.monitor.UpdateWatch(ctx, guildID, update)
	if err != nil {
		return monitorError(err)
	}
	adminAPIChanges.WithLabelValues("watch").Inc()
	return c.JSON(http.StatusOK, watchConfigBody(cfg))
}

func emojiParam(c echo.Context) (reactmon.Emoji, error) {
	raw, err := url.PathUnescape(c.Param("emoji"))
	if err != nil {
		return reactmon.Emoji{}, echo.NewHTTPError(http.StatusBadRequest, "invalid emoji encoding")
	}
	emoji, err := reactmon.ParseEmoji(raw)
	if err != nil {
		return reactmon.Emoji{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return emoji, nil
}

func (a *adminAPI) HandleWatchEmoji(c echo.Context) error {
	emoji, err := emojiParam(c)
	if err != nil {
		return err
	}
	var policy reactmon.EmojiPolicy
	if err := c.Bind(&policy); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := a.monitor.WatchEmoji(c.Request().Context(), c.Param("guild"), emoji, policy)
	if err != nil {
		return monitorError(err)
	}
	adminAPIChanges.WithLabelValues("emoji").Inc()
	return c.JSON(http.StatusOK, watchConfigBody(cfg))
}

func (a *adminAPI) HandleUnwatchEmoji(c echo.Context) error {
	emoji, err := emojiParam(c)
	if err != nil {
		return err
	}
	cfg, err := a.monitor.UnwatchEmoji(c.Request().Context(), c.Param("guild"), emoji)
	if err != nil {
		return monitorError(err)
	}
	adminAPIChanges.WithLabelValues("emoji").Inc()
	return c.JSON(http.StatusOK, watchConfigBody(cfg))
}

type StateBody struct {
	Config       WatchConfigBody      `json:"config"`
	RecentEvents int                  `json:"recent_events"`
	RecentAdds   int                  `json:"recent_adds"`
	ActiveMutes  map[string]time.Time `json:"active_mutes"`
}

func (a *adminAPI) HandleGetState(c echo.Context) error {
	snap, err := a.monitor.Snapshot(c.Param("guild"))
	if err != nil {
		return monitorError(err)
	}
	return c.JSON(http.StatusOK, StateBody{
		Config:       watchConfigBody(snap.Config),
		RecentEvents: len(snap.RecentEvents),
		RecentAdds:   len(snap.RecentAdds),
		ActiveMutes:  snap.ActiveMutes,
	})
}

func (a *adminAPI) HandleGetFlags(c echo.Context) error {
	flags, err := a.flags.Get(c.Request().Context(), flagstore.MemberKey(c.Param("guild"), c.Param("user")))
	if err != nil {
		return err
	}
	if flags == nil {
		flags = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"flags": flags})
}

func (a *adminAPI) HandleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, a.settings.Get(c.Param("guild")))
}

func (a *adminAPI) HandlePutSettings(c echo.Context) error {
	var set guildconfig.Settings
	if err := c.Bind(&set); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	set.GuildID = c.Param("guild")
	if err := a.settings.Save(c.Request().Context(), set); err != nil {
		return err
	}
	adminAPIChanges.WithLabelValues("settings").Inc()
	return c.JSON(http.StatusOK, a.settings.Get(set.GuildID))
}
