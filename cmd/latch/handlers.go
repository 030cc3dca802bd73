package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/engine"
	"github.com/latchbot/latch/automod/forum"

	"github.com/labstack/echo/v4"
)

// Messages shown to moderators after admin actions.
const (
	msgForceLockOK     = "Post locked successfully!"
	msgForceLockFailed = "Error locking post. Please try again."
	msgNoActions       = "No actions logged yet."
	msgActionLogOK     = "Action log created as a post!"
	msgActionLogFailed = "Error retrieving action log."
	msgHelpOK          = "Help guide created!"
	msgHelpFailed      = "Error creating help guide."
)

// upper bound on processing one webhook event, detached from the request
const eventTimeout = 2 * time.Minute

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Message string `json:"msg"`
}

// Result of an admin action, carrying the moderator-facing message.
type ToastResponse struct {
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Message: "ok", Daemon: "latch"})
}

// Accepts either a full comment event, or just {"id": "t1_..."} in which case
// the comment is fetched first.
func (srv *Server) HandleCommentEvent(c echo.Context) error {
	// workflow steps must not be cut short by the caller hanging up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), eventTimeout)
	defer cancel()

	var ev forum.CommentEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid comment event JSON")
	}
	if ev.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "comment event requires an id")
	}

	var err error
	if ev.PostID == "" || ev.AuthorID == "" {
		err = srv.engine.ProcessCommentID(ctx, ev.ID)
	} else {
		err = srv.engine.ProcessComment(ctx, ev)
	}
	if errors.Is(err, forum.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Message: "processed", Daemon: "latch"})
}

func (srv *Server) HandleForceLock(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), eventTimeout)
	defer cancel()
	postID := c.Param("postID")
	moderatorID := c.QueryParam("moderator")
	if moderatorID == "" {
		moderatorID = c.FormValue("moderator")
	}
	if moderatorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "moderator parameter is required")
	}

	if err := srv.engine.ForceLock(ctx, postID, moderatorID); err != nil {
		srv.logger.Error("error force locking post", "post", postID, "err", err)
		code := http.StatusInternalServerError
		if errors.Is(err, forum.ErrNotFound) {
			code = http.StatusNotFound
		}
		return c.JSON(code, ToastResponse{Message: msgForceLockFailed})
	}
	return c.JSON(http.StatusOK, ToastResponse{Message: msgForceLockOK})
}

func (srv *Server) HandleListActionLog(c echo.Context) error {
	ctx := c.Request().Context()
	limit := getLimit(c, 1, 10, actionlog.Capacity)
	entries, err := srv.engine.ActionLog.List(ctx, c.Param("scopeID"), limit)
	if err != nil {
		srv.logger.Error("error reading action log", "scope", c.Param("scopeID"), "err", err)
		return c.JSON(http.StatusInternalServerError, ToastResponse{Message: msgActionLogFailed})
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

func scopeParams(c echo.Context) (engine.Scope, error) {
	scope := engine.Scope{
		ID:   c.Param("scopeID"),
		Name: c.QueryParam("subreddit"),
	}
	if scope.Name == "" {
		return scope, echo.NewHTTPError(http.StatusBadRequest, "subreddit parameter is required")
	}
	return scope, nil
}

func (srv *Server) HandlePublishActionLog(c echo.Context) error {
	scope, err := scopeParams(c)
	if err != nil {
		return err
	}
	url, err := srv.engine.PublishActionLog(c.Request().Context(), scope)
	if errors.Is(err, engine.ErrNoActions) {
		return c.JSON(http.StatusOK, ToastResponse{Message: msgNoActions})
	}
	if err != nil {
		srv.logger.Error("error viewing action log", "scope", scope.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, ToastResponse{Message: msgActionLogFailed})
	}
	return c.JSON(http.StatusOK, ToastResponse{Message: msgActionLogOK, URL: url})
}

func (srv *Server) HandlePublishHelp(c echo.Context) error {
	scope, err := scopeParams(c)
	if err != nil {
		return err
	}
	url, err := srv.engine.PublishHelp(c.Request().Context(), scope)
	if err != nil {
		srv.logger.Error("error publishing help", "scope", scope.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, ToastResponse{Message: msgHelpFailed})
	}
	return c.JSON(http.StatusOK, ToastResponse{Message: msgHelpOK, URL: url})
}

func (srv *Server) HandleGetSettings(c echo.Context) error {
	s, err := srv.settings.Get(c.Request().Context(), c.Param("scopeID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

// PUT body is a JSON object of field name to string value, eg
// {"rateLimitMinutes": "5"}. Only the given fields change.
func (srv *Server) HandleUpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()
	scopeID := c.Param("scopeID")
	// BindBody, since a map destination would also collect path params
	var fields map[string]string
	if err := (&echo.DefaultBinder{}).BindBody(c, &fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected a JSON object of string fields")
	}
	if len(fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no settings fields given")
	}

	// validate against the current settings before storing anything
	current, err := srv.settings.Get(ctx, scopeID)
	if err != nil {
		return err
	}
	if _, err := current.Apply(fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := srv.settings.Update(ctx, scopeID, fields); err != nil {
		return err
	}
	srv.logger.Info("settings updated", "scope", scopeID, "fields", len(fields))

	updated, err := srv.settings.Get(ctx, scopeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (srv *Server) HandleStats(c echo.Context) error {
	stats, err := srv.engine.Stats(c.Request().Context(), c.Param("scopeID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (srv *Server) HandleResetRateLimit(c echo.Context) error {
	actorID := c.Param("actorID")
	if err := srv.engine.Limiter.Reset(c.Request().Context(), actorID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func getLimit(c echo.Context, min, defaultLim, max int) int {
	limstr := c.QueryParam("limit")
	if limstr == "" {
		return defaultLim
	}
	lvx, err := strconv.ParseInt(limstr, 10, 64)
	if err != nil {
		return defaultLim
	}
	lv := int(lvx)
	if lv < min {
		return min
	}
	if lv > max {
		return max
	}
	return lv
}
