package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/events"
	"github.com/dkeye/VoiceClient/internal/app/media"
	"github.com/dkeye/VoiceClient/internal/app/orch"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	// ctx outlives single requests; call setup must not be cut short by a
	// browser navigating away.
	ctx context.Context
	d   Deps
}

type callRequest struct {
	CallID string `json:"callId"`
}

type initiateRequest struct {
	ChatID   string          `json:"chatId"`
	ChatName string          `json:"chatName"`
	ChatType domain.ChatType `json:"chatType"`
	CallType domain.CallType `json:"callType"`
}

type joinRequest struct {
	CallID string `json:"callId"`
	initiateRequest
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *handlers) params(req initiateRequest) orch.InitiateParams {
	return orch.InitiateParams{
		ChatID:   req.ChatID,
		ChatName: req.ChatName,
		ChatType: req.ChatType,
		CallType: req.CallType,
		User:     h.d.User,
	}
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Calls.State())
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tracks":  h.d.Calls.Stats(),
		"senders": h.d.Calls.VideoSenders(),
	})
}

func (h *handlers) initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	h.reply(c, h.d.Calls.InitiateCall(h.ctx, h.params(req)))
}

func (h *handlers) accept(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CallID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing callId"})
		return
	}
	h.reply(c, h.d.Calls.AcceptCall(h.ctx, req.CallID, h.d.User))
}

func (h *handlers) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	h.reply(c, h.d.Calls.JoinOngoingCall(h.ctx, orch.JoinParams{CallID: req.CallID, InitiateParams: h.params(req.initiateRequest)}))
}

func (h *handlers) decline(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CallID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing callId"})
		return
	}
	h.reply(c, h.d.Calls.DeclineCall(h.ctx, req.CallID))
}

func (h *handlers) end(c *gin.Context) {
	h.d.Calls.EndCall(h.ctx)
	h.reply(c, nil)
}

func (h *handlers) acceptWaiting(c *gin.Context) {
	h.reply(c, h.d.Calls.AcceptWaitingCall(h.ctx, h.d.User))
}

func (h *handlers) declineWaiting(c *gin.Context) {
	h.d.Calls.DeclineWaitingCall(h.ctx)
	h.reply(c, nil)
}

func (h *handlers) toggleAudio(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.d.Calls.ToggleAudio()})
}

func (h *handlers) toggleVideo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.d.Calls.ToggleVideo(h.ctx)})
}

func (h *handlers) toggleOutput(c *gin.Context) {
	h.d.Calls.ToggleAudioOutput()
	c.JSON(http.StatusOK, gin.H{"mode": h.d.Calls.State().AudioOutput})
}

func (h *handlers) startScreen(c *gin.Context) {
	h.reply(c, h.d.Calls.StartScreenShare(h.ctx))
}

func (h *handlers) stopScreen(c *gin.Context) {
	h.reply(c, h.d.Calls.StopScreenShare(h.ctx))
}

func (h *handlers) history(c *gin.Context) {
	if h.d.History == nil {
		c.JSON(http.StatusOK, gin.H{"calls": []any{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	calls, err := h.d.History.List(c.Request.Context(), limit)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (h *handlers) clickNotification(c *gin.Context) {
	if h.d.Notifications == nil || !h.d.Notifications.Click(c.Param("tag")) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

// events streams hub events as server-sent events until the client leaves.
func (h *handlers) events(c *gin.Context) {
	client := h.d.Hub.Subscribe(c.GetString(clientTokenKey))
	defer h.d.Hub.Unsubscribe(client)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(events.TypeState, h.d.Calls.State())
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.d.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = c.Writer.WriteString(": ping\n\n")
			c.Writer.Flush()
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			c.SSEvent(ev.Type, ev.Data)
			c.Writer.Flush()
		}
	}
}

func (h *handlers) reply(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, h.d.Calls.State())
		return
	}
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if me := asMediaError(err); me != nil {
		resp.Kind, resp.Message = string(me.Kind), me.UserMessage()
	}
	log.Warn().Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", status).Err(err).Msg("call request failed")
	c.JSON(status, resp)
}

func asMediaError(err error) *media.Error {
	var me *media.Error
	if errors.As(err, &me) {
		return me
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyInCall),
		errors.Is(err, domain.ErrNotRinging),
		errors.Is(err, domain.ErrCallMismatch),
		errors.Is(err, domain.ErrNoWaitingCall),
		errors.Is(err, domain.ErrNotInCall),
		errors.Is(err, domain.ErrAlreadySharing),
		errors.Is(err, domain.ErrNotSharing):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDeviceNotFound),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrDeviceBusy),
		errors.Is(err, domain.ErrConstraintsUnsatisfiable),
		errors.Is(err, domain.ErrMediaUnknown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNoCallID), errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
