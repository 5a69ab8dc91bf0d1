package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/events"
	"github.com/dkeye/VoiceClient/internal/app/orch"
	"github.com/dkeye/VoiceClient/internal/app/relay"
	"github.com/dkeye/VoiceClient/internal/config"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/storage/calllog"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Calls is the call API exposed to the UI. *orch.Orchestrator satisfies it.
type Calls interface {
	InitiateCall(ctx context.Context, p orch.InitiateParams) error
	AcceptCall(ctx context.Context, callID string, user domain.User) error
	JoinOngoingCall(ctx context.Context, p orch.JoinParams) error
	DeclineCall(ctx context.Context, callID string) error
	EndCall(ctx context.Context)
	AcceptWaitingCall(ctx context.Context, user domain.User) error
	DeclineWaitingCall(ctx context.Context)
	ToggleAudio() bool
	ToggleVideo(ctx context.Context) bool
	ToggleAudioOutput() bool
	StartScreenShare(ctx context.Context) error
	StopScreenShare(ctx context.Context) error
	State() domain.CallState
	Stats() []relay.Stats
	VideoSenders() map[domain.ParticipantID]string
}

type History interface {
	List(ctx context.Context, limit int) ([]calllog.Entry, error)
}

type Clicker interface {
	Click(tag string) bool
}

type Deps struct {
	Calls         Calls
	User          domain.User
	Hub           *events.Hub
	History       History
	Notifications Clicker
	Relays        *relay.Manager
	// Heartbeat is the SSE keep-alive period.
	Heartbeat time.Duration
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 25 * time.Second
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{ctx: ctx, d: d}
	api := r.Group("/api")
	api.Use(RateLimitMiddleware(NewLimiters(cfg.Rate.Limit, cfg.Rate.Burst)))

	call := api.Group("/call")
	call.GET("/state", h.state)
	call.GET("/stats", h.stats)
	call.GET("/events", h.events)
	call.POST("/initiate", h.initiate)
	call.POST("/accept", h.accept)
	call.POST("/join", h.join)
	call.POST("/decline", h.decline)
	call.POST("/end", h.end)
	call.POST("/waiting/accept", h.acceptWaiting)
	call.POST("/waiting/decline", h.declineWaiting)
	call.POST("/toggle/audio", h.toggleAudio)
	call.POST("/toggle/video", h.toggleVideo)
	call.POST("/toggle/output", h.toggleOutput)
	call.POST("/screen/start", h.startScreen)
	call.POST("/screen/stop", h.stopScreen)

	api.GET("/calls/history", h.history)
	api.POST("/notifications/:tag/click", h.clickNotification)

	// Remote media is streamed as raw RTP over a websocket.
	r.GET("/ws/media/:participant/:kind", h.mediaSocket)

	return r
}
