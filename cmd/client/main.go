package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/adapters/backend"
	"github.com/dkeye/VoiceClient/internal/adapters/device"
	router "github.com/dkeye/VoiceClient/internal/adapters/http"
	"github.com/dkeye/VoiceClient/internal/adapters/rtc"
	sigclient "github.com/dkeye/VoiceClient/internal/adapters/signal"
	"github.com/dkeye/VoiceClient/internal/adapters/sound"
	"github.com/dkeye/VoiceClient/internal/app/events"
	"github.com/dkeye/VoiceClient/internal/app/media"
	"github.com/dkeye/VoiceClient/internal/app/orch"
	"github.com/dkeye/VoiceClient/internal/app/relay"
	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/config"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/storage/calllog"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)
	if err := config.Watch(nil); err != nil {
		log.Warn().Err(err).Msg("config watch disabled")
	}

	user, err := domain.NewUser(cfg.User.ID, cfg.User.Name, cfg.User.Avatar)
	if err != nil {
		log.Fatal().Err(err).Msg("user.id and user.name must be configured")
	}

	if err := run(ctx, cfg, *user); err != nil {
		log.Fatal().Err(err).Msg("client stopped")
	}
	log.Info().Msg("Client exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, user domain.User) error {
	devices, err := device.New(cfg.Media.VideoBitRate)
	if err != nil {
		return fmt.Errorf("media devices: %w", err)
	}
	peers, err := rtc.NewFactory(rtc.Options{
		Codecs:     devices.Codecs(),
		ICEServers: iceServers(cfg.ICEServers),
	})
	if err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}
	api, err := backend.New(backend.Options{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		return err
	}

	sig := sigclient.NewClient(sigclient.Options{
		URL:          cfg.Signal.URL,
		Token:        cfg.Backend.Token,
		PingPeriod:   cfg.Signal.PingPeriod,
		WriteTimeout: cfg.Signal.WriteTimeout,
		ReadLimit:    cfg.Signal.ReadLimit,
		SendBuffer:   cfg.Signal.SendBuffer,
	})
	defer sig.Close()

	history, err := calllog.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	hub := events.NewHub(64, events.DropThenKick{Limit: 64})
	notifier := sound.New(hub)
	relays := relay.NewManager()
	st := store.New()
	st.OnStateChange(history.Observe)

	acq := media.NewAcquirer(devices, media.Options{
		Audio: core.AudioConstraints{
			EchoCancellation: cfg.Media.EchoCancellation,
			NoiseSuppression: cfg.Media.NoiseSuppression,
			AutoGainControl:  cfg.Media.AutoGainControl,
		},
		Video: core.VideoConstraints{
			Width:     cfg.Media.Width,
			Height:    cfg.Media.Height,
			FrameRate: cfg.Media.FrameRate,
		},
		Timeout: cfg.Call.MediaTimeout,
	})

	calls := orch.New(orch.Config{
		RingTimeout:        cfg.Call.RingTimeout,
		RenegotiateTimeout: cfg.Call.RenegotiateTimeout,
		BackendTimeout:     cfg.Backend.Timeout,
		Self:               user.ID,
	}, orch.Deps{
		Store:    st,
		Media:    acq,
		Peers:    peers,
		Signal:   sig,
		Backend:  api,
		Notifier: notifier,
		Relays:   relays,
	})
	stopWatch := hub.Watch(calls)
	defer stopWatch()

	if err := sig.Connect(ctx); err != nil {
		return fmt.Errorf("signaling: %w", err)
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Calls:         calls,
		User:          user,
		Hub:           hub,
		History:       history,
		Notifications: notifier,
		Relays:        relays,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Str("user", user.ID.String()).Msg("Voice client started")
	return serve(ctx, srv, calls)
}

// sessionCloser ends the live call on shutdown.
type sessionCloser interface {
	Close(ctx context.Context)
}

// serve runs srv until ctx ends or the listener fails. Either way the call
// session is closed before returning.
func serve(ctx context.Context, srv *http.Server, calls sessionCloser) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("Server stopped")
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	calls.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	return serveErr
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
