// Package orch sequences media, backend calls and signaling into the call
// session state machine.
package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/media"
	"github.com/dkeye/VoiceClient/internal/app/peers"
	"github.com/dkeye/VoiceClient/internal/app/relay"
	"github.com/dkeye/VoiceClient/internal/app/signaling"
	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MediaSource is the capture side used by the orchestrator.
// *media.Acquirer satisfies it.
type MediaSource interface {
	Acquire(ctx context.Context, wantVideo bool) (media.Result, error)
	AcquireDisplay(ctx context.Context) (core.MediaStream, error)
}

type Config struct {
	// RingTimeout bounds unanswered outgoing, incoming and waiting calls.
	RingTimeout time.Duration
	// RenegotiateTimeout bounds one batch of video sender replacements.
	RenegotiateTimeout time.Duration
	// BackendTimeout bounds each REST call.
	BackendTimeout time.Duration
	// Self is the local user id, used to ignore calls placed by this user
	// before any call has set the current user.
	Self domain.ParticipantID
}

func DefaultConfig() Config {
	return Config{
		RingTimeout:        20 * time.Second,
		RenegotiateTimeout: 10 * time.Second,
		BackendTimeout:     10 * time.Second,
	}
}

type Deps struct {
	Store    *store.Store
	Media    MediaSource
	Peers    core.PeerFactory
	Signal   core.SignalConnection
	Backend  core.CallBackend
	Notifier core.Notifier
	Relays   *relay.Manager
}

type timerSlot struct {
	t   *time.Timer
	gen uint64
}

// Orchestrator is the public call API. Every method, inbound event, timer
// and remote track callback runs under one lock and completes before the
// next one starts.
type Orchestrator struct {
	mu  sync.Mutex
	cfg Config

	store    *store.Store
	media    MediaSource
	pool     *peers.Pool
	bridge   *signaling.Bridge
	backend  core.CallBackend
	notifier core.Notifier
	relays   *relay.Manager

	user domain.User

	gen        uint64
	ringTimer  timerSlot
	waitTimer  timerSlot
	ringUntil  time.Time
	lifecycle  context.Context
	stopRelays context.CancelFunc
}

func New(cfg Config, d Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = def.RingTimeout
	}
	if cfg.RenegotiateTimeout <= 0 {
		cfg.RenegotiateTimeout = def.RenegotiateTimeout
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = def.BackendTimeout
	}
	if d.Relays == nil {
		d.Relays = relay.NewManager()
	}
	if d.Store == nil {
		d.Store = store.New()
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    d.Store,
		media:    d.Media,
		backend:  d.Backend,
		notifier: d.Notifier,
		relays:   d.Relays,
	}
	o.lifecycle, o.stopRelays = context.WithCancel(context.Background())
	o.pool = peers.New(d.Peers, peers.Hooks{
		OnCandidate: o.sendCandidate,
		OnTrack:     o.onRemoteTrack,
	})
	o.bridge = signaling.New(d.Signal, d.Store)
	o.bridge.Bind(o)
	return o
}

// State returns a snapshot of the session.
func (o *Orchestrator) State() domain.CallState { return o.store.Snapshot() }

// OnStateChange subscribes fn to session snapshots. fn runs while the
// orchestrator is busy and must not call back into it synchronously.
func (o *Orchestrator) OnStateChange(fn store.StateFunc) func() {
	return o.store.OnStateChange(fn)
}

// OnParticipantUpdate subscribes fn to roster snapshots. Same rules as
// OnStateChange.
func (o *Orchestrator) OnParticipantUpdate(fn store.ParticipantsFunc) func() {
	return o.store.OnParticipantUpdate(fn)
}

// Stats reports counters for every remote track of the call.
func (o *Orchestrator) Stats() []relay.Stats { return o.relays.Stats() }

// VideoSenders maps each connected participant to the id of the video track
// sent to it, "" when none.
func (o *Orchestrator) VideoSenders() map[domain.ParticipantID]string {
	return o.pool.VideoTrackIDs()
}

// Close ends any call locally and sends the shutdown beacon.
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.store.Snapshot()
	if st.Status != domain.StatusIdle || st.Waiting != nil {
		o.teardownLocked("shutdown")
		if st.CallID != "" {
			o.backend.EndCallBeacon(st.CallID)
		}
	}
	o.stopRelays()
	log.Info().Str("module", "app.orch").Msg("orchestrator closed")
}

func (o *Orchestrator) logger(callID string) zerolog.Logger {
	return log.With().Str("module", "app.orch").Str("call_id", callID).Logger()
}

func (o *Orchestrator) backendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.BackendTimeout)
}

// arm starts a timer in slot; fire runs under the orchestrator lock only if
// the slot was not re-armed or disarmed meanwhile.
func (o *Orchestrator) arm(slot *timerSlot, d time.Duration, fire func()) {
	o.disarm(slot)
	o.gen++
	gen := o.gen
	slot.gen = gen
	slot.t = time.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if slot.gen != gen {
			return
		}
		slot.t, slot.gen = nil, 0
		fire()
	})
}

func (o *Orchestrator) disarm(slot *timerSlot) {
	if slot.t != nil {
		slot.t.Stop()
	}
	slot.t, slot.gen = nil, 0
}

// teardownLocked closes every connection, stops every stream and resets the
// store. It does not talk to the backend.
func (o *Orchestrator) teardownLocked(reason string) {
	o.disarm(&o.ringTimer)
	o.disarm(&o.waitTimer)
	o.notifier.StopAllSounds()
	o.pool.CloseAll()
	o.relays.StopAll()
	callID := o.store.Snapshot().CallID
	o.store.Reset()
	o.user = domain.User{}
	l := o.logger(callID)
	l.Info().Str("reason", reason).Msg("session torn down")
}

// localTracks lists the tracks a new peer connection starts with.
func (o *Orchestrator) localTracks() []core.MediaTrack {
	ms := o.store.LocalMedia()
	if ms == nil {
		return nil
	}
	out := append([]core.MediaTrack(nil), ms.AudioTracks()...)
	if v := o.outboundVideo(); v != nil {
		out = append(out, v)
	}
	return out
}

// outboundVideo is the single video track peers should receive: the screen
// while sharing, otherwise the enabled camera, otherwise nothing.
func (o *Orchestrator) outboundVideo() core.MediaTrack {
	if sc := o.store.ScreenMedia(); sc != nil {
		if t := core.FirstTrack(sc.VideoTracks()); t != nil {
			return t
		}
	}
	return o.enabledCamera()
}

func (o *Orchestrator) enabledCamera() core.MediaTrack {
	ms := o.store.LocalMedia()
	if ms == nil {
		return nil
	}
	if cam := core.FirstTrack(ms.VideoTracks()); cam != nil && cam.Enabled() {
		return cam
	}
	return nil
}

// sendCandidate runs on connection goroutines without the orchestrator lock.
func (o *Orchestrator) sendCandidate(id domain.ParticipantID, c webrtc.ICECandidateInit) {
	if err := o.bridge.SendCandidate(id, c); err != nil {
		log.Debug().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("local candidate not sent")
	}
}

func (o *Orchestrator) sendOffer(_ context.Context, id domain.ParticipantID, offer webrtc.SessionDescription) error {
	return o.bridge.SendOffer(id, offer)
}
