package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// HandleIncomingCall rings when idle, otherwise holds the offer as the
// waiting call.
func (o *Orchestrator) HandleIncomingCall(m protocol.IncomingCall) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Snapshot()
	l := o.logger(m.CallID)
	self := st.CurrentUserID
	if self == "" {
		self = o.cfg.Self
	}
	switch {
	case m.CallID == st.CallID:
		l.Debug().Msg("incoming call is the active call, ignored")
		return
	case self != "" && m.Caller.UserID == self:
		l.Debug().Msg("incoming call from self, ignored")
		return
	case st.Waiting != nil:
		l.Info().Str("waiting_call_id", st.Waiting.CallID).Msg("already holding a waiting call, ignored")
		return
	}

	name := m.Caller.Name
	if name == "" {
		name = domain.UnknownParticipantName
	}
	initiator := domain.Participant{
		UserID:           m.Caller.UserID,
		SignalingAddress: m.SocketID,
		Name:             name,
		Avatar:           m.Caller.Avatar,
		AudioEnabled:     true,
		VideoEnabled:     m.CallType.WantsVideo(),
		JoinedAt:         time.Now(),
	}
	chat := domain.ChatContext{ChatType: m.ChatType, ChatID: m.ChatID, ChatName: m.ChatName}
	if chat.ChatName == "" {
		chat.ChatName = name
	}

	if st.Status != domain.StatusIdle {
		o.store.Mutate(func(s *store.Session) {
			s.Waiting = &domain.WaitingCall{
				CallID:     m.CallID,
				Chat:       chat,
				CallType:   m.CallType,
				Initiator:  initiator,
				ReceivedAt: time.Now(),
			}
		})
		o.notifyIncoming(name, chat, m.CallType)
		callID := m.CallID
		o.arm(&o.waitTimer, o.cfg.RingTimeout, func() {
			if w := o.store.Snapshot().Waiting; w != nil && w.CallID == callID {
				o.dropWaitingLocked("not answered")
			}
		})
		l.Info().Str("caller", initiator.UserID.String()).Msg("incoming call held as waiting")
		return
	}

	o.store.Mutate(func(s *store.Session) {
		s.CallID = m.CallID
		s.Initiator = false
		s.CallType = m.CallType
		s.Chat = chat
		s.Status = domain.StatusRinging
		s.CurrentUserID = o.cfg.Self
		s.ResetParticipants(initiator)
	})
	o.notifier.PlayRingtone(core.RingtoneIncoming)
	o.notifyIncoming(name, chat, m.CallType)
	o.armRingingTimeout(m.CallID, o.cfg.RingTimeout)
	l.Info().Str("caller", initiator.UserID.String()).Msg("incoming call ringing")
}

func (o *Orchestrator) notifyIncoming(caller string, chat domain.ChatContext, t domain.CallType) {
	body := caller
	if chat.ChatType == domain.ChatGroup && chat.ChatName != "" {
		body = fmt.Sprintf("%s in %s", caller, chat.ChatName)
	}
	o.notifier.ShowNotification(core.Notification{
		Title:   fmt.Sprintf("Incoming %s call", t),
		Body:    body,
		Level:   core.LevelInfo,
		OnClick: o.store.Touch,
	})
}

// activeLocked returns the session snapshot when callID names it. Events
// routed before a teardown or call switch reach the handler afterwards and
// are dropped here.
func (o *Orchestrator) activeLocked(callID, event string) (domain.CallState, bool) {
	st := o.store.Snapshot()
	if st.Status == domain.StatusIdle || st.CallID == "" || st.CallID != callID {
		log.Debug().Str("module", "app.orch").Str("event", event).Str("call_id", callID).Str("active_call_id", st.CallID).Msg("stale event dropped")
		return st, false
	}
	return st, true
}

// negotiable reports whether peer connections may be set up. A ringing
// session has no local media yet; peers offer again once we join.
func negotiable(st domain.CallState) bool {
	return st.Status == domain.StatusCalling || st.Status == domain.StatusConnected
}

// markConnectedLocked moves an outgoing call to connected once somebody
// answered.
func (o *Orchestrator) markConnectedLocked() {
	if o.store.Snapshot().Status != domain.StatusCalling {
		return
	}
	o.disarm(&o.ringTimer)
	o.notifier.StopRingtone(core.RingtoneOutgoing)
	o.store.Mutate(func(s *store.Session) {
		s.Status = domain.StatusConnected
		if s.StartedAt.IsZero() {
			s.StartedAt = time.Now()
		}
	})
	st := o.store.Snapshot()
	l := o.logger(st.CallID)
	l.Info().Msg("call connected")
}

func (o *Orchestrator) HandleCallAccepted(m protocol.CallAccepted) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.activeLocked(m.CallID, m.Event()); !ok {
		return
	}
	o.markConnectedLocked()
}

// HandleParticipantJoined records the newcomer and offers it our media.
// Existing members always make the offer. While ringing only the roster is
// updated.
func (o *Orchestrator) HandleParticipantJoined(m protocol.ParticipantJoined) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.activeLocked(m.CallID, m.Event()); !ok {
		return
	}
	o.markConnectedLocked()

	id := m.UserID
	p := m.Participant()
	if p.Name == "" {
		p.Name = domain.UnknownParticipantName
	}
	p.JoinedAt = time.Now()
	o.store.Mutate(func(s *store.Session) { s.Merge(p) })
	if !negotiable(o.store.Snapshot()) {
		return
	}

	// A join for a known connection means the participant reconnected.
	if o.pool.Close(id) {
		o.relays.Stop(id)
	}
	if _, _, err := o.pool.Ensure(id, o.localTracks()); err != nil {
		log.Error().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("peer connection not created")
		return
	}
	offer, err := o.pool.CreateOffer(id)
	if err != nil {
		log.Error().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("offer failed")
		return
	}
	if err := o.bridge.SendOffer(id, offer); err != nil {
		log.Warn().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("offer not sent")
	}
}

func (o *Orchestrator) HandleParticipantLeft(m protocol.ParticipantLeft) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.activeLocked(m.CallID, m.Event()); !ok {
		return
	}
	id := m.UserID
	o.pool.Close(id)
	o.relays.Stop(id)
	o.store.Mutate(func(s *store.Session) { s.Remove(id) })

	st := o.store.Snapshot()
	l := o.logger(st.CallID)
	l.Info().Str("participant", id.String()).Msg("participant left")
	if st.Status == domain.StatusConnected && st.Chat.ChatType == domain.ChatDirect && len(st.Remote()) == 0 {
		o.endLocked(context.Background(), "remote left", true)
	}
}

// HandleParticipantSync merges the server roster into ours, keeping live
// streams.
func (o *Orchestrator) HandleParticipantSync(m protocol.ParticipantSync) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.activeLocked(m.CallID, m.Event()); !ok {
		return
	}
	roster := m.Roster()
	now := time.Now()
	o.store.Mutate(func(s *store.Session) {
		for _, p := range roster {
			if p.UserID == s.CurrentUserID {
				continue
			}
			if !s.HasParticipant(p.UserID) {
				p.JoinedAt = now
			}
			s.Merge(p)
		}
	})
}

// HandleOffer answers an offer, creating the connection when the sender is
// new to us.
func (o *Orchestrator) HandleOffer(m protocol.Offer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.activeLocked(m.CallID, m.Event())
	if !ok {
		return
	}
	if !negotiable(st) {
		log.Debug().Str("module", "app.orch").Str("participant", m.From.String()).Msg("offer before accept dropped")
		return
	}
	o.markConnectedLocked()

	id := m.From
	name := m.Name
	if name == "" {
		name = domain.UnknownParticipantName
	}
	o.store.Mutate(func(s *store.Session) {
		if s.Update(id, func(p *domain.Participant) {
			p.MergeMeta(domain.Participant{SignalingAddress: m.SocketID, Name: m.Name, Avatar: m.Avatar})
		}) {
			return
		}
		s.Put(domain.Participant{
			UserID:           id,
			SignalingAddress: m.SocketID,
			Name:             name,
			Avatar:           m.Avatar,
			AudioEnabled:     true,
			JoinedAt:         time.Now(),
		})
	})

	if _, _, err := o.pool.Ensure(id, o.localTracks()); err != nil {
		log.Error().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("peer connection not created")
		return
	}
	answer, err := o.pool.ApplyOffer(id, m.SessionDescription())
	if err != nil {
		log.Error().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("offer not applied")
		return
	}
	if err := o.bridge.SendAnswer(id, answer); err != nil {
		log.Warn().Str("module", "app.orch").Str("participant", id.String()).Err(err).Msg("answer not sent")
	}
}

func (o *Orchestrator) HandleAnswer(m protocol.Answer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.activeLocked(m.CallID, m.Event()); !ok || !negotiable(st) {
		return
	}
	if err := o.pool.ApplyAnswer(m.From, m.SessionDescription()); err != nil {
		log.Warn().Str("module", "app.orch").Str("participant", m.From.String()).Err(err).Msg("answer not applied")
	}
}

func (o *Orchestrator) HandleICECandidate(m protocol.ICECandidate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.activeLocked(m.CallID, m.Event()); !ok || !negotiable(st) {
		return
	}
	if err := o.pool.AddCandidate(m.From, m.Candidate); err != nil {
		log.Warn().Str("module", "app.orch").Str("participant", m.From.String()).Err(err).Msg("remote candidate rejected")
	}
}

func (o *Orchestrator) HandleParticipantAudio(m protocol.MediaToggle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.activeLocked(m.CallID, protocol.EventParticipantToggleAudio); !ok {
		return
	}
	o.store.Mutate(func(s *store.Session) {
		s.Update(m.UserID, func(p *domain.Participant) { p.AudioEnabled = m.Enabled })
	})
	o.relays.SetMuted(m.UserID, webrtc.RTPCodecTypeAudio, !m.Enabled)
}

func (o *Orchestrator) HandleParticipantVideo(m protocol.MediaToggle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.activeLocked(m.CallID, protocol.EventParticipantToggleVideo); !ok {
		return
	}
	o.store.Mutate(func(s *store.Session) {
		s.Update(m.UserID, func(p *domain.Participant) { p.VideoEnabled = m.Enabled })
	})
	o.relays.SetMuted(m.UserID, webrtc.RTPCodecTypeVideo, !m.Enabled)
}

func (o *Orchestrator) HandleParticipantScreenShare(m protocol.ScreenShare, sharing bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	event := protocol.EventParticipantScreenStopped
	if sharing {
		event = protocol.EventParticipantScreenStarted
	}
	if _, ok := o.activeLocked(m.CallID, event); !ok {
		return
	}
	o.store.Mutate(func(s *store.Session) {
		s.Update(m.UserID, func(p *domain.Participant) {
			p.ScreenSharing = sharing
			if sharing {
				p.VideoEnabled = true
			}
		})
	})
}

// HandleForceStopScreenShare stops our share because someone else started one.
func (o *Orchestrator) HandleForceStopScreenShare(m protocol.ForceStopScreenShare) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.activeLocked(m.CallID, m.Event()); !ok || !st.ScreenSharing {
		return
	}
	if err := o.stopScreenShareLocked(context.Background()); err != nil {
		log.Warn().Str("module", "app.orch").Err(err).Msg("forced screen share stop failed")
		return
	}
	log.Info().Str("module", "app.orch").Str("by", m.ByUserID.String()).Msg("screen share stopped by another participant")
}

// HandleCallEnded ends the call the server closed, or drops the waiting
// call if that is the one that ended.
func (o *Orchestrator) HandleCallEnded(m protocol.CallEnded) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Snapshot()
	if st.Waiting != nil && st.Waiting.CallID == m.CallID {
		o.dropWaitingLocked("ended by caller")
		return
	}
	if st.CallID != m.CallID {
		return
	}
	if st.Status == domain.StatusRinging {
		caller := domain.UnknownParticipantName
		if ps := st.Remote(); len(ps) > 0 {
			caller = ps[0].Name
		}
		o.notifier.ShowNotification(core.Notification{
			Title:   "Missed call",
			Body:    caller,
			Level:   core.LevelInfo,
			OnClick: o.store.Touch,
		})
	}
	reason := m.Reason
	if reason == "" {
		reason = "ended by server"
	}
	o.endLocked(context.Background(), reason, false)
}
