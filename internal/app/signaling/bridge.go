// Package signaling translates between wire events and session handlers.
package signaling

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("signaling not connected")

// Handler receives validated inbound events. Bridge drops events for other
// calls and events echoed from the local user before they reach it. The
// session can change between that check and delivery, so handlers must
// compare the call id again under their own lock.
type Handler interface {
	HandleIncomingCall(protocol.IncomingCall)
	HandleCallAccepted(protocol.CallAccepted)
	HandleParticipantJoined(protocol.ParticipantJoined)
	HandleParticipantLeft(protocol.ParticipantLeft)
	HandleParticipantSync(protocol.ParticipantSync)
	HandleOffer(protocol.Offer)
	HandleAnswer(protocol.Answer)
	HandleICECandidate(protocol.ICECandidate)
	HandleParticipantAudio(protocol.MediaToggle)
	HandleParticipantVideo(protocol.MediaToggle)
	HandleParticipantScreenShare(m protocol.ScreenShare, sharing bool)
	HandleForceStopScreenShare(protocol.ForceStopScreenShare)
	HandleCallEnded(protocol.CallEnded)
}

// Session is the read side the bridge needs from the call store.
type Session interface {
	Snapshot() domain.CallState
}

type Bridge struct {
	conn    core.SignalConnection
	session Session
	handler Handler
}

func New(conn core.SignalConnection, session Session) *Bridge {
	return &Bridge{conn: conn, session: session}
}

// Bind starts delivering inbound frames to h.
func (b *Bridge) Bind(h Handler) {
	b.handler = h
	b.conn.OnFrame(b.dispatch)
}

// LocalAddress is this client's signaling address.
func (b *Bridge) LocalAddress() string { return b.conn.LocalAddress() }

func (b *Bridge) dispatch(frame core.Frame) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		log.Warn().Str("module", "app.signaling").Err(err).Str("event", protocol.PeekEvent(frame)).Msg("dropping inbound frame")
		return
	}
	if b.handler == nil {
		return
	}
	b.Deliver(msg)
}

// Deliver routes an already decoded message to the handler.
func (b *Bridge) Deliver(msg protocol.Message) {
	st := b.session.Snapshot()
	logger := log.With().Str("module", "app.signaling").Str("event", msg.Event()).Logger()

	if m, ok := msg.(*protocol.IncomingCall); ok {
		b.handler.HandleIncomingCall(*m)
		return
	}
	callID := callIDOf(msg)
	if end, ok := msg.(*protocol.CallEnded); ok && st.Waiting != nil && st.Waiting.CallID == callID {
		b.handler.HandleCallEnded(*end)
		return
	}
	if st.CallID == "" || callID != st.CallID {
		logger.Debug().Str("call_id", callID).Str("active_call_id", st.CallID).Msg("event for another call dropped")
		return
	}
	if from := senderOf(msg); from != "" && from == st.CurrentUserID {
		logger.Debug().Msg("own event echoed back, dropped")
		return
	}

	switch m := msg.(type) {
	case *protocol.CallAccepted:
		b.handler.HandleCallAccepted(*m)
	case *protocol.ParticipantJoined:
		b.handler.HandleParticipantJoined(*m)
	case *protocol.ParticipantLeft:
		b.handler.HandleParticipantLeft(*m)
	case *protocol.ParticipantSync:
		b.handler.HandleParticipantSync(*m)
	case *protocol.Offer:
		b.handler.HandleOffer(*m)
	case *protocol.Answer:
		b.handler.HandleAnswer(*m)
	case *protocol.ICECandidate:
		b.handler.HandleICECandidate(*m)
	case *protocol.ParticipantToggleAudio:
		b.handler.HandleParticipantAudio(m.MediaToggle)
	case *protocol.ParticipantToggleVideo:
		b.handler.HandleParticipantVideo(m.MediaToggle)
	case *protocol.ParticipantScreenStarted:
		b.handler.HandleParticipantScreenShare(m.ScreenShare, true)
	case *protocol.ParticipantScreenStopped:
		b.handler.HandleParticipantScreenShare(m.ScreenShare, false)
	case *protocol.ForceStopScreenShare:
		b.handler.HandleForceStopScreenShare(*m)
	case *protocol.CallEnded:
		b.handler.HandleCallEnded(*m)
	default:
		logger.Warn().Msg("unhandled event")
	}
}

func callIDOf(msg protocol.Message) string {
	switch m := msg.(type) {
	case *protocol.CallAccepted:
		return m.CallID
	case *protocol.ParticipantJoined:
		return m.CallID
	case *protocol.ParticipantLeft:
		return m.CallID
	case *protocol.ParticipantSync:
		return m.CallID
	case *protocol.Offer:
		return m.CallID
	case *protocol.Answer:
		return m.CallID
	case *protocol.ICECandidate:
		return m.CallID
	case *protocol.ParticipantToggleAudio:
		return m.CallID
	case *protocol.ParticipantToggleVideo:
		return m.CallID
	case *protocol.ParticipantScreenStarted:
		return m.CallID
	case *protocol.ParticipantScreenStopped:
		return m.CallID
	case *protocol.ForceStopScreenShare:
		return m.CallID
	case *protocol.CallEnded:
		return m.CallID
	}
	return ""
}

// senderOf returns the originating user for events that carry one and
// can be echoed back by the server.
func senderOf(msg protocol.Message) domain.ParticipantID {
	switch m := msg.(type) {
	case *protocol.ParticipantJoined:
		return m.UserID
	case *protocol.Offer:
		return m.From
	case *protocol.Answer:
		return m.From
	case *protocol.ICECandidate:
		return m.From
	case *protocol.ParticipantToggleAudio:
		return m.UserID
	case *protocol.ParticipantToggleVideo:
		return m.UserID
	case *protocol.ParticipantScreenStarted:
		return m.UserID
	case *protocol.ParticipantScreenStopped:
		return m.UserID
	}
	return ""
}

func (b *Bridge) send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := b.conn.TrySend(frame); err != nil {
		log.Warn().Str("module", "app.signaling").Str("event", msg.Event()).Err(err).Msg("send failed")
		return fmt.Errorf("send %s: %w", msg.Event(), err)
	}
	log.Debug().Str("module", "app.signaling").Str("event", msg.Event()).Msg("sent")
	return nil
}

// directed addresses a message to participant id of the active call.
func (b *Bridge) directed(id domain.ParticipantID) (protocol.Directed, error) {
	st := b.session.Snapshot()
	if st.CallID == "" {
		return protocol.Directed{}, domain.ErrNotInCall
	}
	d := protocol.Directed{CallID: st.CallID, TargetUserID: id, From: st.CurrentUserID}
	if p, ok := st.Participants.Get(id); ok {
		d.To = p.SignalingAddress
	}
	return d, nil
}

// JoinCall announces the local user to the call with its media flags.
func (b *Bridge) JoinCall(callID string, user domain.User, audio, video bool) error {
	return b.send(protocol.JoinCall{
		CallID:         callID,
		UserID:         user.ID,
		Name:           user.Name,
		Avatar:         user.Avatar,
		IsAudioEnabled: audio,
		IsVideoEnabled: video,
	})
}

func (b *Bridge) SendOffer(to domain.ParticipantID, offer webrtc.SessionDescription) error {
	d, err := b.directed(to)
	if err != nil {
		return err
	}
	msg := protocol.OutboundOffer{Directed: d, SDP: offer.SDP}
	if self, ok := b.session.Snapshot().Participants.Get(d.From); ok {
		msg.Name, msg.Avatar = self.Name, self.Avatar
	}
	return b.send(msg)
}

func (b *Bridge) SendAnswer(to domain.ParticipantID, answer webrtc.SessionDescription) error {
	d, err := b.directed(to)
	if err != nil {
		return err
	}
	return b.send(protocol.OutboundAnswer{Directed: d, SDP: answer.SDP})
}

func (b *Bridge) SendCandidate(to domain.ParticipantID, c webrtc.ICECandidateInit) error {
	d, err := b.directed(to)
	if err != nil {
		return err
	}
	return b.send(protocol.OutboundCandidate{Directed: d, Candidate: c})
}

func (b *Bridge) toggle(enabled bool) (protocol.MediaToggle, error) {
	st := b.session.Snapshot()
	if st.CallID == "" {
		return protocol.MediaToggle{}, domain.ErrNotInCall
	}
	return protocol.MediaToggle{CallID: st.CallID, UserID: st.CurrentUserID, Enabled: enabled}, nil
}

func (b *Bridge) ToggleAudio(enabled bool) error {
	t, err := b.toggle(enabled)
	if err != nil {
		return err
	}
	return b.send(protocol.ToggleAudio{MediaToggle: t})
}

func (b *Bridge) ToggleVideo(enabled bool) error {
	t, err := b.toggle(enabled)
	if err != nil {
		return err
	}
	return b.send(protocol.ToggleVideo{MediaToggle: t})
}

func (b *Bridge) screen() (protocol.ScreenShare, error) {
	st := b.session.Snapshot()
	if st.CallID == "" {
		return protocol.ScreenShare{}, domain.ErrNotInCall
	}
	return protocol.ScreenShare{CallID: st.CallID, UserID: st.CurrentUserID}, nil
}

func (b *Bridge) StartScreenShare() error {
	s, err := b.screen()
	if err != nil {
		return err
	}
	return b.send(protocol.StartScreenShare{ScreenShare: s})
}

func (b *Bridge) StopScreenShare() error {
	s, err := b.screen()
	if err != nil {
		return err
	}
	return b.send(protocol.StopScreenShare{ScreenShare: s})
}
