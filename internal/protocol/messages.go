package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrMissingCallID = errors.New("missing callId")
	ErrMissingUserID = errors.New("missing userId")
	ErrMissingSDP    = errors.New("missing sdp")
	ErrMissingTarget = errors.New("missing target")
	ErrBadEnum       = errors.New("invalid enum value")
)

// Message is any signaling payload with a fixed event name.
type Message interface {
	Event() string
	Validate() error
}

func requireCall(callID string) error {
	if callID == "" {
		return ErrMissingCallID
	}
	return nil
}

func requireUser(callID string, id domain.ParticipantID) error {
	if err := requireCall(callID); err != nil {
		return err
	}
	if id == "" {
		return ErrMissingUserID
	}
	return nil
}

// ---- inbound ----

type Caller struct {
	UserID domain.ParticipantID `json:"userId"`
	Name   string               `json:"name"`
	Avatar string               `json:"avatar,omitempty"`
}

type IncomingCall struct {
	CallID   string          `json:"callId"`
	ChatID   string          `json:"chatId"`
	ChatName string          `json:"chatName"`
	ChatType domain.ChatType `json:"chatType"`
	CallType domain.CallType `json:"callType"`
	Caller   Caller          `json:"caller"`
	SocketID string          `json:"socketId"`
}

func (IncomingCall) Event() string { return EventIncomingCall }

func (m IncomingCall) Validate() error {
	if err := requireUser(m.CallID, m.Caller.UserID); err != nil {
		return err
	}
	if !m.CallType.Valid() {
		return fmt.Errorf("%w: callType %q", ErrBadEnum, m.CallType)
	}
	if !m.ChatType.Valid() {
		return fmt.Errorf("%w: chatType %q", ErrBadEnum, m.ChatType)
	}
	return nil
}

type CallAccepted struct {
	CallID   string               `json:"callId"`
	UserID   domain.ParticipantID `json:"userId"`
	SocketID string               `json:"socketId,omitempty"`
}

func (CallAccepted) Event() string     { return EventCallAccepted }
func (m CallAccepted) Validate() error { return requireCall(m.CallID) }

// ParticipantInfo is the roster entry carried by join and sync events.
type ParticipantInfo struct {
	UserID          domain.ParticipantID `json:"userId"`
	SocketID        string               `json:"socketId"`
	Name            string               `json:"name"`
	Avatar          string               `json:"avatar,omitempty"`
	IsVideoEnabled  bool                 `json:"isVideoEnabled"`
	IsAudioEnabled  bool                 `json:"isAudioEnabled"`
	IsScreenSharing bool                 `json:"isScreenSharing,omitempty"`
}

func (p ParticipantInfo) Participant() domain.Participant {
	return domain.Participant{
		UserID:           p.UserID,
		SignalingAddress: p.SocketID,
		Name:             p.Name,
		Avatar:           p.Avatar,
		VideoEnabled:     p.IsVideoEnabled,
		AudioEnabled:     p.IsAudioEnabled,
		ScreenSharing:    p.IsScreenSharing,
	}
}

type ParticipantJoined struct {
	CallID string `json:"callId"`
	ParticipantInfo
}

func (ParticipantJoined) Event() string { return EventParticipantJoined }

func (m ParticipantJoined) Validate() error {
	if err := requireUser(m.CallID, m.UserID); err != nil {
		return err
	}
	if m.SocketID == "" {
		return ErrMissingTarget
	}
	return nil
}

type ParticipantLeft struct {
	CallID string               `json:"callId"`
	UserID domain.ParticipantID `json:"userId"`
}

func (ParticipantLeft) Event() string     { return EventParticipantLeft }
func (m ParticipantLeft) Validate() error { return requireUser(m.CallID, m.UserID) }

type ParticipantSync struct {
	CallID       string            `json:"callId"`
	Participants []ParticipantInfo `json:"participants"`
}

func (ParticipantSync) Event() string     { return EventParticipantSync }
func (m ParticipantSync) Validate() error { return requireCall(m.CallID) }

// Roster converts and normalises the synced list.
func (m ParticipantSync) Roster() domain.Participants {
	out := make(domain.Participants, 0, len(m.Participants))
	for _, p := range m.Participants {
		out = append(out, p.Participant())
	}
	return out.Normalize()
}

// Description carries an inbound offer or answer.
type Description struct {
	CallID   string               `json:"callId"`
	From     domain.ParticipantID `json:"from"`
	SocketID string               `json:"socketId"`
	Name     string               `json:"name,omitempty"`
	Avatar   string               `json:"avatar,omitempty"`
	SDP      string               `json:"sdp"`
}

func (d Description) validate() error {
	if err := requireUser(d.CallID, d.From); err != nil {
		return err
	}
	if d.SDP == "" {
		return ErrMissingSDP
	}
	return nil
}

type Offer struct{ Description }

func (Offer) Event() string     { return EventOffer }
func (m Offer) Validate() error { return m.validate() }

func (m Offer) SessionDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP}
}

type Answer struct{ Description }

func (Answer) Event() string     { return EventAnswer }
func (m Answer) Validate() error { return m.validate() }

func (m Answer) SessionDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}
}

type ICECandidate struct {
	CallID    string                  `json:"callId"`
	From      domain.ParticipantID    `json:"from"`
	SocketID  string                  `json:"socketId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (ICECandidate) Event() string     { return EventICECandidate }
func (m ICECandidate) Validate() error { return requireUser(m.CallID, m.From) }

// MediaToggle reports a remote participant's audio or video switch.
type MediaToggle struct {
	CallID  string               `json:"callId"`
	UserID  domain.ParticipantID `json:"userId"`
	Enabled bool                 `json:"enabled"`
}

func (m MediaToggle) Validate() error { return requireUser(m.CallID, m.UserID) }

type ParticipantToggleAudio struct{ MediaToggle }

func (ParticipantToggleAudio) Event() string { return EventParticipantToggleAudio }

type ParticipantToggleVideo struct{ MediaToggle }

func (ParticipantToggleVideo) Event() string { return EventParticipantToggleVideo }

type ScreenShare struct {
	CallID string               `json:"callId"`
	UserID domain.ParticipantID `json:"userId"`
}

func (m ScreenShare) Validate() error { return requireUser(m.CallID, m.UserID) }

type ParticipantScreenStarted struct{ ScreenShare }

func (ParticipantScreenStarted) Event() string { return EventParticipantScreenStarted }

type ParticipantScreenStopped struct{ ScreenShare }

func (ParticipantScreenStopped) Event() string { return EventParticipantScreenStopped }

type ForceStopScreenShare struct {
	CallID   string               `json:"callId"`
	ByUserID domain.ParticipantID `json:"byUserId,omitempty"`
}

func (ForceStopScreenShare) Event() string     { return EventForceStopScreenShare }
func (m ForceStopScreenShare) Validate() error { return requireCall(m.CallID) }

type CallEnded struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

func (CallEnded) Event() string     { return EventCallEnded }
func (m CallEnded) Validate() error { return requireCall(m.CallID) }

// ---- outbound ----

type JoinCall struct {
	CallID         string               `json:"callId"`
	UserID         domain.ParticipantID `json:"userId"`
	Name           string               `json:"name"`
	Avatar         string               `json:"avatar,omitempty"`
	IsVideoEnabled bool                 `json:"isVideoEnabled"`
	IsAudioEnabled bool                 `json:"isAudioEnabled"`
}

func (JoinCall) Event() string     { return EventJoinCall }
func (m JoinCall) Validate() error { return requireUser(m.CallID, m.UserID) }

// Directed addresses a message to one participant's connection.
type Directed struct {
	CallID       string               `json:"callId"`
	To           string               `json:"to"`
	TargetUserID domain.ParticipantID `json:"targetUserId"`
	From         domain.ParticipantID `json:"from"`
}

func (d Directed) validate() error {
	if err := requireUser(d.CallID, d.From); err != nil {
		return err
	}
	if d.To == "" && d.TargetUserID == "" {
		return ErrMissingTarget
	}
	return nil
}

type OutboundOffer struct {
	Directed
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	SDP    string `json:"sdp"`
}

func (OutboundOffer) Event() string { return EventOffer }

func (m OutboundOffer) Validate() error {
	if m.SDP == "" {
		return ErrMissingSDP
	}
	return m.validate()
}

type OutboundAnswer struct {
	Directed
	SDP string `json:"sdp"`
}

func (OutboundAnswer) Event() string { return EventAnswer }

func (m OutboundAnswer) Validate() error {
	if m.SDP == "" {
		return ErrMissingSDP
	}
	return m.validate()
}

type OutboundCandidate struct {
	Directed
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (OutboundCandidate) Event() string     { return EventICECandidate }
func (m OutboundCandidate) Validate() error { return m.validate() }

type ToggleAudio struct{ MediaToggle }

func (ToggleAudio) Event() string { return EventToggleAudio }

type ToggleVideo struct{ MediaToggle }

func (ToggleVideo) Event() string { return EventToggleVideo }

type StartScreenShare struct{ ScreenShare }

func (StartScreenShare) Event() string { return EventStartScreenShare }

type StopScreenShare struct{ ScreenShare }

func (StopScreenShare) Event() string { return EventStopScreenShare }
