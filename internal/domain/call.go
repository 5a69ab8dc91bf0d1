package domain

import "time"

type CallStatus string

const (
	StatusIdle      CallStatus = "idle"
	StatusCalling   CallStatus = "calling"
	StatusRinging   CallStatus = "ringing"
	StatusConnected CallStatus = "connected"
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool { return t == CallAudio || t == CallVideo }

// WantsVideo reports whether capture should include the camera.
func (t CallType) WantsVideo() bool { return t == CallVideo }

type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

func (t ChatType) Valid() bool { return t == ChatDirect || t == ChatGroup }

type AudioOutputMode string

const (
	OutputSpeaker    AudioOutputMode = "speaker"
	OutputMicrophone AudioOutputMode = "microphone"
)

type ChatContext struct {
	ChatType ChatType `json:"chatType"`
	ChatID   string   `json:"chatId"`
	ChatName string   `json:"chatName"`
}

// WaitingCall is an offer received while another call is active.
type WaitingCall struct {
	CallID     string      `json:"callId"`
	Chat       ChatContext `json:"chat"`
	CallType   CallType    `json:"callType"`
	Initiator  Participant `json:"initiator"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// CallState is an immutable view of the session handed to observers.
type CallState struct {
	CallID        string          `json:"callId,omitempty"`
	InCall        bool            `json:"isInCall"`
	Initiator     bool            `json:"isInitiator"`
	CallType      CallType        `json:"callType,omitempty"`
	Chat          ChatContext     `json:"chat"`
	Participants  Participants    `json:"participants"`
	LocalStream   Stream          `json:"-"`
	ScreenStream  Stream          `json:"-"`
	VideoEnabled  bool            `json:"isVideoEnabled"`
	AudioEnabled  bool            `json:"isAudioEnabled"`
	ScreenSharing bool            `json:"isScreenSharing"`
	AudioOutput   AudioOutputMode `json:"audioOutputMode"`
	StartedAt     time.Time       `json:"callStartTime,omitzero"`
	Status        CallStatus      `json:"callStatus"`
	CurrentUserID ParticipantID   `json:"currentUserId,omitempty"`
	Waiting       *WaitingCall    `json:"waitingIncoming,omitempty"`
}

// IdleState is the template every session returns to after teardown.
func IdleState() CallState {
	return CallState{
		Participants: Participants{},
		AudioEnabled: true,
		AudioOutput:  OutputSpeaker,
		Status:       StatusIdle,
	}
}

// Remote returns every participant except the local user.
func (s CallState) Remote() Participants {
	out := make(Participants, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.UserID != s.CurrentUserID {
			out = append(out, p)
		}
	}
	return out
}
