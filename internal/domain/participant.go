package domain

import "time"

// UnknownParticipantName is used for peers whose media arrived before metadata.
const UnknownParticipantName = "Unknown"

// Stream is an opaque handle to a set of media tracks.
type Stream interface {
	ID() string
}

type Participant struct {
	UserID           ParticipantID `json:"userId"`
	SignalingAddress string        `json:"socketId"`
	Name             string        `json:"name"`
	Avatar           string        `json:"avatar,omitempty"`
	VideoEnabled     bool          `json:"isVideoEnabled"`
	AudioEnabled     bool          `json:"isAudioEnabled"`
	ScreenSharing    bool          `json:"isScreenSharing"`
	Stream           Stream        `json:"-"`
	JoinedAt         time.Time     `json:"joinedAt"`
}

// HasStream reports whether remote media has arrived for p.
func (p Participant) HasStream() bool { return p.Stream != nil }

// MergeMeta copies non-empty metadata from other without touching the stream.
func (p *Participant) MergeMeta(other Participant) {
	if other.SignalingAddress != "" {
		p.SignalingAddress = other.SignalingAddress
	}
	switch {
	case other.Name != "" && other.Name != UnknownParticipantName:
		p.Name = other.Name
	case p.Name == "":
		p.Name = other.Name
	}
	if other.Avatar != "" {
		p.Avatar = other.Avatar
	}
}

// Participants is an ordered (join order) participant list.
type Participants []Participant

func (ps Participants) Get(id ParticipantID) (Participant, bool) {
	for _, p := range ps {
		if p.UserID == id {
			return p, true
		}
	}
	return Participant{}, false
}

func (ps Participants) Has(id ParticipantID) bool {
	_, ok := ps.Get(id)
	return ok
}

func (ps Participants) IDs() []ParticipantID {
	out := make([]ParticipantID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.UserID)
	}
	return out
}

// Normalize drops unnamed entries and duplicate ids, keeping the first.
func (ps Participants) Normalize() Participants {
	seen := make(map[ParticipantID]struct{}, len(ps))
	out := make(Participants, 0, len(ps))
	for _, p := range ps {
		p.UserID = CanonicalID(p.UserID)
		if p.UserID == "" || p.Name == "" {
			continue
		}
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, p)
	}
	return out
}
