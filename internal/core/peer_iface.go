package core

import (
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the receive side of a peer connection.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// PeerConnection is one bidirectional media connection to a remote participant.
type PeerConnection interface {
	// AddLocalTrack attaches a local capture track.
	AddLocalTrack(MediaTrack) error
	// ReplaceVideoTrack swaps the outbound video sender track. A nil track
	// leaves the sender without a track. A sender is created if none exists.
	ReplaceVideoTrack(MediaTrack) error
	// VideoTrackID is the id of the track currently sent as video, or "".
	VideoTrackID() string
	// CreateOffer creates an offer and sets it as local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOffer sets the remote offer and returns the local answer.
	ApplyOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// RequestKeyFrame asks the remote sender of ssrc for a key frame.
	RequestKeyFrame(ssrc webrtc.SSRC) error
	// Close stops outbound senders, then closes the connection.
	Close()
	IsClosed() bool
}

type PeerFactory interface {
	NewPeer(id domain.ParticipantID) (PeerConnection, error)
}
