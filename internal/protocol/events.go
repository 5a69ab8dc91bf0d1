// Package protocol defines the signaling events exchanged with the call server.
// Event names and field names mirror the server contract and must not drift.
package protocol

// Inbound events.
const (
	EventIncomingCall             = "incoming-call"
	EventCallAccepted             = "call-accepted"
	EventParticipantJoined        = "participant-joined"
	EventParticipantLeft          = "participant-left"
	EventParticipantSync          = "participant-sync"
	EventParticipantToggleAudio   = "participant-toggle-audio"
	EventParticipantToggleVideo   = "participant-toggle-video"
	EventParticipantScreenStarted = "participant-screen-share-started"
	EventParticipantScreenStopped = "participant-screen-share-stopped"
	EventForceStopScreenShare     = "force-stop-screen-share"
	EventCallEnded                = "call-ended"
)

// Events used in both directions.
const (
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
)

// Outbound events.
const (
	EventJoinCall         = "join-call"
	EventToggleAudio      = "toggle-audio"
	EventToggleVideo      = "toggle-video"
	EventStartScreenShare = "start-screen-share"
	EventStopScreenShare  = "stop-screen-share"
)
