package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrNoEvent      = errors.New("frame has no event")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the frame layout on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var inbound = map[string]func() Message{
	EventIncomingCall:             func() Message { return &IncomingCall{} },
	EventCallAccepted:             func() Message { return &CallAccepted{} },
	EventParticipantJoined:        func() Message { return &ParticipantJoined{} },
	EventParticipantLeft:          func() Message { return &ParticipantLeft{} },
	EventParticipantSync:          func() Message { return &ParticipantSync{} },
	EventOffer:                    func() Message { return &Offer{} },
	EventAnswer:                   func() Message { return &Answer{} },
	EventICECandidate:             func() Message { return &ICECandidate{} },
	EventParticipantToggleAudio:   func() Message { return &ParticipantToggleAudio{} },
	EventParticipantToggleVideo:   func() Message { return &ParticipantToggleVideo{} },
	EventParticipantScreenStarted: func() Message { return &ParticipantScreenStarted{} },
	EventParticipantScreenStopped: func() Message { return &ParticipantScreenStopped{} },
	EventForceStopScreenShare:     func() Message { return &ForceStopScreenShare{} },
	EventCallEnded:                func() Message { return &CallEnded{} },
}

// PeekEvent returns the event name without decoding the payload.
func PeekEvent(frame []byte) string {
	return gjson.GetBytes(frame, "event").String()
}

// Decode parses and validates an inbound frame. The returned Message is a
// pointer to one of the inbound types.
func Decode(frame []byte) (Message, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("decode: invalid json")
	}
	event := PeekEvent(frame)
	if event == "" {
		return nil, ErrNoEvent
	}
	ctor, ok := inbound[event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	msg := ctor()
	if data := gjson.GetBytes(frame, "data"); data.Exists() && data.Type != gjson.Null {
		if err := json.Unmarshal([]byte(data.Raw), msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event, err)
		}
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", event, err)
	}
	return msg, nil
}

// Encode validates an outbound message and wraps it in an envelope.
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return json.Marshal(Envelope{Event: msg.Event(), Data: data})
}
