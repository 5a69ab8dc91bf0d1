package corefake

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
)

// Backend records REST calls. CallID is returned by InitiateCall.
type Backend struct {
	CallID      string
	InitiateErr error
	AnswerErr   error
	DeclineErr  error
	EndErr      error

	mu        sync.Mutex
	Initiated []core.InitiateRequest
	Answered  []string
	Declined  []string
	Ended     []string
	Beacons   []string
}

func (b *Backend) InitiateCall(_ context.Context, req core.InitiateRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Initiated = append(b.Initiated, req)
	if b.InitiateErr != nil {
		return "", b.InitiateErr
	}
	return b.CallID, nil
}

func (b *Backend) AnswerCall(_ context.Context, callID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Answered = append(b.Answered, callID)
	return b.AnswerErr
}

func (b *Backend) DeclineCall(_ context.Context, callID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Declined = append(b.Declined, callID)
	return b.DeclineErr
}

func (b *Backend) EndCall(_ context.Context, callID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Ended = append(b.Ended, callID)
	return b.EndErr
}

func (b *Backend) EndCallBeacon(callID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Beacons = append(b.Beacons, callID)
}

// Calls returns copies of the recorded declines and ends.
func (b *Backend) Calls() (declined, ended []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Declined...), append([]string(nil), b.Ended...)
}
