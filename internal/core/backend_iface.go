package core

import (
	"context"

	"github.com/dkeye/VoiceClient/internal/domain"
)

type InitiateRequest struct {
	ChatID   string          `json:"chatId"`
	ChatType domain.ChatType `json:"chatType"`
	CallType domain.CallType `json:"callType"`
	SocketID string          `json:"socketId,omitempty"`
}

// CallBackend is the REST side of call bookkeeping.
type CallBackend interface {
	InitiateCall(ctx context.Context, req InitiateRequest) (callID string, err error)
	AnswerCall(ctx context.Context, callID string) error
	DeclineCall(ctx context.Context, callID string) error
	EndCall(ctx context.Context, callID string) error
	// EndCallBeacon is the best-effort shutdown variant of EndCall.
	EndCallBeacon(callID string)
}
