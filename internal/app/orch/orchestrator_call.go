package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/media"
	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

type InitiateParams struct {
	ChatID   string          `json:"chatId"`
	ChatName string          `json:"chatName"`
	ChatType domain.ChatType `json:"chatType"`
	CallType domain.CallType `json:"callType"`
	User     domain.User     `json:"user"`
}

func (p InitiateParams) Validate() error {
	if p.ChatID == "" || !p.ChatType.Valid() || !p.CallType.Valid() {
		return domain.ErrInvalidParams
	}
	if err := p.User.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidParams, err)
	}
	return nil
}

type JoinParams struct {
	CallID string `json:"callId"`
	InitiateParams
}

func (p JoinParams) Validate() error {
	if p.CallID == "" {
		return domain.ErrInvalidParams
	}
	return p.InitiateParams.Validate()
}

// InitiateCall places an outgoing call. Media failures leave the session
// untouched; backend failures roll it back to idle.
func (o *Orchestrator) InitiateCall(ctx context.Context, p InitiateParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if st := o.store.Snapshot(); st.Status != domain.StatusIdle {
		return domain.ErrAlreadyInCall
	}

	o.store.ReleaseStreams()
	res, err := o.media.Acquire(ctx, p.CallType.WantsVideo())
	if err != nil {
		o.mediaFailed(err)
		return err
	}
	callType := p.CallType
	if res.VideoFallback {
		callType = domain.CallAudio
		o.mediaWarning(res.Warning)
	}
	video := hasVideo(res.Stream)

	o.user = p.User
	o.store.Mutate(func(s *store.Session) {
		s.SetLocalStream(res.Stream)
		s.InCall = true
		s.Initiator = true
		s.CallType = callType
		s.Chat = domain.ChatContext{ChatType: p.ChatType, ChatID: p.ChatID, ChatName: p.ChatName}
		s.Status = domain.StatusCalling
		s.CurrentUserID = p.User.ID
		s.AudioEnabled = true
		s.VideoEnabled = video
		s.ResetParticipants(p.User.Participant(o.bridge.LocalAddress(), true, video, res.Stream, time.Now()))
	})
	o.notifier.PlayRingtone(core.RingtoneOutgoing)

	bctx, cancel := o.backendCtx(ctx)
	callID, err := o.backend.InitiateCall(bctx, core.InitiateRequest{
		ChatID:   p.ChatID,
		ChatType: p.ChatType,
		CallType: callType,
		SocketID: o.bridge.LocalAddress(),
	})
	cancel()
	if err == nil && callID == "" {
		err = domain.ErrNoCallID
	}
	if err != nil {
		o.teardownLocked("initiate failed")
		return fmt.Errorf("%w: initiate: %w", domain.ErrBackend, err)
	}

	o.store.Mutate(func(s *store.Session) { s.CallID = callID })
	o.arm(&o.ringTimer, o.cfg.RingTimeout, func() {
		st := o.store.Snapshot()
		if st.Status != domain.StatusCalling || st.CallID != callID {
			return
		}
		l := o.logger(callID)
		l.Info().Msg("no answer, ending call")
		o.endLocked(context.Background(), "no answer", true)
	})

	l := o.logger(callID)
	if err := o.bridge.JoinCall(callID, p.User, true, video); err != nil {
		l.Warn().Err(err).Msg("join-call not sent")
	}
	l.Info().Str("chat_id", p.ChatID).Str("call_type", string(callType)).Msg("call initiated")
	return nil
}

// AcceptCall answers the ringing call.
func (o *Orchestrator) AcceptCall(ctx context.Context, callID string, user domain.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidParams, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acceptLocked(ctx, callID, user)
}

func (o *Orchestrator) acceptLocked(ctx context.Context, callID string, user domain.User) error {
	st := o.store.Snapshot()
	if st.Status != domain.StatusRinging {
		return domain.ErrNotRinging
	}
	if callID == "" {
		callID = st.CallID
	}
	if callID != st.CallID {
		return domain.ErrCallMismatch
	}
	l := o.logger(callID)

	// Ringtones stop before capture so they never overlap call audio.
	o.notifier.StopAllSounds()
	o.disarm(&o.ringTimer)

	o.store.ReleaseStreams()
	res, err := o.media.Acquire(ctx, st.CallType.WantsVideo())
	if err != nil {
		o.mediaFailed(err)
		if left := time.Until(o.ringUntil); left > 0 {
			o.armRingingTimeout(callID, left)
		} else {
			l.Info().Msg("ring time elapsed during capture, declining")
			o.declineLocked(ctx, callID, "not answered")
		}
		return err
	}
	if res.VideoFallback {
		o.mediaWarning(res.Warning)
	}
	video := hasVideo(res.Stream)

	o.user = user
	o.store.Mutate(func(s *store.Session) {
		s.SetLocalStream(res.Stream)
		s.InCall = true
		s.Status = domain.StatusConnected
		if s.StartedAt.IsZero() {
			s.StartedAt = time.Now()
		}
		if res.VideoFallback {
			s.CallType = domain.CallAudio
		}
		s.CurrentUserID = user.ID
		s.AudioEnabled = true
		s.VideoEnabled = video
		s.Put(user.Participant(o.bridge.LocalAddress(), true, video, res.Stream, time.Now()))
	})

	bctx, cancel := o.backendCtx(ctx)
	err = o.backend.AnswerCall(bctx, callID)
	cancel()
	if err != nil {
		o.teardownLocked("answer failed")
		return fmt.Errorf("%w: answer: %w", domain.ErrBackend, err)
	}

	if err := o.bridge.JoinCall(callID, user, true, video); err != nil {
		l.Warn().Err(err).Msg("join-call not sent")
	}
	l.Info().Msg("call accepted")
	return nil
}

// JoinOngoingCall enters a call that is already in progress.
func (o *Orchestrator) JoinOngoingCall(ctx context.Context, p JoinParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Snapshot()
	if st.Status != domain.StatusIdle && st.CallID != p.CallID {
		return domain.ErrAlreadyInCall
	}
	if st.CallID == p.CallID && st.Status == domain.StatusConnected {
		return nil
	}
	l := o.logger(p.CallID)

	o.notifier.StopAllSounds()
	o.disarm(&o.ringTimer)
	o.store.ReleaseStreams()
	res, err := o.media.Acquire(ctx, p.CallType.WantsVideo())
	if err != nil {
		o.mediaFailed(err)
		return err
	}
	callType := p.CallType
	if res.VideoFallback {
		callType = domain.CallAudio
		o.mediaWarning(res.Warning)
	}
	video := hasVideo(res.Stream)

	o.user = p.User
	o.store.Mutate(func(s *store.Session) {
		s.SetLocalStream(res.Stream)
		s.CallID = p.CallID
		s.InCall = true
		s.Initiator = false
		s.CallType = callType
		s.Chat = domain.ChatContext{ChatType: p.ChatType, ChatID: p.ChatID, ChatName: p.ChatName}
		s.Status = domain.StatusConnected
		if s.StartedAt.IsZero() {
			s.StartedAt = time.Now()
		}
		s.CurrentUserID = p.User.ID
		s.AudioEnabled = true
		s.VideoEnabled = video
		s.ResetParticipants(p.User.Participant(o.bridge.LocalAddress(), true, video, res.Stream, time.Now()))
	})

	bctx, cancel := o.backendCtx(ctx)
	err = o.backend.AnswerCall(bctx, p.CallID)
	cancel()
	if err != nil {
		o.teardownLocked("join failed")
		return fmt.Errorf("%w: join: %w", domain.ErrBackend, err)
	}

	if err := o.bridge.JoinCall(p.CallID, p.User, true, video); err != nil {
		l.Warn().Err(err).Msg("join-call not sent")
	}
	l.Info().Str("chat_id", p.ChatID).Msg("joined ongoing call")
	return nil
}

// DeclineCall rejects the ringing call. Local state always returns to idle;
// the backend is told on a best-effort basis. A call id matching the
// waiting call declines that one instead.
func (o *Orchestrator) DeclineCall(ctx context.Context, callID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Snapshot()
	if st.Waiting != nil && callID != "" && callID == st.Waiting.CallID {
		o.declineWaitingLocked(ctx)
		return nil
	}
	if st.Status == domain.StatusIdle {
		return domain.ErrNotRinging
	}
	if callID == "" {
		callID = st.CallID
	}
	o.declineLocked(ctx, callID, "declined")
	return nil
}

func (o *Orchestrator) declineLocked(ctx context.Context, callID, reason string) {
	o.teardownLocked(reason)
	if callID == "" {
		return
	}
	bctx, cancel := o.backendCtx(ctx)
	defer cancel()
	if err := o.backend.DeclineCall(bctx, callID); err != nil {
		l := o.logger(callID)
		l.Warn().Err(err).Msg("backend decline failed, ignored")
	}
}

// EndCall tears the call down and returns once every connection is closed,
// every stream stopped and the store reset. The backend is notified after
// local teardown and its failure is ignored.
func (o *Orchestrator) EndCall(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.endLocked(ctx, "ended", true)
}

func (o *Orchestrator) endLocked(ctx context.Context, reason string, notifyBackend bool) {
	callID := o.store.Snapshot().CallID
	o.teardownLocked(reason)
	if !notifyBackend || callID == "" {
		return
	}
	bctx, cancel := o.backendCtx(ctx)
	defer cancel()
	if err := o.backend.EndCall(bctx, callID); err != nil {
		l := o.logger(callID)
		l.Warn().Err(err).Msg("backend end failed, ignored")
	}
}

// AcceptWaitingCall ends the active call and answers the waiting one.
func (o *Orchestrator) AcceptWaitingCall(ctx context.Context, user domain.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidParams, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Snapshot()
	if st.Waiting == nil {
		return domain.ErrNoWaitingCall
	}
	w := *st.Waiting

	// endLocked returns after teardown completed, so the session can be
	// rebuilt immediately.
	o.endLocked(ctx, "switching to waiting call", true)

	o.store.Mutate(func(s *store.Session) {
		s.CallID = w.CallID
		s.Initiator = false
		s.CallType = w.CallType
		s.Chat = w.Chat
		s.Status = domain.StatusRinging
		s.CurrentUserID = user.ID
		s.ResetParticipants(w.Initiator)
	})
	o.ringUntil = w.ReceivedAt.Add(o.cfg.RingTimeout)
	return o.acceptLocked(ctx, w.CallID, user)
}

// DeclineWaitingCall drops the waiting call without touching the active one.
func (o *Orchestrator) DeclineWaitingCall(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.declineWaitingLocked(ctx)
}

func (o *Orchestrator) declineWaitingLocked(ctx context.Context) {
	w := o.dropWaitingLocked("declined")
	if w == nil {
		return
	}
	bctx, cancel := o.backendCtx(ctx)
	defer cancel()
	if err := o.backend.DeclineCall(bctx, w.CallID); err != nil {
		l := o.logger(w.CallID)
		l.Warn().Err(err).Msg("backend decline of waiting call failed, ignored")
	}
}

// dropWaitingLocked clears the waiting call and returns what was dropped.
func (o *Orchestrator) dropWaitingLocked(reason string) *domain.WaitingCall {
	st := o.store.Snapshot()
	if st.Waiting == nil {
		return nil
	}
	o.disarm(&o.waitTimer)
	o.notifier.StopRingtone(core.RingtoneIncoming)
	o.store.Mutate(func(s *store.Session) { s.Waiting = nil })
	l := o.logger(st.Waiting.CallID)
	l.Info().Str("reason", reason).Msg("waiting call dropped")
	return st.Waiting
}

// armRingingTimeout declines callID if it is still ringing after d.
func (o *Orchestrator) armRingingTimeout(callID string, d time.Duration) {
	o.ringUntil = time.Now().Add(d)
	o.arm(&o.ringTimer, d, func() {
		st := o.store.Snapshot()
		if st.Status != domain.StatusRinging || st.CallID != callID {
			return
		}
		l := o.logger(callID)
		l.Info().Msg("not answered, declining")
		o.declineLocked(context.Background(), callID, "not answered")
	})
}

func (o *Orchestrator) mediaFailed(err error) {
	me := media.Classify(err)
	l := o.logger("")
	l.Warn().Err(err).Str("kind", string(me.Kind)).Msg("media acquisition failed")
	o.notifier.ShowNotification(core.Notification{
		Title: "Call failed",
		Body:  me.UserMessage(),
		Level: core.LevelError,
	})
}

func (o *Orchestrator) mediaWarning(msg string) {
	if msg == "" {
		return
	}
	o.notifier.ShowNotification(core.Notification{
		Title: "Camera unavailable",
		Body:  msg,
		Level: core.LevelWarning,
	})
}

func hasVideo(ms core.MediaStream) bool {
	return ms != nil && len(ms.VideoTracks()) > 0
}
