// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

// User is the local account placing or answering calls.
type User struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	Avatar string        `json:"avatar,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id, name, avatar string) (*User, error) {
	u := &User{ID: CanonicalID(id), Avatar: avatar}
	if err := u.SetName(name); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Name = name
	return nil
}

func (u User) Validate() error {
	switch {
	case u.ID == "":
		return ErrUserIDEmpty
	case len(u.ID) > MaxUserIDLen:
		return ErrUserIDTooLong
	case u.Name == "":
		return ErrUsernameEmpty
	case len(u.Name) > MaxUsernameLen:
		return ErrUsernameTooLong
	}
	return nil
}

// Participant builds the roster entry for the local user.
func (u User) Participant(address string, audio, video bool, stream Stream, at time.Time) Participant {
	return Participant{
		UserID:           u.ID,
		SignalingAddress: address,
		Name:             u.Name,
		Avatar:           u.Avatar,
		AudioEnabled:     audio,
		VideoEnabled:     video,
		Stream:           stream,
		JoinedAt:         at,
	}
}
