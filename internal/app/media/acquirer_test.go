package media

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/VoiceClient/internal/core/corefake"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAudioOnly(t *testing.T) {
	dev := &corefake.Devices{}
	res, err := NewAcquirer(dev, DefaultOptions()).Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, res.Stream.AudioTracks(), 1)
	assert.Empty(t, res.Stream.VideoTracks())
	assert.False(t, res.VideoFallback)
	require.Len(t, dev.Requests, 1)
	assert.Nil(t, dev.Requests[0].Video)
	assert.True(t, dev.Requests[0].Audio.EchoCancellation)
}

func TestAcquireVideoUsesConfiguredConstraints(t *testing.T) {
	dev := &corefake.Devices{}
	opts := DefaultOptions()
	res, err := NewAcquirer(dev, opts).Acquire(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, res.Stream.VideoTracks(), 1)
	require.NotNil(t, dev.Requests[0].Video)
	assert.Equal(t, 1280, dev.Requests[0].Video.Width)
	assert.Equal(t, 720, dev.Requests[0].Video.Height)
	assert.InDelta(t, 30, dev.Requests[0].Video.FrameRate, 0.001)
}

func TestAcquireFallsBackToAudioWhenCameraFails(t *testing.T) {
	dev := &corefake.Devices{VideoErr: fmt.Errorf("open camera: %w", domain.ErrDeviceBusy)}
	res, err := NewAcquirer(dev, DefaultOptions()).Acquire(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.VideoFallback)
	assert.Contains(t, res.Warning, "audio only")
	assert.Empty(t, res.Stream.VideoTracks())
	assert.Len(t, dev.Requests, 2)
}

func TestAcquireClassifiesTotalFailure(t *testing.T) {
	cases := map[ErrorKind]error{
		KindDeviceNotFound:           domain.ErrDeviceNotFound,
		KindPermissionDenied:         domain.ErrPermissionDenied,
		KindDeviceBusy:               domain.ErrDeviceBusy,
		KindConstraintsUnsatisfiable: domain.ErrConstraintsUnsatisfiable,
		KindOther:                    errors.New("boom"),
	}
	messages := map[string]bool{}
	for kind, cause := range cases {
		t.Run(string(kind), func(t *testing.T) {
			dev := &corefake.Devices{AudioErr: cause}
			_, err := NewAcquirer(dev, DefaultOptions()).Acquire(context.Background(), false)
			require.Error(t, err)

			var me *Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, kind, me.Kind)
			assert.ErrorIs(t, err, sentinels[kind])
			messages[me.UserMessage()] = true
		})
	}
	assert.Len(t, messages, len(cases), "every kind has its own message")
}

func TestAcquireDisplay(t *testing.T) {
	dev := &corefake.Devices{}
	ms, err := NewAcquirer(dev, DefaultOptions()).AcquireDisplay(context.Background())
	require.NoError(t, err)
	assert.Len(t, ms.VideoTracks(), 1)

	dev.DisplayErr = fmt.Errorf("portal: %w", domain.ErrPermissionDenied)
	_, err = NewAcquirer(dev, DefaultOptions()).AcquireDisplay(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestClassifyKeepsExistingError(t *testing.T) {
	orig := &Error{Kind: KindDeviceBusy}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
	assert.Nil(t, Classify(nil))
}
