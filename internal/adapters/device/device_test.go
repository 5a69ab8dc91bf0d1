package device

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/dkeye/VoiceClient/internal/core/corefake"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(fmt.Errorf("open /dev/video0: %w", syscall.EBUSY)), domain.ErrDeviceBusy)
	assert.ErrorIs(t, classify(os.ErrPermission), domain.ErrPermissionDenied)
	assert.ErrorIs(t, classify(fmt.Errorf("open: %w", os.ErrNotExist)), domain.ErrDeviceNotFound)
	assert.ErrorIs(t, classify(errors.New("failed to find the best driver that fits the constraints")), domain.ErrConstraintsUnsatisfiable)

	plain := errors.New("weird")
	assert.Equal(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

func TestStreamSplitsTracksByKind(t *testing.T) {
	a := corefake.NewTrack(webrtc.RTPCodecTypeAudio)
	v := corefake.NewTrack(webrtc.RTPCodecTypeVideo)
	s := NewStream("s1", a, v)

	assert.Equal(t, "s1", s.ID())
	assert.Len(t, s.Tracks(), 2)
	assert.Equal(t, a.ID(), s.AudioTracks()[0].ID())
	assert.Equal(t, v.ID(), s.VideoTracks()[0].ID())

	s.Stop()
	assert.True(t, a.Stopped())
	assert.True(t, v.Stopped())
}
