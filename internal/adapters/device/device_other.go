//go:build !linux

package device

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

// Devices has no capture drivers on this platform.
type Devices struct{}

func New(int) (*Devices, error) { return &Devices{}, nil }

func (d *Devices) Codecs() CodecRegistrar { return nil }

func (d *Devices) GetUserMedia(context.Context, core.Constraints) (core.MediaStream, error) {
	return nil, fmt.Errorf("%w: capture unsupported on %s", domain.ErrDeviceNotFound, runtime.GOOS)
}

func (d *Devices) GetDisplayMedia(context.Context) (core.MediaStream, error) {
	return nil, fmt.Errorf("%w: screen capture unsupported on %s", domain.ErrDeviceNotFound, runtime.GOOS)
}
