//go:build linux

package device

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// track wraps a mediadevices track. Disabling it keeps the sender but
// replaces frames with black video or silence.
type track struct {
	t mediadevices.Track

	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded func()
	ended   sync.Once
}

func newTrack(t mediadevices.Track) *track {
	tr := &track{t: t}
	tr.enabled.Store(true)

	switch mt := t.(type) {
	case *mediadevices.VideoTrack:
		mt.Transform(tr.videoGate)
	case *mediadevices.AudioTrack:
		mt.Transform(tr.audioGate)
	}

	t.OnEnded(func(err error) {
		if tr.stopped.Load() {
			return
		}
		log.Info().Str("module", "adapters.device").Str("track", t.ID()).AnErr("cause", err).Msg("capture ended")
		tr.ended.Do(func() {
			tr.mu.Lock()
			fn := tr.onEnded
			tr.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	})
	return tr
}

func (tr *track) ID() string                    { return tr.t.ID() }
func (tr *track) Kind() webrtc.RTPCodecType     { return tr.t.Kind() }
func (tr *track) Enabled() bool                 { return tr.enabled.Load() }
func (tr *track) SetEnabled(v bool)             { tr.enabled.Store(v) }
func (tr *track) TrackLocal() webrtc.TrackLocal { return tr.t }

func (tr *track) OnEnded(fn func()) {
	tr.mu.Lock()
	tr.onEnded = fn
	tr.mu.Unlock()
}

func (tr *track) Stop() {
	if !tr.stopped.CompareAndSwap(false, true) {
		return
	}
	if err := tr.t.Close(); err != nil {
		log.Debug().Str("module", "adapters.device").Str("track", tr.t.ID()).Err(err).Msg("close track")
	}
}

func (tr *track) videoGate(r video.Reader) video.Reader {
	return video.ReaderFunc(func() (image.Image, func(), error) {
		img, release, err := r.Read()
		if err != nil || tr.enabled.Load() {
			return img, release, err
		}
		if release != nil {
			release()
		}
		return black(img.Bounds()), func() {}, nil
	})
}

func (tr *track) audioGate(r audio.Reader) audio.Reader {
	return audio.ReaderFunc(func() (wave.Audio, func(), error) {
		chunk, release, err := r.Read()
		if err != nil || tr.enabled.Load() {
			return chunk, release, err
		}
		if release != nil {
			release()
		}
		return wave.NewInt16Interleaved(chunk.ChunkInfo()), func() {}, nil
	})
}

func black(b image.Rectangle) image.Image {
	img := image.NewYCbCr(b, image.YCbCrSubsampleRatio420)
	for i := range img.Cb {
		img.Cb[i] = 128
	}
	for i := range img.Cr {
		img.Cr[i] = 128
	}
	return img
}
