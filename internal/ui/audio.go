package ui

import (
	"encoding/binary"
	"time"

	"github.com/dmgcore/gbdmg/internal/system"
	"github.com/hajimehoshi/ebiten/v2/audio"
)

type audioContext = audio.Context
type audioPlayer = audio.Player

const sampleRate = 48000

// startAudio wires an apuStream into an Ebiten audio player so AudioSamples
// output reaches the host's speakers.
func (a *App) startAudio() {
	a.audioCtx = audio.NewContext(sampleRate)
	a.audioSrc = &apuStream{sys: a.sys, mono: !a.cfg.AudioStereo, muted: &a.audioMuted, lowLatency: a.cfg.AudioLowLatency}
	p, err := a.audioCtx.NewPlayer(a.audioSrc)
	if err != nil {
		return
	}
	a.audioPlayer = p
	a.applyPlayerBufferSize()
	a.audioPlayer.Play()
}

// applyPlayerBufferSize sets the audio player's internal buffer to a small size for low latency.
// Ebiten exposes Player.SetBufferSize; we pick:
// - ~20ms in low-latency (or during fast-forward)
// - ~40ms otherwise
func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	bufMs := 40
	if a.cfg.AudioLowLatency || a.fast {
		bufMs = 20
	}
	a.audioPlayer.SetBufferSize(time.Duration(bufMs) * time.Millisecond)
}

// apuStream implements io.Reader by pulling PCM samples from the System's
// APU and converting them to 16-bit little-endian stereo frames.
type apuStream struct {
	sys        *system.System
	mono       bool
	muted      *bool
	lowLatency bool
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) == 0 || s == nil || s.sys == nil {
		return 0, nil
	}
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if s.muted != nil && *s.muted {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	want := len(p) / 4
	capFrames := 2048 // ~42.7ms at 48kHz
	if s.lowLatency {
		capFrames = 1024 // ~21.3ms
	}
	if want > capFrames {
		want = capFrames
	}

	frames := s.sys.AudioSamples(want)
	i := 0
	for j := 0; j+1 < len(frames) && i+3 < len(p); j += 2 {
		l, r := frames[j], frames[j+1]
		if s.mono {
			mid := int16((int32(l) + int32(r)) / 2)
			binary.LittleEndian.PutUint16(p[i:], uint16(mid))
			binary.LittleEndian.PutUint16(p[i+2:], uint16(mid))
		} else {
			binary.LittleEndian.PutUint16(p[i:], uint16(l))
			binary.LittleEndian.PutUint16(p[i+2:], uint16(r))
		}
		i += 4
	}
	for ; i+3 < len(p); i += 4 {
		binary.LittleEndian.PutUint16(p[i:], 0)
		binary.LittleEndian.PutUint16(p[i+2:], 0)
	}
	return len(p), nil
}
