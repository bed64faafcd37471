package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/wav"
)

// SamplesToWAV encodes float32 PCM samples as a 16-bit mono WAV byte slice.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(val))
	}

	return buf
}

// Silence returns a WAV clip of ms milliseconds of silence.
func Silence(ms, sampleRate int) []byte {
	return SamplesToWAV(make([]float32, sampleRate*ms/1000), sampleRate)
}

// Stats summarizes a recorded clip.
type Stats struct {
	Duration   time.Duration
	SampleRate int
	// RMS is the root-mean-square level normalized to [0, 1].
	RMS float64
}

var ErrInvalidWAV = errors.New("invalid wav data")

// Analyze decodes a PCM WAV clip and measures its duration and level.
func Analyze(data []byte) (Stats, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Stats{}, ErrInvalidWAV
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Stats{}, fmt.Errorf("decode pcm: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.SampleRate == 0 {
		return Stats{}, ErrInvalidWAV
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	frames := len(buf.Data) / channels

	st := Stats{
		SampleRate: buf.Format.SampleRate,
		Duration:   time.Duration(frames) * time.Second / time.Duration(buf.Format.SampleRate),
	}
	if len(buf.Data) == 0 {
		return st, nil
	}

	bitDepth := int(d.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	full := math.Pow(2, float64(bitDepth-1))

	var sum float64
	for _, v := range buf.Data {
		f := float64(v) / full
		sum += f * f
	}
	st.RMS = math.Sqrt(sum / float64(len(buf.Data)))
	return st, nil
}

// Gate drops recordings whose level never rises above Threshold.
type Gate struct {
	Threshold float64
}

// Silent reports whether st falls below the gate. A zero threshold never gates.
func (g Gate) Silent(st Stats) bool {
	if g.Threshold <= 0 {
		return false
	}
	return st.RMS < g.Threshold
}
