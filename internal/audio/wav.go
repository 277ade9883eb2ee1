package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV indicates the input is not a RIFF/WAVE stream.
var ErrNotWAV = errors.New("not a wav file")

// PCM is decoded 16-bit interleaved audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Duration reports the playback length of p.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	return float64(len(p.Samples)/p.Channels) / float64(p.SampleRate)
}

// EncodeWAV writes little-endian s16 PCM bytes as a WAV stream.
func EncodeWAV(w io.WriteSeeker, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%bytesPerSample != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	if channels <= 0 {
		channels = 1
	}

	samples := make([]int, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:])))
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile encodes pcm into a private file at path. A partial file is
// removed on failure.
func WriteWAVFile(path string, pcm []byte, sampleRate int, channels int) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create wav %q: %w", path, err)
	}
	if err := EncodeWAV(file, pcm, sampleRate, channels); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close wav %q: %w", path, err)
	}
	return nil
}

// DecodeWAV reads a PCM WAV stream and normalizes it to 16-bit samples.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, ErrNotWAV
	}

	buffer, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode wav: %w", err)
	}
	if buffer == nil || buffer.Format == nil {
		return PCM{}, fmt.Errorf("decode wav: missing format")
	}

	depth := int(dec.BitDepth)
	samples := make([]int16, len(buffer.Data))
	for i, v := range buffer.Data {
		switch depth {
		case 8:
			samples[i] = int16((v - 128) << 8)
		case 16:
			samples[i] = int16(v)
		case 24:
			samples[i] = int16(v >> 8)
		case 32:
			samples[i] = int16(v >> 16)
		default:
			return PCM{}, fmt.Errorf("unsupported wav bit depth %d", depth)
		}
	}

	return PCM{
		SampleRate: buffer.Format.SampleRate,
		Channels:   buffer.Format.NumChannels,
		Samples:    samples,
	}, nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (PCM, error) {
	file, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer file.Close()
	return DecodeWAV(file)
}
