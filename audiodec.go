package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var errUnsupportedFormat = errors.New("unsupported audio format")

// decodeAudioFile sniffs the container and decodes it to 16 kHz mono.
// Returns errUnsupportedFormat for anything it can't recognize.
func decodeAudioFile(filePath string) ([]float32, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(magic, []byte("RIFF")):
		return decodeWAV(f)
	case bytes.HasPrefix(magic, []byte("OggS")):
		// Telegram voice notes are Opus, other ogg files are mostly Vorbis.
		samples, err := decodeOggOpus(f)
		if err == nil {
			return samples, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return decodeOggVorbis(f)
	case bytes.HasPrefix(magic, []byte("ID3")),
		len(magic) >= 2 && magic[0] == 0xff && magic[1]&0xe0 == 0xe0:
		return decodeMP3(f)
	}
	return nil, errUnsupportedFormat
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("can't read wav data: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, errors.New("empty wav file")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	x := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		x[i] = float32(math.Max(-1, math.Min(1, float64(v)*scale)))
	}

	channels, sampleRate := int(dec.NumChans), int(dec.SampleRate)
	if buf.Format != nil {
		channels, sampleRate = buf.Format.NumChannels, buf.Format.SampleRate
	}
	return toMono16k(x, channels, sampleRate), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("can't open mp3: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("can't decode mp3: %w", err)
	}
	// go-mp3 always outputs 16-bit little endian stereo.
	x := int16LEToFloat32(raw.Bytes())
	return toMono16k(x, 2, dec.SampleRate()), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("can't decode ogg vorbis: %w", err)
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg vorbis stream")
	}
	return toMono16k(pcm, format.Channels, format.SampleRate), nil
}

func int16LEToFloat32(b []byte) []float32 {
	x := make([]float32, len(b)/2)
	for i := range x {
		x[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return x
}

func toMono16k(x []float32, channels, sampleRate int) []float32 {
	if channels > 1 {
		x = downmix(x, channels)
	}
	if sampleRate <= 0 {
		sampleRate = whisperSampleRate
	}
	return resampleLinear(x, sampleRate, whisperSampleRate)
}

// downmix averages interleaved channels into one.
func downmix(in []float32, channels int) []float32 {
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(inRate) / float64(outRate)
	out := make([]float32, int(math.Ceil(float64(len(in))/ratio)))
	for i := range out {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
