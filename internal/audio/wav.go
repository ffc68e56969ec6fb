package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// PCM is decoded mono audio.
type PCM struct {
	SampleRate float64
	Samples    []float32
}

// Duration returns the length in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / p.SampleRate
}

// ReadWAVFile loads and decodes a WAV file.
func ReadWAVFile(path string) (*PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseWAV(data)
}

// ParseWAV decodes 8/16-bit integer or 32-bit float PCM and mixes it to mono.
func ParseWAV(data []byte) (*PCM, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("%w: file too small to be a valid WAV", ErrInvalidFormat)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidFormat)
	}

	var (
		format        uint16
		channels      int
		sampleRate    uint32
		bitsPerSample int
		body          []byte
	)
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		start := pos + 8
		end := start + size
		if end > len(data) {
			end = len(data)
		}

		switch chunkID {
		case "fmt ":
			if end-start < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidFormat)
			}
			format = binary.LittleEndian.Uint16(data[start : start+2])
			channels = int(binary.LittleEndian.Uint16(data[start+2 : start+4]))
			sampleRate = binary.LittleEndian.Uint32(data[start+4 : start+8])
			bitsPerSample = int(binary.LittleEndian.Uint16(data[start+14 : start+16]))
		case "data":
			body = data[start:end]
		}

		pos = start + size
		if pos%2 != 0 {
			pos++ // word alignment
		}
	}

	if sampleRate == 0 || channels == 0 || body == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrInvalidFormat)
	}

	samples, err := DecodePCM(body, format, bitsPerSample)
	if err != nil {
		return nil, err
	}
	return &PCM{SampleRate: float64(sampleRate), Samples: Downmix(samples, channels)}, nil
}

// DecodePCM converts interleaved little-endian samples to float32 in [-1,1].
// format is the WAVE format tag: 1 for integer PCM, 3 for IEEE float.
func DecodePCM(data []byte, format uint16, bitsPerSample int) ([]float32, error) {
	switch {
	case format == 1 && bitsPerSample == 16:
		out := make([]float32, len(data)/2)
		for i := range out {
			sample := int16(binary.LittleEndian.Uint16(data[2*i:]))
			out[i] = float32(sample) / 32768.0
		}
		return out, nil
	case format == 1 && bitsPerSample == 8:
		out := make([]float32, len(data))
		for i, b := range data {
			out[i] = (float32(b) - 128.0) / 128.0
		}
		return out, nil
	case format == 3 && bitsPerSample == 32:
		out := make([]float32, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrInvalidFormat, format, bitsPerSample)
	}
}

// Downmix averages interleaved frames into a new mono buffer.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// EncodeWAV writes mono 16-bit PCM. It is the inverse of ParseWAV for test
// fixtures and exported recordings.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[44+2*i:], uint16(int16(s*32767)))
	}
	return buf
}
