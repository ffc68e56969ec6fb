package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWAV_RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.25, -1}
	pcm, err := ParseWAV(EncodeWAV(samples, 16000))
	require.NoError(t, err)

	assert.Equal(t, 16000.0, pcm.SampleRate)
	require.Len(t, pcm.Samples, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], pcm.Samples[i], 1.0/16000, "sample %d", i)
	}
	assert.InDelta(t, 5.0/16000, pcm.Duration(), 1e-12)
}

func TestParseWAV_Rejects(t *testing.T) {
	valid := EncodeWAV(make([]float32, 10), 8000)

	notRIFF := append([]byte{}, valid...)
	copy(notRIFF[0:4], "RIFX")

	float64Bits := append([]byte{}, valid...)
	float64Bits[20] = 3  // IEEE float
	float64Bits[34] = 64 // bits per sample

	tests := []struct {
		name string
		data []byte
	}{
		{"short", valid[:20]},
		{"not riff", notRIFF},
		{"unsupported encoding", float64Bits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWAV(tt.data)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestDownmix(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	assert.Equal(t, []float32{0.5, 0.5, 0}, Downmix(stereo, 2))

	mono := []float32{0.1, 0.2}
	out := Downmix(mono, 1)
	out[0] = 9
	assert.Equal(t, float32(0.1), mono[0], "mono input is copied")
}

func TestFileSource_DeliversAllBuffers(t *testing.T) {
	pcm := &PCM{SampleRate: 100, Samples: make([]float32, 25)}
	src := NewFileSource(pcm, 10, false)

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	_, err = src.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	var sizes []int
	for buf := range ch {
		sizes = append(sizes, len(buf))
	}
	assert.Equal(t, []int{10, 10, 5}, sizes)

	require.NoError(t, src.Stop())
	assert.ErrorIs(t, src.Stop(), ErrNotRunning)
}

func TestFileSource_StopInterruptsReplay(t *testing.T) {
	pcm := &PCM{SampleRate: 100, Samples: make([]float32, 1000)}
	src := NewFileSource(pcm, 10, true)

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	<-ch

	stopped := make(chan error, 1)
	go func() { stopped <- src.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	for range ch {
	}
}
