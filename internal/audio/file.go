package audio

import (
	"context"
	"sync"
	"time"
)

// FileSource replays decoded PCM as if it were captured live, one buffer per
// buffer duration. With pacing disabled buffers are delivered as fast as the
// consumer reads them.
type FileSource struct {
	mu         sync.Mutex
	pcm        *PCM
	bufferSize int
	paced      bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewFileSource wraps pcm. bufferSize is the number of samples per buffer.
func NewFileSource(pcm *PCM, bufferSize int, paced bool) *FileSource {
	if bufferSize <= 0 {
		bufferSize = DefaultConfig().BufferSize
	}
	return &FileSource{pcm: pcm, bufferSize: bufferSize, paced: paced}
}

// SampleRate returns the file sample rate.
func (f *FileSource) SampleRate() float64 {
	return f.pcm.SampleRate
}

// Start begins replay.
func (f *FileSource) Start(ctx context.Context) (<-chan []float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})

	out := make(chan []float32)
	go f.replay(ctx, out, f.done)
	return out, nil
}

func (f *FileSource) replay(ctx context.Context, out chan<- []float32, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	var ticker *time.Ticker
	if f.paced && f.pcm.SampleRate > 0 {
		interval := time.Duration(float64(f.bufferSize) / f.pcm.SampleRate * float64(time.Second))
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	samples := f.pcm.Samples
	for start := 0; start < len(samples); start += f.bufferSize {
		end := start + f.bufferSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := make([]float32, end-start)
		copy(chunk, samples[start:end])

		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Stop ends replay and waits for the stream to close.
func (f *FileSource) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return ErrNotRunning
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done
	return nil
}
