package lipsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/analysis"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/metrics"
	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
)

const (
	// realtimeGain maps analyzer volume to mouth intensity at 100% sensitivity.
	realtimeGain = 2.0
	// noiseWindow is the number of frames the noise floor looks back over.
	noiseWindow = 90
)

// session is one realtime analysis run over an exclusively owned source.
type session struct {
	id       string
	engine   *Engine
	src      audio.Source
	spectrum *analysis.Spectrum
	analyzer *analysis.Analyzer
	noise    *noiseFloor
	logger   zerolog.Logger
	handle   scheduler.Handle

	sampleRate int
	mags       []uint8
	prev       rig.Params

	mu       sync.Mutex
	vowel    phoneme.Vowel
	stopOnce sync.Once
}

func newSession(e *Engine, src audio.Source, s Settings) *session {
	cfg := e.analyzerCfg
	cfg.SampleRate = int(src.SampleRate())
	cfg.VolumeThreshold = s.RealtimeThreshold

	id := uuid.New().String()
	return &session{
		id:         id,
		engine:     e,
		src:        src,
		spectrum:   analysis.NewSpectrum(cfg),
		analyzer:   analysis.NewAnalyzer(cfg),
		noise:      newNoiseFloor(noiseWindow),
		logger:     e.logger.With().Str("session_id", id).Logger(),
		sampleRate: cfg.SampleRate,
		vowel:      phoneme.Silence,
	}
}

func (s *session) started() {
	metrics.RealtimeSessions.Inc()
	s.logger.Info().Int("sample_rate", s.sampleRate).Msg("Realtime session started")
	s.engine.events.Publish(bus.Event{Type: bus.EventTypeRealtimeStarted, Data: map[string]any{"session_id": s.id}})
}

// consume feeds captured buffers into the spectrum until the source closes.
func (s *session) consume(samples <-chan []float32) {
	for buf := range samples {
		s.spectrum.Write(buf)
	}
	s.engine.endSession(s, "source closed")
}

// tick analyses the current spectrum and emits one frame.
func (s *session) tick(now time.Time) error {
	settings := s.engine.Settings()

	s.mags = s.spectrum.ByteFrequencyData(s.mags)
	if settings.AutoOptimize {
		s.analyzer.SetVolumeThreshold(s.noise.threshold(settings.RealtimeThreshold))
	} else {
		s.analyzer.SetVolumeThreshold(settings.RealtimeThreshold)
	}
	res := s.analyzer.Analyze(s.mags, s.sampleRate, s.spectrum.BinCount())
	if settings.AutoOptimize {
		s.noise.observe(res.Volume)
	}

	vowel := s.classify(res, settings.MinConfidence)
	metrics.AnalyzedFrames.WithLabelValues(string(vowel)).Inc()

	intensity := 0.0
	if !vowel.IsSilence() {
		intensity = res.Volume * settings.Sensitivity / 100 * realtimeGain
		if intensity > 1 {
			intensity = 1
		}
	}
	target := s.engine.table.ParametersFor(vowel, intensity)
	if s.prev == nil {
		s.prev = s.engine.table.Silence()
	}
	s.prev = analysis.Smooth(target, s.prev, settings.SmoothingWeight())

	s.engine.emitRealtime(s.prev)
	return nil
}

// classify keeps the previous vowel when the new one is not confident enough
// and publishes vowel changes.
func (s *session) classify(res analysis.Result, minConfidence float64) phoneme.Vowel {
	s.mu.Lock()
	prev := s.vowel
	next := res.Vowel
	if !next.IsSilence() && res.Confidence < minConfidence && !prev.IsSilence() {
		next = prev
	}
	s.vowel = next
	s.mu.Unlock()

	if next != prev {
		s.engine.events.Publish(bus.Event{Type: bus.EventTypeVowelDetected, Data: map[string]any{
			"session_id": s.id,
			"vowel":      string(next),
			"confidence": res.Confidence,
			"volume":     res.Volume,
		}})
	}
	return next
}

func (s *session) lastVowel() phoneme.Vowel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vowel
}

// stop releases the source and closes the mouth. It is safe to call twice.
func (s *session) stop(reason string) {
	s.stopOnce.Do(func() {
		s.engine.sched.Cancel(s.handle)
		if err := s.src.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("Audio source stop reported an error")
		}
		s.engine.gw.Apply(s.engine.table.Silence(), rig.SourceLipSync)

		metrics.RealtimeSessions.Dec()
		s.logger.Info().Str("reason", reason).Msg("Realtime session stopped")
		s.engine.events.Publish(bus.Event{Type: bus.EventTypeRealtimeStopped, Data: map[string]any{"session_id": s.id, "reason": reason}})
	})
}

func (s *session) fail(err error) {
	s.logger.Error().Err(err).Msg("Realtime analysis halted by failing tick")
	s.engine.endSession(s, "tick failed")
}
