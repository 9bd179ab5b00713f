package voice

// SegmenterConfig tunes energy-based utterance detection.
type SegmenterConfig struct {
	Format Format
	// EnergyThreshold is the RMS level above which a frame counts as speech.
	EnergyThreshold float64
	// SilenceMs of consecutive quiet audio ends an utterance.
	SilenceMs int
	// MinSpeechMs discards shorter bursts (coughs, clicks).
	MinSpeechMs int
	// MaxUtteranceMs force-cuts long monologues.
	MaxUtteranceMs int
}

// DefaultSegmenterConfig returns thresholds suited to close-talk microphones.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Format:          DefaultFormat(),
		EnergyThreshold: 0.02,
		SilenceMs:       800,
		MinSpeechMs:     250,
		MaxUtteranceMs:  30000,
	}
}

// Segmenter splits a continuous PCM stream into utterances. It is not safe
// for concurrent use.
type Segmenter struct {
	cfg       SegmenterConfig
	buf       []byte
	inSpeech  bool
	speechMs  int
	silenceMs int
}

// NewSegmenter creates a segmenter. Zero fields in cfg take defaults.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	def := DefaultSegmenterConfig()
	if cfg.Format.BytesPerSecond() == 0 {
		cfg.Format = def.Format
	}
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	if cfg.SilenceMs <= 0 {
		cfg.SilenceMs = def.SilenceMs
	}
	if cfg.MinSpeechMs < 0 {
		cfg.MinSpeechMs = 0
	}
	if cfg.MaxUtteranceMs <= 0 {
		cfg.MaxUtteranceMs = def.MaxUtteranceMs
	}
	return &Segmenter{cfg: cfg}
}

// InSpeech reports whether an utterance is currently open.
func (s *Segmenter) InSpeech() bool { return s.inSpeech }

// Write feeds one frame. It returns the completed utterance when the frame
// closes one, and reports whether speech started on this frame.
func (s *Segmenter) Write(frame []byte) (utterance []byte, started bool) {
	ms := s.cfg.Format.DurationMs(len(frame))
	loud := RMSEnergy(frame) >= s.cfg.EnergyThreshold

	if !s.inSpeech {
		if !loud {
			return nil, false
		}
		s.inSpeech = true
		started = true
	}

	s.buf = append(s.buf, frame...)
	if loud {
		s.speechMs += ms
		s.silenceMs = 0
	} else {
		s.silenceMs += ms
	}

	if s.silenceMs >= s.cfg.SilenceMs || s.cfg.Format.DurationMs(len(s.buf)) >= s.cfg.MaxUtteranceMs {
		return s.cut(), started
	}
	return nil, started
}

// Flush closes any open utterance.
func (s *Segmenter) Flush() []byte {
	if !s.inSpeech {
		return nil
	}
	return s.cut()
}

func (s *Segmenter) cut() []byte {
	out := s.buf
	speech := s.speechMs
	s.buf = nil
	s.inSpeech = false
	s.speechMs = 0
	s.silenceMs = 0
	if speech < s.cfg.MinSpeechMs {
		return nil
	}
	return out
}
