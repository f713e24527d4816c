package capture

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockSource is an audio source for testing. It replays queued frames,
// or generates synthetic audio (silence or a sine wave) when the queue
// is empty.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	queued  [][]byte
	stopCh  chan struct{}

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// QueueFrame adds a frame to be returned by Read before any synthetic
// audio is generated.
func (m *MockSource) QueueFrame(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, frame)
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	return nil
}

// Read returns the next frame, pacing synthetic frames at the
// configured buffer duration.
func (m *MockSource) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if !m.running || m.closed {
		m.mu.Unlock()
		return nil, io.EOF
	}
	if len(m.queued) > 0 {
		frame := m.queued[0]
		m.queued = m.queued[1:]
		m.mu.Unlock()
		return frame, nil
	}
	stopCh := m.stopCh
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-stopCh:
		return nil, io.EOF
	case <-time.After(m.cfg.BufferDuration):
		return m.generateFrame(), nil
	}
}

// generateFrame produces one synthetic PCM16 frame.
func (m *MockSource) generateFrame() []byte {
	n := m.cfg.FrameSize()
	frame := make([]byte, n*2)
	if m.frequency == 0 {
		return frame
	}

	m.mu.Lock()
	phase := m.phase
	step := 2 * math.Pi * m.frequency / float64(m.cfg.SampleRate)
	for i := 0; i < n; i++ {
		s := int16(m.amplitude * 32767 * math.Sin(phase))
		frame[i*2] = byte(s)
		frame[i*2+1] = byte(s >> 8)
		phase += step
	}
	m.phase = math.Mod(phase, 2*math.Pi)
	m.mu.Unlock()
	return frame
}

// Stop halts capture.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stopCh)
	}
	return nil
}

// Config returns the capture configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Close releases the source.
func (m *MockSource) Close() error {
	m.Stop()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Source = (*MockSource)(nil)
