package classifier

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/soilnet-go/internal/errors"
)

// MockScorer is a deterministic Scorer for tests and model-less runs.
// Score returns Scores (sorted highest first) unless ScoreFunc is set.
type MockScorer struct {
	Scores    []Score
	ScoreFunc func(input []float32) ([]Score, error)
	Info      ModelInfo
	LoadErr   error
	LoadDelay time.Duration

	mu     sync.Mutex
	loaded bool
	closed bool
	loads  atomic.Int32
	calls  atomic.Int32
}

// NewMockScorer returns a mock that always answers with scores.
func NewMockScorer(scores ...Score) *MockScorer {
	return &MockScorer{
		Scores: scores,
		Info: ModelInfo{
			Version:   "mock",
			Labels:    slices.Clone(DefaultLabels),
			InputSize: 224,
			Source:    "mock",
		},
	}
}

// Load waits LoadDelay, honoring ctx, then returns LoadErr or Info.
func (m *MockScorer) Load(ctx context.Context) (ModelInfo, error) {
	m.loads.Add(1)
	if m.LoadDelay > 0 {
		timer := time.NewTimer(m.LoadDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ModelInfo{}, ctx.Err()
		case <-timer.C:
		}
	}
	if m.LoadErr != nil {
		return ModelInfo{}, m.LoadErr
	}
	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()
	return m.Info, nil
}

// Score returns the configured scores.
func (m *MockScorer) Score(input []float32) ([]Score, error) {
	m.calls.Add(1)
	m.mu.Lock()
	loaded, closed := m.loaded, m.closed
	m.mu.Unlock()
	if !loaded || closed {
		return nil, errors.ErrModelNotLoaded
	}
	if m.ScoreFunc != nil {
		return m.ScoreFunc(input)
	}
	return slices.Clone(m.Scores), nil
}

// Close marks the mock closed.
func (m *MockScorer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Loads returns how many times Load was called.
func (m *MockScorer) Loads() int { return int(m.loads.Load()) }

// Calls returns how many times Score was called.
func (m *MockScorer) Calls() int { return int(m.calls.Load()) }

// Closed reports whether Close was called.
func (m *MockScorer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
