package classifier

import "context"

// Score is one raw model output: a backend label and its confidence.
type Score struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Version   string   `json:"version"`
	Author    string   `json:"author,omitempty"`
	Labels    []string `json:"labels"`
	InputSize int      `json:"input_size"`
	Source    string   `json:"source"`
}

// Scorer is the opaque scoring backend behind the Engine.
//
// Load is called once. Score must be safe for concurrent use after a
// successful Load and returns scores sorted by confidence, highest first.
type Scorer interface {
	Load(ctx context.Context) (ModelInfo, error)
	Score(input []float32) ([]Score, error)
	Close() error
}
