// Package inference - Inference engine interface and the detection pipeline.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
	"github.com/nvr-ai/go-yolo-decode/models"
	"github.com/nvr-ai/go-yolo-decode/models/model"
)

// Engine runs a model on one preprocessed input.
type Engine interface {
	// Run executes the model on an NCHW float32 input and returns the outputs
	// in model order. The returned buffers are owned by the caller.
	Run(ctx context.Context, input []float32) ([]tensors.Raw, error)
	Close() error
}

// EngineBuilder builds a Detector with a fluent API.
type EngineBuilder struct {
	engine Engine
	config *model.Config
	labels *models.Labels
	logger *zap.Logger
	err    error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{logger: zap.NewNop()}
}

// WithEngine sets the engine that produces raw outputs.
//
// Arguments:
//   - engine: The engine to use.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithEngine(engine Engine) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if engine == nil {
		b.err = errors.New("engine is nil")
		return b
	}
	b.engine = engine
	return b
}

// WithModel sets the model config.
//
// Arguments:
//   - cfg: The model config.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(cfg model.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.config = &cfg
	return b
}

// WithLabels sets the label set used to name detections.
func (b *EngineBuilder) WithLabels(labels *models.Labels) *EngineBuilder {
	b.labels = labels
	return b
}

// WithLogger sets the logger for the detector and its model.
func (b *EngineBuilder) WithLogger(logger *zap.Logger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the detector and panics if there is an error.
//
// Returns:
//   - *Detector: The detector.
func (b *EngineBuilder) MustBuild() *Detector {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

// Build builds the detector.
//
// Returns:
//   - *Detector: The detector.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Detector, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.engine == nil {
		return nil, errors.New("engine not configured")
	}
	if b.config == nil {
		return nil, errors.New("model not configured")
	}

	m, err := models.NewModel(*b.config, b.logger)
	if err != nil {
		return nil, err
	}
	labels := b.labels
	if labels == nil {
		labels, err = models.LabelsFor(b.config.Family)
		if err != nil {
			return nil, err
		}
	}
	return NewDetector(b.engine, m, labels, b.logger), nil
}
