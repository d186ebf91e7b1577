package models

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo-decode/models/model"
	"github.com/nvr-ai/go-yolo-decode/models/yolov8"
)

// ErrUnsupportedModel is returned by NewModel for unknown model names.
var ErrUnsupportedModel = errors.New("unsupported model name")

// NewModel creates a new detection model instance based on the configured model name.
//
// This factory function is the primary entry point for model creation,
// routing requests to the model-specific constructors behind the model.Model
// interface.
//
// Arguments:
//   - cfg: The model config.
//   - logger: The logger passed to the model, or nil for none.
//
// Returns:
//   - model.Model: A fully configured model instance.
//   - error: An error if the model name is unsupported or the config is invalid.
//
// Example:
//
// ```go
//
//	cfg, err := model.LoadConfig("yolov8n.yaml")
//	if err != nil {
//	    log.Fatalf("Failed to load config: %v", err)
//	}
//
//	m, err := NewModel(cfg, logger)
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(cfg model.Config, logger *zap.Logger) (model.Model, error) {
	switch cfg.Name {
	case model.ModelNameYOLOv8, model.ModelNameYOLO11:
		m, err := yolov8.NewModel(cfg, yolov8.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedModel, "%q", cfg.Name)
	}
}
