// Package model - Shared definitions for detection models and their decode settings.
package model

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv8 is the name of the YOLOv8 DFL-head model.
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameYOLO11 is the name of the YOLO11 model, which shares the YOLOv8 head.
	ModelNameYOLO11 Name = "yolo11"
)

// Defaults of the reference detector build.
const (
	DefaultInputSize           = 640
	DefaultNumClasses          = 80
	DefaultConfidenceThreshold = 0.25
	DefaultNMSThreshold        = 0.45
	DefaultMaxDetections       = 128
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid model config")

// Config is a model with its decode settings.
type Config struct {
	Name                Name                   `json:"name" yaml:"name"`
	Family              Family                 `json:"family" yaml:"family"`
	Path                string                 `json:"path" yaml:"path"`
	Labels              string                 `json:"labels" yaml:"labels"`
	Precision           Precision              `json:"precision" yaml:"precision"`
	InputWidth          int                    `json:"input_width" yaml:"input_width"`
	InputHeight         int                    `json:"input_height" yaml:"input_height"`
	NumClasses          int                    `json:"num_classes" yaml:"num_classes"`
	ConfidenceThreshold float32                `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 *postprocess.NMSConfig `json:"nms" yaml:"nms"`
	MaxDetections       int                    `json:"max_detections" yaml:"max_detections"`
}

// DefaultConfig returns the settings of an 80-class COCO YOLOv8 at 640x640.
func DefaultConfig() Config {
	return Config{
		Name:                ModelNameYOLOv8,
		Family:              ModelFamilyYOLO,
		Precision:           PrecisionINT8,
		InputWidth:          DefaultInputSize,
		InputHeight:         DefaultInputSize,
		NumClasses:          DefaultNumClasses,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMS:                 &postprocess.NMSConfig{IoUThreshold: DefaultNMSThreshold, ClassAware: true},
		MaxDetections:       DefaultMaxDetections,
	}
}

// Validate checks the constraints the decoder relies on.
//
// Returns:
//   - error: ErrInvalidConfig describing the first violated constraint.
func (c Config) Validate() error {
	switch {
	case c.InputWidth <= 0 || c.InputHeight <= 0:
		return errors.Wrapf(ErrInvalidConfig, "input size %dx%d must be positive", c.InputWidth, c.InputHeight)
	case c.NumClasses < 1:
		return errors.Wrapf(ErrInvalidConfig, "num_classes %d must be >= 1", c.NumClasses)
	case !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1):
		return errors.Wrapf(ErrInvalidConfig, "confidence_threshold %v must be in [0, 1]", c.ConfidenceThreshold)
	case c.NMS == nil:
		return errors.Wrap(ErrInvalidConfig, "nms is required")
	case !(c.NMS.IoUThreshold >= 0 && c.NMS.IoUThreshold <= 1):
		return errors.Wrapf(ErrInvalidConfig, "nms.iou_threshold %v must be in [0, 1]", c.NMS.IoUThreshold)
	case c.MaxDetections < 1:
		return errors.Wrapf(ErrInvalidConfig, "max_detections %d must be >= 1", c.MaxDetections)
	}
	if _, err := c.Precision.DType(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a YAML config file on top of DefaultConfig and validates it.
//
// Arguments:
//   - path: The YAML file path.
//
// Returns:
//   - Config: The merged config.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes on top of DefaultConfig and validates them.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Model decodes raw engine outputs into detections.
type Model interface {
	Options() Config
	PostProcess(outputs []tensors.Raw, lb images.Letterbox) (postprocess.DetectionList, error)
}
