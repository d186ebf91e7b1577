package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/models"
	"github.com/nvr-ai/go-yolo-decode/models/model"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

// Object is a detection with its class label resolved.
type Object struct {
	postprocess.Detection
	Label string `json:"label"`
}

// Detector drives an engine and decodes its outputs. It holds no per-call
// state and may be used from several goroutines if the engine allows it.
type Detector struct {
	engine Engine
	model  model.Model
	labels *models.Labels
	logger *zap.Logger
}

// NewDetector creates a detector.
//
// Arguments:
//   - engine: The engine producing raw outputs.
//   - m: The model decoding the outputs.
//   - labels: The label set, or nil to report UnknownLabel.
//   - logger: The logger, or nil for none.
//
// Returns:
//   - *Detector: The detector.
func NewDetector(engine Engine, m model.Model, labels *models.Labels, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{engine: engine, model: m, labels: labels, logger: logger}
}

// Model returns the decoding model.
func (d *Detector) Model() model.Model {
	return d.model
}

// Detect runs the engine on a preprocessed input and decodes the result.
//
// Arguments:
//   - ctx: The context for the engine call.
//   - input: The NCHW float32 model input.
//   - lb: The letterbox used to build input.
//
// Returns:
//   - postprocess.DetectionList: The detections in original-image pixels.
//   - error: An error if the engine fails or its outputs do not fit the model.
func (d *Detector) Detect(ctx context.Context, input []float32, lb images.Letterbox) (postprocess.DetectionList, error) {
	outputs, err := d.engine.Run(ctx, input)
	if err != nil {
		return postprocess.DetectionList{}, errors.Wrap(err, "run engine")
	}
	list, err := d.model.PostProcess(outputs, lb)
	if err != nil {
		return postprocess.DetectionList{}, errors.Wrap(err, "post-process")
	}
	d.logger.Debug("detect", zap.Int("detections", list.Count))
	return list, nil
}

// DetectImage letterboxes an image to the model input, runs the engine and
// returns labelled detections in the image's pixel space.
//
// Arguments:
//   - ctx: The context for the engine call.
//   - img: The source image.
//
// Returns:
//   - []Object: The labelled detections by descending score.
//   - error: An error if preprocessing, the engine or decoding fails.
func (d *Detector) DetectImage(ctx context.Context, img image.Image) ([]Object, error) {
	opts := d.model.Options()
	boxed, lb, err := images.ApplyLetterbox(img, opts.InputWidth, opts.InputHeight, images.DefaultPadColor)
	if err != nil {
		return nil, err
	}
	input := make([]float32, 3*opts.InputWidth*opts.InputHeight)
	if err := PrepareInput(boxed, input); err != nil {
		return nil, err
	}

	list, err := d.Detect(ctx, input, lb)
	if err != nil {
		return nil, err
	}
	return d.Label(list), nil
}

// Label attaches class names to detections.
func (d *Detector) Label(list postprocess.DetectionList) []Object {
	return LabelDetections(list, d.labels)
}

// LabelDetections attaches names from labels to detections. A nil label set
// names every detection UnknownLabel.
func LabelDetections(list postprocess.DetectionList, labels *models.Labels) []Object {
	objects := make([]Object, len(list.Results))
	for i, det := range list.Results {
		objects[i] = Object{Detection: det, Label: labels.Name(det.Class)}
	}
	return objects
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
