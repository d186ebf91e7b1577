package yolov8

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/inference/quant"
	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
	"github.com/nvr-ai/go-yolo-decode/models/model"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

// Branches is the number of detection scales of the head.
const Branches = 3

// YOLOv8 is the instance of the YOLOv8 model post-processor. It is
// immutable after construction and safe for concurrent use.
type YOLOv8 struct {
	options model.Config
	params  Params
	dtype   tensors.DType
	logger  *zap.Logger
}

// Option configures a YOLOv8 instance.
type Option func(*YOLOv8)

// WithLogger sets the logger used for debug stage counts.
func WithLogger(l *zap.Logger) Option {
	return func(m *YOLOv8) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewModel creates a new model.
//
// Arguments:
//   - cfg: The model config.
//   - opts: Optional settings.
//
// Returns:
//   - The model.
//   - error: An error if the config is invalid.
func NewModel(cfg model.Config, opts ...Option) (*YOLOv8, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dtype, err := cfg.Precision.DType()
	if err != nil {
		return nil, err
	}

	m := &YOLOv8{
		options: cfg,
		params: Params{
			ConfThreshold: cfg.ConfidenceThreshold,
			NMSThreshold:  cfg.NMS.IoUThreshold,
			NumClasses:    cfg.NumClasses,
			MaxDetections: cfg.MaxDetections,
			InputWidth:    cfg.InputWidth,
			InputHeight:   cfg.InputHeight,
		},
		dtype:  dtype,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("model", string(cfg.Name)))
	return m, nil
}

// Options returns the config of the model.
func (m *YOLOv8) Options() model.Config {
	return m.options
}

// Params returns the decode settings derived from the config.
func (m *YOLOv8) Params() Params {
	return m.params
}

// PostProcess decodes the raw outputs of one inference.
//
// outputs are in engine order: for each of the three branches, the box
// tensor, the score tensor and, in three-output layouts, the score-sum
// tensor.
//
// Arguments:
//   - outputs: The raw engine outputs.
//   - lb: The letterbox used to build the model input.
//
// Returns:
//   - postprocess.DetectionList: The detections.
//   - error: An error if the outputs do not match the model layout or precision.
func (m *YOLOv8) PostProcess(outputs []tensors.Raw, lb images.Letterbox) (postprocess.DetectionList, error) {
	if err := lb.Validate(); err != nil {
		return postprocess.DetectionList{}, err
	}
	if len(outputs) == 0 {
		return postprocess.DetectionList{}, errors.Wrap(ErrInvalidShape, "no outputs")
	}
	dtype, err := outputs[0].DType()
	if err != nil {
		return postprocess.DetectionList{}, err
	}
	if dtype != m.dtype {
		return postprocess.DetectionList{}, errors.Wrapf(tensors.ErrUnsupportedType,
			"outputs are %s, model precision %s", dtype, m.options.Precision)
	}

	switch dtype {
	case tensors.Int8Affine:
		return postProcess[int8](m, outputs, lb)
	case tensors.Uint8Affine:
		return postProcess[uint8](m, outputs, lb)
	default:
		return postProcess[float32](m, outputs, lb)
	}
}

func postProcess[T quant.Element](m *YOLOv8, outputs []tensors.Raw, lb images.Letterbox) (postprocess.DetectionList, error) {
	scales, err := BuildScales[T](outputs, m.params.InputHeight, m.params.NumClasses)
	if err != nil {
		return postprocess.DetectionList{}, err
	}

	list, stats := DecodeWithStats(scales, lb, m.params)

	m.logger.Debug("decoded outputs",
		zap.Stringer("dtype", tensors.DTypeOf[T]()),
		zap.Int("candidates", stats.Candidates),
		zap.Int("survivors", stats.Survivors),
		zap.Int("detections", list.Count),
	)
	return list, nil
}

// BuildScales groups raw outputs into validated branches. Each branch holds
// two outputs (box, score) or three (box, score, score sum).
//
// Arguments:
//   - outputs: The raw engine outputs.
//   - inputHeight: The model input height, used to derive strides.
//   - numClasses: The expected number of score planes.
//
// Returns:
//   - []Scale[T]: The branches.
//   - error: An error if the layout, element type or shapes are invalid.
func BuildScales[T quant.Element](outputs []tensors.Raw, inputHeight, numClasses int) ([]Scale[T], error) {
	if len(outputs)%Branches != 0 {
		return nil, errors.Wrapf(ErrInvalidShape, "%d outputs do not split into %d branches", len(outputs), Branches)
	}
	perBranch := len(outputs) / Branches
	if perBranch != 2 && perBranch != 3 {
		return nil, errors.Wrapf(ErrInvalidShape, "%d outputs per branch, want 2 or 3", perBranch)
	}

	scales := make([]Scale[T], 0, Branches)
	for i := 0; i < Branches; i++ {
		base := i * perBranch
		box, err := tensors.AsView[T](outputs[base])
		if err != nil {
			return nil, errors.Wrapf(err, "branch %d box", i)
		}
		score, err := tensors.AsView[T](outputs[base+1])
		if err != nil {
			return nil, errors.Wrapf(err, "branch %d score", i)
		}
		var sum *tensors.View[T]
		if perBranch == 3 {
			v, err := tensors.AsView[T](outputs[base+2])
			if err != nil {
				return nil, errors.Wrapf(err, "branch %d score sum", i)
			}
			sum = &v
		}

		s := NewScale(inputHeight, box, score, sum)
		if err := s.Validate(numClasses); err != nil {
			return nil, errors.Wrapf(err, "branch %d", i)
		}
		scales = append(scales, s)
	}
	return scales, nil
}
