package inference

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
)

// SharedLibEnv names the environment variable holding the onnxruntime library path.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ProviderBackend selects the onnxruntime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CoreMLProviderBackend runs on Apple CoreML.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend runs on Intel OpenVINO.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OutputSpec names one model output and its affine parameters. onnxruntime
// does not expose quantization parameters of raw outputs, so they come from
// the model export.
type OutputSpec struct {
	Name      string  `json:"name" yaml:"name"`
	ZeroPoint int32   `json:"zp" yaml:"zp"`
	Scale     float32 `json:"scale" yaml:"scale"`
}

// SessionConfig configures an onnxruntime session.
type SessionConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// SharedLibPath overrides SharedLibEnv.
	SharedLibPath string `json:"shared_lib_path" yaml:"shared_lib_path"`
	// Backend is the execution provider.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// InputName is the model's image input.
	InputName string `json:"input_name" yaml:"input_name"`
	// InputWidth and InputHeight are the model input size.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// Outputs are the head outputs in decode order.
	Outputs []OutputSpec `json:"outputs" yaml:"outputs"`
	// IntraOpThreads and InterOpThreads size the onnxruntime thread pools. 0 uses the default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// Validate checks that a session can be created from the config.
func (c SessionConfig) Validate() error {
	switch {
	case c.ModelPath == "":
		return errors.New("model_path is required")
	case c.InputName == "":
		return errors.New("input_name is required")
	case c.InputWidth <= 0 || c.InputHeight <= 0:
		return errors.Errorf("input size %dx%d must be positive", c.InputWidth, c.InputHeight)
	case len(c.Outputs) == 0:
		return errors.New("at least one output is required")
	}
	return nil
}

// OutputNames returns the output names in order.
func (c SessionConfig) OutputNames() []string {
	names := make([]string, len(c.Outputs))
	for i, o := range c.Outputs {
		names[i] = o.Name
	}
	return names
}

var initOnce struct {
	sync.Once
	err error
}

// InitializeEnvironment loads the onnxruntime shared library once per process.
//
// Arguments:
//   - libPath: The library path, or "" to read SharedLibEnv.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libPath string) error {
	initOnce.Do(func() {
		if libPath == "" {
			libPath = os.Getenv(SharedLibEnv)
		}
		if libPath != "" {
			if _, err := os.Stat(libPath); err != nil {
				initOnce.err = errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
				return
			}
			ort.SetSharedLibraryPath(libPath)
		}
		initOnce.err = errors.Wrap(ort.InitializeEnvironment(), "initialize onnxruntime")
	})
	return initOnce.err
}

// ORTEngine is an Engine backed by an onnxruntime dynamic session.
type ORTEngine struct {
	session *ort.DynamicAdvancedSession
	config  SessionConfig
	logger  *zap.Logger
}

// NewORTEngine creates an onnxruntime engine.
//
// Order of operations:
//  1. Environment setup: loads the native library once per process.
//  2. Session options: threading, graph optimization and execution provider.
//  3. Session creation: loads the model and binds the input and output names.
//
// Arguments:
//   - cfg: The session config.
//   - logger: The logger, or nil for none.
//
// Returns:
//   - *ORTEngine: The engine. Callers must Close it.
//   - error: An error if the session cannot be created.
func NewORTEngine(cfg SessionConfig, logger *zap.Logger) (*ORTEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "session config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := InitializeEnvironment(cfg.SharedLibPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return nil, errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return nil, errors.Wrap(err, "set inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	switch cfg.Backend {
	case "", CPUProviderBackend:
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return nil, errors.Wrap(err, "enable CoreML")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
		}); err != nil {
			return nil, errors.Wrap(err, "enable OpenVINO")
		}
	default:
		return nil, errors.Errorf("unsupported provider backend %q", cfg.Backend)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		cfg.OutputNames(),
		options,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create onnxruntime session")
	}

	logger.Info("onnxruntime session ready",
		zap.String("model", cfg.ModelPath),
		zap.String("backend", string(cfg.Backend)),
		zap.Strings("outputs", cfg.OutputNames()),
	)
	return &ORTEngine{session: session, config: cfg, logger: logger}, nil
}

// Run executes the model on one NCHW input.
func (e *ORTEngine) Run(ctx context.Context, input []float32) ([]tensors.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := ort.NewShape(1, 3, int64(e.config.InputHeight), int64(e.config.InputWidth))
	in, err := ort.NewTensor(shape, input)
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	defer in.Destroy()

	// Outputs are allocated by onnxruntime with the model's element types.
	outputs := make([]ort.Value, len(e.config.Outputs))
	if err := e.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errors.Wrap(err, "run session")
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	raws := make([]tensors.Raw, len(outputs))
	for i, v := range outputs {
		raw, err := rawFromValue(e.config.Outputs[i], v)
		if err != nil {
			return nil, err
		}
		raws[i] = raw.Clone()
	}
	return raws, nil
}

// Close releases the session.
func (e *ORTEngine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return errors.Wrap(err, "destroy onnxruntime session")
}

func rawFromValue(spec OutputSpec, v ort.Value) (tensors.Raw, error) {
	switch t := v.(type) {
	case *ort.Tensor[int8]:
		return tensors.FromORT(spec.Name, t, spec.ZeroPoint, spec.Scale), nil
	case *ort.Tensor[uint8]:
		return tensors.FromORT(spec.Name, t, spec.ZeroPoint, spec.Scale), nil
	case *ort.Tensor[float32]:
		return tensors.FromORT(spec.Name, t, 0, 1), nil
	default:
		return tensors.Raw{}, errors.Wrapf(tensors.ErrUnsupportedType, "output %q is %T", spec.Name, v)
	}
}
