// Command yolodecode decodes YOLOv8 head outputs into detections.
//
// It either replays a manifest of dumped engine outputs or, with -session
// and -image, runs an ONNX model through onnxruntime on one image.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo-decode/inference"
	"github.com/nvr-ai/go-yolo-decode/models"
	"github.com/nvr-ai/go-yolo-decode/models/model"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

func main() {
	var (
		configPath   string
		labelsPath   string
		manifestPath string
		sessionPath  string
		imagePath    string
		debug        bool
		agnostic     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to model config YAML (defaults to 80-class YOLOv8 at 640x640)")
	flag.StringVar(&labelsPath, "labels", "", "Path to label file, one name per line")
	flag.StringVar(&manifestPath, "manifest", "", "Path to a manifest of dumped engine outputs")
	flag.StringVar(&sessionPath, "session", "", "Path to onnxruntime session config YAML")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .png) for -session mode")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&agnostic, "agnostic", false, "Merge overlapping detections across classes")
	flag.Parse()

	logger, err := newLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, options{
		configPath:   configPath,
		labelsPath:   labelsPath,
		manifestPath: manifestPath,
		sessionPath:  sessionPath,
		imagePath:    imagePath,
		agnostic:     agnostic,
	}); err != nil {
		logger.Fatal("yolodecode failed", zap.Error(err))
	}
}

type options struct {
	configPath   string
	labelsPath   string
	manifestPath string
	sessionPath  string
	imagePath    string
	agnostic     bool
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	cfg := model.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = model.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	if opts.labelsPath == "" {
		opts.labelsPath = cfg.Labels
	}

	labels, err := loadLabels(opts.labelsPath, cfg.Family)
	if err != nil {
		return err
	}

	var objects []inference.Object
	switch {
	case opts.manifestPath != "":
		objects, err = decodeManifest(cfg, labels, logger, opts.manifestPath)
	case opts.sessionPath != "" && opts.imagePath != "":
		objects, err = detectImage(ctx, cfg, labels, logger, opts.sessionPath, opts.imagePath)
	default:
		return errors.New("either -manifest or -session with -image is required")
	}
	if err != nil {
		return err
	}

	if opts.agnostic {
		objects = mergeAcrossClasses(objects, cfg.NMS.IoUThreshold)
	}
	for _, o := range objects {
		fmt.Printf("%s @ (%d %d %d %d) %.1f%%\n", o.Label, o.Left, o.Top, o.Right, o.Bottom, o.Score*100)
	}
	logger.Info("decoded", zap.Int("detections", len(objects)))
	return nil
}

func loadLabels(path string, family model.Family) (*models.Labels, error) {
	if path != "" {
		return models.LoadLabels(path)
	}
	return models.LabelsFor(family)
}

func decodeManifest(cfg model.Config, labels *models.Labels, logger *zap.Logger, path string) ([]inference.Object, error) {
	manifest, outputs, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	m, err := models.NewModel(cfg, logger)
	if err != nil {
		return nil, err
	}
	list, err := m.PostProcess(outputs, manifest.Letterbox)
	if err != nil {
		return nil, err
	}
	return inference.LabelDetections(list, labels), nil
}

func detectImage(ctx context.Context, cfg model.Config, labels *models.Labels, logger *zap.Logger, sessionPath, imagePath string) ([]inference.Object, error) {
	data, err := os.ReadFile(sessionPath)
	if err != nil {
		return nil, errors.Wrap(err, "read session config")
	}
	var sc inference.SessionConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(err, "parse session config")
	}
	if sc.ModelPath == "" {
		sc.ModelPath = cfg.Path
	}
	sc.InputWidth, sc.InputHeight = cfg.InputWidth, cfg.InputHeight

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	engine, err := inference.NewORTEngine(sc, logger)
	if err != nil {
		return nil, err
	}
	detector, err := inference.NewEngineBuilder().
		WithEngine(engine).
		WithModel(cfg).
		WithLabels(labels).
		WithLogger(logger).
		Build()
	if err != nil {
		engine.Close()
		return nil, err
	}
	defer detector.Close()

	return detector.DetectImage(ctx, img)
}

// mergeAcrossClasses runs class-agnostic greedy NMS over detections that
// already survived per-class suppression.
func mergeAcrossClasses(objects []inference.Object, threshold float32) []inference.Object {
	dets := make([]postprocess.Detection, len(objects))
	labels := make(map[postprocess.Detection]string, len(objects))
	for i, o := range objects {
		dets[i] = o.Detection
		labels[o.Detection] = o.Label
	}
	kept := postprocess.ApplyGreedyNMS(dets, &postprocess.NMSConfig{IoUThreshold: threshold})
	out := make([]inference.Object, len(kept))
	for i, d := range kept {
		out[i] = inference.Object{Detection: d, Label: labels[d]}
	}
	return out
}
