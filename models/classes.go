// Package models - Model registry and class label sets.
package models

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo-decode/models/model"
)

// UnknownLabel is the name reported for class ids outside a label set.
const UnknownLabel = "unknown"

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// Labels resolves class ids to names. A Labels value is read-only after
// construction and may be shared between goroutines.
type Labels struct {
	// Class set identifier.
	Style model.Family
	// Classes are the labels ordered by index.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewLabels builds a label set from names ordered by class id.
//
// Arguments:
//   - style: The class set identifier.
//   - names: The label names, one per class id.
//
// Returns:
//   - *Labels: The label set.
func NewLabels(style model.Family, names []string) *Labels {
	l := &Labels{
		Style:     style,
		Classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		l.Classes[i] = OutputClass{Index: i, Name: name}
		if _, dup := l.nameToIdx[name]; !dup {
			l.nameToIdx[name] = i
		}
	}
	return l
}

// Len returns the number of labels.
func (l *Labels) Len() int {
	return len(l.Classes)
}

// Name returns the label of a class id, or UnknownLabel if the id is out of range.
func (l *Labels) Name(idx int) string {
	if l == nil || idx < 0 || idx >= len(l.Classes) {
		return UnknownLabel
	}
	return l.Classes[idx].Name
}

// Index returns the class id of a label.
func (l *Labels) Index(name string) (int, error) {
	idx, ok := l.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in style %q", name, l.Style)
	}
	return idx, nil
}

// MapClass maps an index of this set to the class of the same name in another set.
func (l *Labels) MapClass(idx int, to *Labels) (OutputClass, error) {
	if idx < 0 || idx >= len(l.Classes) {
		return OutputClass{}, errors.Errorf("index %d out of range for style %q", idx, l.Style)
	}
	name := l.Classes[idx].Name
	toIdx, err := to.Index(name)
	if err != nil {
		return OutputClass{}, err
	}
	return OutputClass{Index: toIdx, Name: name}, nil
}

// LoadLabels reads a label file with one name per line. Surrounding
// whitespace is trimmed and blank lines still occupy a class id.
//
// Arguments:
//   - path: The label file path.
//
// Returns:
//   - *Labels: The label set.
//   - error: An error if the file cannot be read.
func LoadLabels(path string) (*Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open labels")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read labels %s", path)
	}
	// A trailing newline does not add a class.
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return NewLabels(model.ModelFamilyYOLO, names), nil
}

// COCOLabels returns the 80 COCO classes plus "__background__" at index 0.
func COCOLabels() *Labels {
	return NewLabels(model.ModelFamilyCOCO, append([]string{"__background__"}, cocoNames...))
}

// YOLOLabels returns the 80 COCO classes without background.
// YOLO models index directly into this zero-based list.
func YOLOLabels() *Labels {
	return NewLabels(model.ModelFamilyYOLO, cocoNames)
}

// LabelsFor returns the built-in label set of a model family.
func LabelsFor(family model.Family) (*Labels, error) {
	switch family {
	case model.ModelFamilyCOCO:
		return COCOLabels(), nil
	case model.ModelFamilyYOLO:
		return YOLOLabels(), nil
	default:
		return nil, errors.Errorf("no labels for family %q", family)
	}
}

var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}
